package stacktrace

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	if New(nil) != nil {
		t.Fatal("New(nil) should be nil")
	}
	base := errors.New("boom")
	err := New(base)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error does not unwrap to base")
	}
	if len(e.Callers) == 0 {
		t.Error("no callers recorded")
	}
	if !strings.Contains(e.Callers[0], "stacktrace_test.go") {
		t.Errorf("first caller %q is not the test file", e.Callers[0])
	}
	if New(err) != err {
		t.Error("wrapping twice should return the same error")
	}
	if !strings.HasSuffix(err.Error(), ": boom") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestErrorf(t *testing.T) {
	base := errors.New("inner")
	err := Errorf("outer: %w", base)
	if !errors.Is(err, base) {
		t.Error("Errorf should keep the wrapped error")
	}
	if !strings.HasSuffix(err.Error(), ": outer: inner") {
		t.Errorf("unexpected message %q", err.Error())
	}
	var e *Error
	if !errors.As(err, &e) || len(e.Callers) == 0 {
		t.Fatalf("expected a stack trace, got %#v", err)
	}
	if !strings.Contains(e.Callers[0], "stacktrace_test.go") {
		t.Errorf("first caller %q is not the call site of Errorf", e.Callers[0])
	}
}

func TestRecoverPanic(t *testing.T) {
	err := func() (err error) {
		defer RecoverPanic(&err)
		panic("kaboom")
	}()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "panic: kaboom") {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = func() (err error) {
		defer RecoverPanic(&err)
		return nil
	}()
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
