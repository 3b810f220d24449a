package stacktrace

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Error is an error annotated with the callers that were on the stack when it
// was wrapped.
type Error struct {
	Err     error
	Callers []string
}

var _ error = (*Error)(nil)

// New wraps err with the stack trace of where New was called. Errors that
// already carry a stack trace are returned unchanged.
//
// Capturing callers is not cheap. Only use New for errors that are not
// expected to happen during normal operation (a failed template execution, a
// broken writer), never for expected domain failures like a malformed math
// expression. Those are ordinary values.
func New(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{
		Err:     err,
		Callers: callers(3),
	}
}

// Errorf is shorthand for New(fmt.Errorf(format, args...)).
func Errorf(format string, args ...any) error {
	return &Error{
		Err:     fmt.Errorf(format, args...),
		Callers: callers(3),
	}
}

// RecoverPanic converts a panic into an error carrying the stack trace of
// where the panic occurred and stores it in *err. It must be called directly
// by a deferred statement.
func RecoverPanic(err *error) {
	v := recover()
	if v == nil {
		return
	}
	if err == nil {
		return
	}
	*err = &Error{
		Err:     fmt.Errorf("panic: %v", v),
		Callers: callers(3),
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error prints the callers outermost first followed by the underlying error
// message.
func (e *Error) Error() string {
	var b strings.Builder
	for i := len(e.Callers) - 1; i >= 0; i-- {
		b.WriteString(e.Callers[i])
		if i > 0 {
			b.WriteString(" -> ")
		}
	}
	if e.Err == nil {
		b.WriteString(": <nil>")
	} else {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func callers(skip int) []string {
	var pc [30]uintptr
	n := runtime.Callers(skip, pc[:])
	frames := runtime.CallersFrames(pc[:n])
	callers := make([]string, 0, n)
	for frame, more := frames.Next(); more; frame, more = frames.Next() {
		callers = append(callers, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return callers
}
