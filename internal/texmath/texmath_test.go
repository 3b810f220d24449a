package texmath

import (
	"errors"
	"strings"
	"testing"
)

func TestCheck(t *testing.T) {
	type TestTable struct {
		description string
		expr        string
		wantErr     string
	}

	tests := []TestTable{{
		description: "empty",
		expr:        "",
	}, {
		description: "simple",
		expr:        "E = mc^2",
	}, {
		description: "integral",
		expr:        `\int_0^{\infty} e^{-x^2} dx = \frac{\sqrt{\pi}}{2}`,
	}, {
		description: "left right",
		expr:        `\left( \frac{a}{b} \right]`,
	}, {
		description: "matrix",
		expr:        `\begin{pmatrix} a & b \\ c & d \end{pmatrix}`,
	}, {
		description: "sqrt with index",
		expr:        `\sqrt[3]{x+1}`,
	}, {
		description: "text argument",
		expr:        `f(x) = 1 \text{ if } x > 0`,
	}, {
		description: "commands as arguments",
		expr:        `\frac\alpha\beta`,
	}, {
		description: "sub and superscript",
		expr:        `x_i^2 + \sum\limits_{k=1}^n k`,
	}, {
		description: "comment",
		expr:        "a + b % trailing comment",
	}, {
		description: "frac missing argument",
		expr:        `\frac{1}`,
		wantErr:     `Expected group after '\frac' at end of input`,
	}, {
		description: "superscript without argument",
		expr:        `x^`,
		wantErr:     `Expected group after '^' at end of input`,
	}, {
		description: "unclosed group",
		expr:        `{x`,
		wantErr:     `Expected '}', got 'EOF' at end of input`,
	}, {
		description: "extra close brace",
		expr:        `x}`,
		wantErr:     `Unexpected '}' at position 2`,
	}, {
		description: "undefined control sequence",
		expr:        `\foo + 1`,
		wantErr:     `Undefined control sequence: \foo at position 1`,
	}, {
		description: "double superscript",
		expr:        `x^1^2`,
		wantErr:     `Double superscript at position 4`,
	}, {
		description: "left without right",
		expr:        `\left( x`,
		wantErr:     `Expected '\right', got 'EOF' at end of input`,
	}, {
		description: "right without left",
		expr:        `x \right)`,
		wantErr:     `Unexpected '\right' at position 3`,
	}, {
		description: "mismatched environment",
		expr:        `\begin{matrix} a \end{pmatrix}`,
		wantErr:     `Mismatch: \begin{matrix} matched by \end{pmatrix} at position 18`,
	}, {
		description: "trailing backslash",
		expr:        `x \`,
		wantErr:     `Expected a control sequence after '\' at end of input`,
	}}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			err := Check(tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Check(%q): unexpected error: %v", tt.expr, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Check(%q): expected error %q, got nil", tt.expr, tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Check(%q):\nwant %q\ngot  %q", tt.expr, tt.wantErr, err.Error())
			}
		})
	}
}

func TestTypeset(t *testing.T) {
	var ts Typesetter
	mathml, err := ts.Typeset("E = mc^2", true)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(mathml, "math") {
		t.Errorf("expected MathML output, got %q", mathml)
	}

	_, err = ts.Typeset(`\frac{1}`, true)
	var mathErr *Error
	if !errors.As(err, &mathErr) {
		t.Fatalf("expected *Error, got %#v", err)
	}
	if mathErr.Pos != 0 {
		t.Errorf("expected an end-of-input error, got position %d", mathErr.Pos)
	}
}
