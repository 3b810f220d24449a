// Package texmath typesets TeX math expressions into MathML.
//
// Conversion itself is done by latex2mathml, which accepts almost anything
// and produces a best-effort rendering. Typesetter puts Check in front of it
// so that malformed input comes back as an *Error describing what is wrong,
// the way an interactive editor needs it.
package texmath

import (
	"git.sr.ht/~mekyt/latex2mathml"
	"github.com/unmatched78/latex-editor/stacktrace"
)

// MathMLNamespace is the xmlns of the generated <math> elements.
const MathMLNamespace = "http://www.w3.org/1998/Math/MathML"

// Typesetter converts math expressions to MathML markup.
type Typesetter struct {
	// Indent is the indentation width passed on to latex2mathml.
	Indent int
}

// Typeset returns the MathML for expr, in display style if display is true.
// Malformed input yields an *Error. A panic inside the converter is
// recovered and returned as an error.
func (ts Typesetter) Typeset(expr string, display bool) (mathml string, err error) {
	defer stacktrace.RecoverPanic(&err)
	err = Check(expr)
	if err != nil {
		return "", err
	}
	mode := "inline"
	if display {
		mode = "block"
	}
	return latex2mathml.Convert(expr, MathMLNamespace, mode, ts.Indent), nil
}
