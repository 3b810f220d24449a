// Package mathspan finds the math expressions embedded in LaTeX source.
//
// Inline expressions are delimited by a single dollar sign on each side and
// may not cross a line break. Display expressions are delimited by \[ and \]
// and may span any number of lines. Both scans are shortest-match and run
// independently over the whole text, so a $...$ pair inside a display block
// is reported twice: once by each scan. Backslash escapes are not recognized.
package mathspan

import "strings"

// Span is one math expression, without its delimiters.
type Span struct {
	Expr    string
	Display bool
}

// Extract returns every inline span followed by every display span, each
// group in source order. It never fails: text without delimiters yields nil.
func Extract(text string) []Span {
	var spans []Span
	for _, expr := range inline(text) {
		spans = append(spans, Span{Expr: expr})
	}
	for _, expr := range display(text) {
		spans = append(spans, Span{Expr: expr, Display: true})
	}
	return spans
}

// Exprs returns the expressions of spans in order.
func Exprs(spans []Span) []string {
	if len(spans) == 0 {
		return nil
	}
	exprs := make([]string, len(spans))
	for i, span := range spans {
		exprs[i] = span.Expr
	}
	return exprs
}

func inline(text string) []string {
	var exprs []string
	pos := 0
	for {
		i := strings.IndexByte(text[pos:], '$')
		if i < 0 {
			return exprs
		}
		start := pos + i + 1
		end, ok := closingDollar(text[start:])
		if !ok {
			// The opening dollar cannot be closed on its own line. The next
			// dollar may still open a span of its own.
			pos = start
			continue
		}
		exprs = append(exprs, text[start:start+end])
		pos = start + end + 1
	}
}

// closingDollar returns the offset of the first '$' in s that comes before
// any line terminator.
func closingDollar(s string) (int, bool) {
	for i, r := range s {
		switch r {
		case '$':
			return i, true
		case '\n', '\r', '\u2028', '\u2029':
			return 0, false
		}
	}
	return 0, false
}

func display(text string) []string {
	var exprs []string
	pos := 0
	for {
		i := strings.Index(text[pos:], `\[`)
		if i < 0 {
			return exprs
		}
		start := pos + i + 2
		end := strings.Index(text[start:], `\]`)
		if end < 0 {
			return exprs
		}
		exprs = append(exprs, text[start:start+end])
		pos = start + end + 2
	}
}
