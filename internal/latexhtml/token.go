package latexhtml

import (
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF     tokenKind = iota
	tokText              // ordinary characters, whitespace collapsed to single spaces
	tokPar               // blank line
	tokCommand           // \name or \c
	tokOpen              // {
	tokClose             // }
	tokTilde             // ~
	tokSpecial           // & ^ _ outside math
	tokParam             // #1 .. #9
	tokMath              // $..$ \(..\) $$..$$ \[..\]
	tokRawEnv            // verbatim and math environments, body kept verbatim
	tokVerb              // \verb|..|
)

type token struct {
	kind    tokenKind
	text    string // text, command name (with backslash), math body, raw body
	env     string // tokRawEnv only
	display bool   // tokMath only
	line    int
	col     int
}

// rawEnvironments have bodies that are not tokenized as text.
var rawEnvironments = map[string]bool{
	"verbatim":  true,
	"equation":  true,
	"equation*": true,
	"align":     true,
	"align*":    true,
	"gather":    true,
	"gather*":   true,
	"multline":  true,
	"multline*": true,
}

type tokenizer struct {
	src  string
	pos  int
	line int
	col  int
	toks []token
	text strings.Builder
	// position of the pending text run
	textLine, textCol int
}

func tokenize(src string) ([]token, error) {
	t := &tokenizer{src: src, line: 1, col: 1}
	err := t.run()
	if err != nil {
		return nil, err
	}
	return t.toks, nil
}

func (t *tokenizer) errorf(line, col int, msg string) error {
	return &Error{Line: line, Column: col, Msg: msg}
}

// advance moves past n bytes, keeping line and column current.
func (t *tokenizer) advance(n int) {
	for _, r := range t.src[t.pos : t.pos+n] {
		if r == '\n' {
			t.line++
			t.col = 1
		} else {
			t.col++
		}
	}
	t.pos += n
}

func (t *tokenizer) emit(tok token) {
	t.flushText()
	t.toks = append(t.toks, tok)
}

func (t *tokenizer) addText(s string) {
	if t.text.Len() == 0 {
		t.textLine, t.textCol = t.line, t.col
	}
	if s == " " {
		str := t.text.String()
		if strings.HasSuffix(str, " ") {
			return
		}
	}
	t.text.WriteString(s)
}

func (t *tokenizer) flushText() {
	if t.text.Len() == 0 {
		return
	}
	t.toks = append(t.toks, token{kind: tokText, text: t.text.String(), line: t.textLine, col: t.textCol})
	t.text.Reset()
}

// skipLineBreak consumes horizontal whitespace and at most one line break,
// unless the break starts a blank line, which is left for the caller to turn
// into a paragraph break.
func (t *tokenizer) skipLineBreak() {
	for t.pos < len(t.src) && (t.src[t.pos] == ' ' || t.src[t.pos] == '\t') {
		t.advance(1)
	}
	if t.pos < len(t.src) && t.src[t.pos] == '\n' && !t.blankLineFollows(t.pos+1) {
		t.advance(1)
		for t.pos < len(t.src) && (t.src[t.pos] == ' ' || t.src[t.pos] == '\t') {
			t.advance(1)
		}
	}
}

func (t *tokenizer) blankLineFollows(i int) bool {
	for i < len(t.src) {
		switch t.src[i] {
		case ' ', '\t', '\r':
			i++
		case '\n':
			return true
		default:
			return false
		}
	}
	return false
}

func (t *tokenizer) run() error {
	for t.pos < len(t.src) {
		c := t.src[t.pos]
		switch c {
		case '\\':
			err := t.command()
			if err != nil {
				return err
			}
		case '%':
			i := strings.IndexByte(t.src[t.pos:], '\n')
			if i < 0 {
				t.advance(len(t.src) - t.pos)
				break
			}
			t.advance(i)
			if t.blankLineFollows(t.pos + 1) {
				break
			}
			t.advance(1)
			t.skipLineBreak()
		case '{':
			t.emit(token{kind: tokOpen, text: "{", line: t.line, col: t.col})
			t.advance(1)
		case '}':
			t.emit(token{kind: tokClose, text: "}", line: t.line, col: t.col})
			t.advance(1)
		case '~':
			t.emit(token{kind: tokTilde, text: "~", line: t.line, col: t.col})
			t.advance(1)
		case '&', '^', '_':
			t.emit(token{kind: tokSpecial, text: string(c), line: t.line, col: t.col})
			t.advance(1)
		case '#':
			if t.pos+1 < len(t.src) && '1' <= t.src[t.pos+1] && t.src[t.pos+1] <= '9' {
				t.emit(token{kind: tokParam, text: t.src[t.pos : t.pos+2], line: t.line, col: t.col})
				t.advance(2)
				break
			}
			t.emit(token{kind: tokSpecial, text: "#", line: t.line, col: t.col})
			t.advance(1)
		case '$':
			err := t.dollarMath()
			if err != nil {
				return err
			}
		case '[', ']':
			t.emit(token{kind: tokText, text: string(c), line: t.line, col: t.col})
			t.advance(1)
		case '\r':
			t.advance(1)
		case '\n':
			if t.blankLineFollows(t.pos + 1) {
				line, col := t.line, t.col
				for t.pos < len(t.src) && strings.ContainsRune(" \t\r\n", rune(t.src[t.pos])) {
					t.advance(1)
				}
				t.emit(token{kind: tokPar, line: line, col: col})
				break
			}
			t.addText(" ")
			t.advance(1)
		case ' ', '\t':
			t.addText(" ")
			t.advance(1)
		default:
			_, size := utf8.DecodeRuneInString(t.src[t.pos:])
			t.addText(t.src[t.pos : t.pos+size])
			t.advance(size)
		}
	}
	t.flushText()
	return nil
}

func (t *tokenizer) command() error {
	line, col := t.line, t.col
	j := t.pos + 1
	for j < len(t.src) && isLetter(t.src[j]) {
		j++
	}
	if j == t.pos+1 {
		// Control symbol.
		if j >= len(t.src) {
			return t.errorf(line, col, `unexpected end of input after "\"`)
		}
		switch t.src[j] {
		case '(', '[':
			return t.delimitedMath(line, col)
		case ')', ']':
			return t.errorf(line, col, "unexpected \\"+string(t.src[j])+" outside math mode")
		}
		_, size := utf8.DecodeRuneInString(t.src[j:])
		name := t.src[t.pos : j+size]
		t.emit(token{kind: tokCommand, text: name, line: line, col: col})
		t.advance(len(name))
		return nil
	}
	name := t.src[t.pos:j]
	t.advance(len(name))
	switch name {
	case `\begin`:
		env, ok := t.peekGroup()
		if ok && rawEnvironments[env] {
			return t.rawEnvironment(env, line, col)
		}
	case `\verb`:
		return t.verb(line, col)
	}
	t.emit(token{kind: tokCommand, text: name, line: line, col: col})
	t.skipLineBreak()
	return nil
}

// peekGroup returns the contents of a {...} group starting at the current
// position (after optional spaces) if it holds only plain characters.
func (t *tokenizer) peekGroup() (string, bool) {
	rest := strings.TrimLeft(t.src[t.pos:], " \t")
	if !strings.HasPrefix(rest, "{") {
		return "", false
	}
	end := strings.IndexByte(rest, '}')
	if end < 0 {
		return "", false
	}
	return rest[1:end], true
}

func (t *tokenizer) rawEnvironment(env string, line, col int) error {
	for t.src[t.pos] != '{' {
		t.advance(1)
	}
	t.advance(len(env) + 2)
	end := `\end{` + env + `}`
	i := strings.Index(t.src[t.pos:], end)
	if i < 0 {
		return t.errorf(line, col, `missing \end{`+env+`}`)
	}
	body := t.src[t.pos : t.pos+i]
	t.emit(token{kind: tokRawEnv, env: env, text: body, line: line, col: col})
	t.advance(i + len(end))
	t.skipLineBreak()
	return nil
}

func (t *tokenizer) verb(line, col int) error {
	if t.pos >= len(t.src) {
		return t.errorf(line, col, `\verb is missing its delimiter`)
	}
	delim, size := utf8.DecodeRuneInString(t.src[t.pos:])
	rest := t.src[t.pos+size:]
	i := strings.IndexRune(rest, delim)
	if j := strings.IndexByte(rest, '\n'); i < 0 || (j >= 0 && j < i) {
		return t.errorf(line, col, `\verb ended by end of line`)
	}
	t.emit(token{kind: tokVerb, text: rest[:i], line: line, col: col})
	t.advance(size + i + size)
	return nil
}

// dollarMath scans $...$ or $$...$$. A backslash inside math escapes the
// following character, so \$ does not close the formula.
func (t *tokenizer) dollarMath() error {
	line, col := t.line, t.col
	display := strings.HasPrefix(t.src[t.pos:], "$$")
	open := 1
	if display {
		open = 2
	}
	start := t.pos + open
	for i := start; i < len(t.src); i++ {
		switch t.src[i] {
		case '\\':
			i++
		case '$':
			if display {
				if !strings.HasPrefix(t.src[i:], "$$") {
					return t.errorf(line, col, "display math should end with $$")
				}
				t.emit(token{kind: tokMath, text: t.src[start:i], display: true, line: line, col: col})
				t.advance(i + 2 - t.pos)
				return nil
			}
			t.emit(token{kind: tokMath, text: t.src[start:i], line: line, col: col})
			t.advance(i + 1 - t.pos)
			return nil
		}
	}
	if display {
		return t.errorf(line, col, "unterminated math: missing $$")
	}
	return t.errorf(line, col, "unterminated math: missing $")
}

// delimitedMath scans \(...\) or \[...\].
func (t *tokenizer) delimitedMath(line, col int) error {
	display := t.src[t.pos+1] == '['
	closer := `\)`
	if display {
		closer = `\]`
	}
	start := t.pos + 2
	for i := start; i < len(t.src); i++ {
		if t.src[i] != '\\' {
			continue
		}
		if strings.HasPrefix(t.src[i:], closer) {
			t.emit(token{kind: tokMath, text: t.src[start:i], display: display, line: line, col: col})
			t.advance(i + 2 - t.pos)
			return nil
		}
		i++
	}
	return t.errorf(line, col, "unterminated math: missing "+closer)
}

func isLetter(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}
