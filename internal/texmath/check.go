package texmath

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Error describes malformed math. Pos is the 1-based character position of
// the offending token, or 0 if the error is at the end of the input.
type Error struct {
	Msg string
	Pos int
}

func (e *Error) Error() string {
	if e.Pos == 0 {
		return e.Msg + " at end of input"
	}
	return e.Msg + " at position " + strconv.Itoa(e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokCommand
	tokOpen
	tokClose
	tokSup
	tokSub
	tokChar
)

type token struct {
	kind tokenKind
	text string
	pos  int // 1-based character position
}

func tokenize(expr string) []token {
	var tokens []token
	pos := 0
	for i := 0; i < len(expr); {
		r, size := utf8.DecodeRuneInString(expr[i:])
		pos++
		switch {
		case r == '\\':
			j := i + 1
			for j < len(expr) && isLetter(expr[j]) {
				j++
			}
			if j == i+1 && j < len(expr) {
				_, n := utf8.DecodeRuneInString(expr[j:])
				j += n
			}
			tokens = append(tokens, token{kind: tokCommand, text: expr[i:j], pos: pos})
			pos += utf8.RuneCountInString(expr[i+1 : j])
			i = j
			continue
		case r == '%':
			j := strings.IndexByte(expr[i:], '\n')
			if j < 0 {
				j = len(expr) - i
			}
			pos += utf8.RuneCountInString(expr[i+1 : i+j])
			i += j
			continue
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		case r == '{':
			tokens = append(tokens, token{kind: tokOpen, text: "{", pos: pos})
		case r == '}':
			tokens = append(tokens, token{kind: tokClose, text: "}", pos: pos})
		case r == '^':
			tokens = append(tokens, token{kind: tokSup, text: "^", pos: pos})
		case r == '_':
			tokens = append(tokens, token{kind: tokSub, text: "_", pos: pos})
		default:
			tokens = append(tokens, token{kind: tokChar, text: string(r), pos: pos})
		}
		i += size
	}
	return tokens
}

func isLetter(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}

// Check reports whether expr is structurally well-formed math: balanced
// groups, required arguments present, scripts attached to something, paired
// \left/\right and \begin/\end, and only known control sequences.
func Check(expr string) error {
	p := &checker{tokens: tokenize(expr)}
	err := p.list(stopNone)
	if err != nil {
		return err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return p.unexpected(tok)
	}
	return nil
}

type stopAt int

const (
	stopNone stopAt = iota
	stopClose
	stopRight
	stopEnd
	stopBracket
)

type checker struct {
	tokens []token
	i      int
}

func (p *checker) peek() token {
	if p.i >= len(p.tokens) {
		return token{kind: tokEOF}
	}
	return p.tokens[p.i]
}

func (p *checker) next() token {
	tok := p.peek()
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *checker) unexpected(tok token) error {
	if tok.kind == tokEOF {
		return &Error{Msg: "Unexpected end of input"}
	}
	return &Error{Msg: "Unexpected '" + tok.text + "'", Pos: tok.pos}
}

// list checks atoms until the token that stop describes, which it leaves
// unconsumed.
func (p *checker) list(stop stopAt) error {
	var hasSup, hasSub bool
	for {
		tok := p.peek()
		switch tok.kind {
		case tokEOF:
			return nil
		case tokClose:
			if stop == stopClose {
				return nil
			}
			return p.unexpected(tok)
		case tokChar:
			if tok.text == "]" && stop == stopBracket {
				return nil
			}
			p.next()
			hasSup, hasSub = false, false
		case tokSup, tokSub:
			p.next()
			if tok.kind == tokSup {
				if hasSup {
					return &Error{Msg: "Double superscript", Pos: tok.pos}
				}
				hasSup = true
			} else {
				if hasSub {
					return &Error{Msg: "Double subscript", Pos: tok.pos}
				}
				hasSub = true
			}
			err := p.arg(tok.text)
			if err != nil {
				return err
			}
		case tokOpen:
			p.next()
			err := p.group()
			if err != nil {
				return err
			}
			hasSup, hasSub = false, false
		case tokCommand:
			switch tok.text {
			case `\right`:
				if stop == stopRight {
					return nil
				}
				return p.unexpected(tok)
			case `\end`:
				if stop == stopEnd {
					return nil
				}
				return p.unexpected(tok)
			case `\limits`, `\nolimits`:
				p.next()
				continue
			}
			p.next()
			err := p.command(tok)
			if err != nil {
				return err
			}
			hasSup, hasSub = false, false
		}
	}
}

// group checks the rest of a group whose '{' has been consumed.
func (p *checker) group() error {
	err := p.list(stopClose)
	if err != nil {
		return err
	}
	if tok := p.next(); tok.kind != tokClose {
		return &Error{Msg: "Expected '}', got 'EOF'"}
	}
	return nil
}

// arg checks one required argument of name: a group or a single token.
func (p *checker) arg(name string) error {
	tok := p.peek()
	switch tok.kind {
	case tokEOF:
		return &Error{Msg: "Expected group after '" + name + "'"}
	case tokClose, tokSup, tokSub:
		return &Error{Msg: "Expected group after '" + name + "'", Pos: tok.pos}
	case tokOpen:
		p.next()
		return p.group()
	case tokCommand:
		switch tok.text {
		case `\right`, `\end`, `\left`, `\begin`:
			return &Error{Msg: "Expected group after '" + name + "'", Pos: tok.pos}
		}
		p.next()
		return p.command(tok)
	}
	p.next()
	return nil
}

// textArg checks a required argument whose contents are text rather than
// math, so only brace balance matters.
func (p *checker) textArg(name string) (string, error) {
	tok := p.peek()
	switch tok.kind {
	case tokEOF:
		return "", &Error{Msg: "Expected group after '" + name + "'"}
	case tokOpen:
	default:
		if tok.kind == tokChar || tok.kind == tokCommand {
			p.next()
			return tok.text, nil
		}
		return "", &Error{Msg: "Expected group after '" + name + "'", Pos: tok.pos}
	}
	p.next()
	var b strings.Builder
	depth := 1
	for {
		tok := p.next()
		switch tok.kind {
		case tokEOF:
			return "", &Error{Msg: "Expected '}', got 'EOF'"}
		case tokOpen:
			depth++
		case tokClose:
			depth--
			if depth == 0 {
				return b.String(), nil
			}
		}
		b.WriteString(tok.text)
	}
}

func (p *checker) command(tok token) error {
	name := tok.text
	switch name {
	case `\left`:
		err := p.delimiter(name)
		if err != nil {
			return err
		}
		err = p.list(stopRight)
		if err != nil {
			return err
		}
		if p.next().kind == tokEOF {
			return &Error{Msg: `Expected '\right', got 'EOF'`}
		}
		return p.delimiter(`\right`)
	case `\middle`:
		return p.delimiter(name)
	case `\begin`:
		env, err := p.textArg(name)
		if err != nil {
			return err
		}
		if _, ok := environments[env]; !ok {
			return &Error{Msg: "No such environment: " + env, Pos: tok.pos}
		}
		if env == "array" || env == "alignat" || env == "alignat*" {
			_, err := p.textArg(`\begin{` + env + `}`)
			if err != nil {
				return err
			}
		}
		err = p.list(stopEnd)
		if err != nil {
			return err
		}
		end := p.next()
		if end.kind == tokEOF {
			return &Error{Msg: `Expected '\end{` + env + `}', got 'EOF'`}
		}
		endEnv, err := p.textArg(`\end`)
		if err != nil {
			return err
		}
		if endEnv != env {
			return &Error{Msg: `Mismatch: \begin{` + env + `} matched by \end{` + endEnv + `}`, Pos: end.pos}
		}
		return nil
	case `\sqrt`:
		if next := p.peek(); next.kind == tokChar && next.text == "[" {
			p.next()
			err := p.list(stopBracket)
			if err != nil {
				return err
			}
			if p.next().kind == tokEOF {
				return &Error{Msg: "Expected ']', got 'EOF'"}
			}
		}
		return p.arg(name)
	}
	if _, ok := symbols[name]; ok {
		return nil
	}
	if _, ok := delimiters[name]; ok {
		return nil
	}
	if n, ok := mathArgs[name]; ok {
		for i := 0; i < n; i++ {
			err := p.arg(name)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if _, ok := textArgs[name]; ok {
		_, err := p.textArg(name)
		return err
	}
	if _, ok := sizedDelimiters[name]; ok {
		return p.delimiter(name)
	}
	if name == `\` {
		return &Error{Msg: "Expected a control sequence after '\\'"}
	}
	return &Error{Msg: "Undefined control sequence: " + name, Pos: tok.pos}
}

func (p *checker) delimiter(name string) error {
	tok := p.next()
	switch tok.kind {
	case tokEOF:
		return &Error{Msg: "Missing delimiter after '" + name + "'"}
	case tokChar:
		if strings.ContainsAny(tok.text, "()[]|/.<>") {
			return nil
		}
	case tokCommand:
		if _, ok := delimiters[tok.text]; ok {
			return nil
		}
	}
	return &Error{Msg: "Invalid delimiter '" + tok.text + "' after '" + name + "'", Pos: tok.pos}
}
