package latexhtml

import (
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MathTypesetter renders a math expression as MathML markup.
type MathTypesetter interface {
	Typeset(expr string, display bool) (string, error)
}

// Converter converts LaTeX source into a Document. The zero value is usable:
// without a Typesetter, math is shown as its TeX source.
type Converter struct {
	Typesetter MathTypesetter

	// Now returns the date printed by \today and by \maketitle when no \date
	// is given. Defaults to time.Now.
	Now func() time.Time
}

// Convert converts src. Malformed input yields an *Error.
func (c *Converter) Convert(src string) (*Document, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	conv := &converter{
		typesetter: c.Typesetter,
		today:      now().Format("January 2, 2006"),
		doc:        newDocument(),
		toks:       toks,
		macros:     make(map[string]macro),
		labels:     make(map[string]anchor),
	}
	return conv.run()
}

// maxExpansions bounds macro expansion so that recursive definitions fail
// instead of looping forever.
const maxExpansions = 10000

type macro struct {
	nargs      int
	hasDefault bool
	defaultArg []token
	body       []token
}

type anchor struct {
	id   string
	text string
}

type pendingRef struct {
	node  *html.Node
	key   string
	paren bool
}

type converter struct {
	typesetter MathTypesetter
	today      string
	doc        *Document

	toks       []token
	i          int
	macros     map[string]macro
	expansions int

	documentClass *token
	begun         bool

	title, author, date []token
	hasDate             bool

	section   [3]int
	equation  int
	current   anchor
	labels    map[string]anchor
	refs      []pendingRef
	footnotes []*html.Node
}

func errorAt(tok token, msg string) error {
	return &Error{Line: tok.line, Column: tok.col, Msg: msg}
}

func (conv *converter) peek() token {
	if conv.i >= len(conv.toks) {
		return token{kind: tokEOF}
	}
	return conv.toks[conv.i]
}

func (conv *converter) next() token {
	tok := conv.peek()
	if tok.kind != tokEOF {
		conv.i++
	}
	return tok
}

func (conv *converter) inPreamble() bool {
	return conv.documentClass != nil && !conv.begun
}

func (conv *converter) run() (*Document, error) {
	err := conv.block(conv.doc.Body, token{}, "", false)
	if err != nil {
		return nil, err
	}
	if conv.documentClass != nil && !conv.begun {
		return nil, errorAt(*conv.documentClass, `missing \begin{document}`)
	}
	if len(conv.footnotes) > 0 {
		div := element(atom.Div, "footnotes")
		ol := element(atom.Ol)
		for _, li := range conv.footnotes {
			ol.AppendChild(li)
		}
		div.AppendChild(ol)
		conv.doc.Body.AppendChild(div)
	}
	for _, ref := range conv.refs {
		target, ok := conv.labels[ref.key]
		if !ok || target.id == "" {
			appendText(ref.node, "??")
			continue
		}
		setAttr(ref.node, "href", "#"+target.id)
		if ref.paren {
			appendText(ref.node, "("+target.text+")")
		} else {
			appendText(ref.node, target.text)
		}
	}
	var title string
	if conv.title != nil {
		span := element(atom.Span)
		_ = conv.renderInto(span, conv.title)
		title = textContent(span)
	}
	conv.doc.setTitle(title)
	return conv.doc, nil
}

// block converts block-level content into container until the end of input,
// an \end (left unconsumed) or, inside a list, an \item (left unconsumed).
// begin and env describe the enclosing environment; env is empty at the top
// level.
func (conv *converter) block(container *html.Node, begin token, env string, inList bool) error {
	var para, target *html.Node
	closePara := func() {
		if para != nil {
			trimTrailingSpace(para)
			if para.FirstChild == nil {
				container.RemoveChild(para)
			}
		}
		para, target = nil, nil
	}
	ensurePara := func() *html.Node {
		if para == nil {
			para = element(atom.P)
			container.AppendChild(para)
			target = para
		}
		return target
	}
	for {
		tok := conv.peek()
		switch tok.kind {
		case tokEOF:
			closePara()
			if env != "" {
				return errorAt(begin, `missing \end{`+env+`}`)
			}
			return nil
		case tokPar:
			conv.next()
			closePara()
			continue
		case tokText:
			if para == nil && strings.TrimSpace(tok.text) == "" {
				conv.next()
				continue
			}
		case tokClose:
			return errorAt(tok, "unexpected }")
		case tokRawEnv:
			if tok.env == "verbatim" {
				if conv.inPreamble() {
					return errorAt(tok, `missing \begin{document}`)
				}
				conv.next()
				closePara()
				pre := element(atom.Pre, "verbatim")
				appendText(pre, strings.TrimPrefix(tok.text, "\n"))
				container.AppendChild(pre)
				continue
			}
		case tokCommand:
			switch tok.text {
			case `\end`:
				closePara()
				if env == "" {
					conv.next()
					name, _ := conv.stringArg(tok)
					return errorAt(tok, `\end{`+name+`} without matching \begin`)
				}
				return nil
			case `\item`:
				closePara()
				if inList {
					return nil
				}
				return errorAt(tok, `\item outside a list`)
			case `\par`:
				conv.next()
				closePara()
				continue
			case `\begin`:
				closePara()
				conv.next()
				err := conv.environment(container, tok, env)
				if err != nil {
					return err
				}
				continue
			case `\section`, `\subsection`, `\subsubsection`:
				if conv.inPreamble() {
					return errorAt(tok, `missing \begin{document}`)
				}
				closePara()
				conv.next()
				err := conv.heading(container, tok)
				if err != nil {
					return err
				}
				continue
			case `\maketitle`:
				if conv.inPreamble() {
					return errorAt(tok, `missing \begin{document}`)
				}
				closePara()
				conv.next()
				err := conv.maketitle(container, tok)
				if err != nil {
					return err
				}
				continue
			case `\paragraph`:
				closePara()
			}
			if preambleCommands[tok.text] {
				conv.next()
				_, err := conv.command(container, tok)
				if err != nil {
					return err
				}
				continue
			}
		}
		if conv.inPreamble() {
			return errorAt(tok, `missing \begin{document}`)
		}
		conv.next()
		next, err := conv.inline(ensurePara(), tok)
		if err != nil {
			return err
		}
		if para != nil {
			target = next
		}
	}
}

func (conv *converter) environment(container *html.Node, begin token, parent string) error {
	name, err := conv.stringArg(begin)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "document" {
		if parent != "" || conv.begun {
			return errorAt(begin, `\begin{document} not allowed here`)
		}
		conv.begun = true
		err := conv.block(container, begin, name, false)
		if err != nil {
			return err
		}
		err = conv.expectEnd(begin, name)
		if err != nil {
			return err
		}
		// Everything after \end{document} is ignored.
		conv.i = len(conv.toks)
		return nil
	}
	if conv.inPreamble() {
		return errorAt(begin, `missing \begin{document}`)
	}
	var node *html.Node
	switch name {
	case "itemize", "enumerate", "description":
		switch name {
		case "itemize":
			node = element(atom.Ul)
		case "enumerate":
			node = element(atom.Ol)
		default:
			node = element(atom.Dl)
		}
		container.AppendChild(node)
		err := conv.list(node, begin, name)
		if err != nil {
			return err
		}
		return conv.expectEnd(begin, name)
	case "abstract":
		node = element(atom.Div, "abstract")
		heading := element(atom.H3, "abstract-title")
		appendText(heading, "Abstract")
		node.AppendChild(heading)
	case "quote", "quotation":
		node = element(atom.Blockquote, name)
	case "center", "flushleft", "flushright":
		node = element(atom.Div, name)
	default:
		return errorAt(begin, "unknown environment: "+name)
	}
	container.AppendChild(node)
	err = conv.block(node, begin, name, false)
	if err != nil {
		return err
	}
	return conv.expectEnd(begin, name)
}

func (conv *converter) expectEnd(begin token, name string) error {
	end := conv.next()
	if end.kind != tokCommand || end.text != `\end` {
		return errorAt(begin, `missing \end{`+name+`}`)
	}
	got, err := conv.stringArg(end)
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) != name {
		return errorAt(end, `\begin{`+name+`} on line `+strconv.Itoa(begin.line)+` ended by \end{`+got+`}`)
	}
	return nil
}

func (conv *converter) list(node *html.Node, begin token, env string) error {
	for {
		tok := conv.peek()
		switch {
		case tok.kind == tokEOF:
			return errorAt(begin, `missing \end{`+env+`}`)
		case tok.kind == tokPar || tok.kind == tokText && strings.TrimSpace(tok.text) == "":
			conv.next()
		case tok.kind == tokCommand && tok.text == `\end`:
			return nil
		case tok.kind == tokCommand && tok.text == `\item`:
			conv.next()
			label, hasLabel, err := conv.optArg()
			if err != nil {
				return err
			}
			var item *html.Node
			if env == "description" {
				dt := element(atom.Dt)
				if hasLabel {
					err := conv.renderInto(dt, label)
					if err != nil {
						return err
					}
				}
				node.AppendChild(dt)
				item = element(atom.Dd)
			} else {
				item = element(atom.Li)
				if hasLabel {
					span := element(atom.Span, "itemlabel")
					err := conv.renderInto(span, label)
					if err != nil {
						return err
					}
					item.AppendChild(span)
				}
			}
			node.AppendChild(item)
			err = conv.block(item, begin, env, true)
			if err != nil {
				return err
			}
		default:
			return errorAt(tok, `missing \item in `+env)
		}
	}
}

func (conv *converter) heading(container *html.Node, tok token) error {
	var level int
	var a atom.Atom
	switch tok.text {
	case `\section`:
		level, a = 0, atom.H2
	case `\subsection`:
		level, a = 1, atom.H3
	default:
		level, a = 2, atom.H4
	}
	starred := conv.star()
	_, _, err := conv.optArg()
	if err != nil {
		return err
	}
	title, err := conv.arg(tok)
	if err != nil {
		return err
	}
	h := element(a)
	if !starred {
		conv.section[level]++
		for i := level + 1; i < len(conv.section); i++ {
			conv.section[i] = 0
		}
		parts := make([]string, level+1)
		for i := range parts {
			parts[i] = strconv.Itoa(conv.section[i])
		}
		number := strings.Join(parts, ".")
		id := "sec-" + strings.Join(parts, "-")
		setAttr(h, "id", id)
		secnum := element(atom.Span, "secnum")
		appendText(secnum, number)
		h.AppendChild(secnum)
		appendText(h, " ")
		conv.current = anchor{id: id, text: number}
	}
	container.AppendChild(h)
	return conv.renderInto(h, title)
}

// star consumes a '*' directly following a command.
func (conv *converter) star() bool {
	tok := conv.peek()
	if tok.kind != tokText || !strings.HasPrefix(tok.text, "*") {
		return false
	}
	if tok.text == "*" {
		conv.next()
		return true
	}
	rest := tok
	rest.text = tok.text[1:]
	rest.col++
	conv.toks = slices.Concat(conv.toks[:conv.i], []token{rest}, conv.toks[conv.i+1:])
	return true
}

func (conv *converter) maketitle(container *html.Node, tok token) error {
	if conv.title == nil {
		return errorAt(tok, `no \title given`)
	}
	div := element(atom.Div, "title")
	h1 := element(atom.H1)
	err := conv.renderInto(h1, conv.title)
	if err != nil {
		return err
	}
	div.AppendChild(h1)
	if conv.author != nil {
		author := element(atom.Div, "author")
		err := conv.renderInto(author, conv.author)
		if err != nil {
			return err
		}
		div.AppendChild(author)
	}
	date := element(atom.Div, "date")
	if conv.hasDate {
		err := conv.renderInto(date, conv.date)
		if err != nil {
			return err
		}
	} else {
		appendText(date, conv.today)
	}
	if date.FirstChild != nil {
		div.AppendChild(date)
	}
	container.AppendChild(div)
	return nil
}

// renderInto converts toks as inline content appended to parent.
func (conv *converter) renderInto(parent *html.Node, toks []token) error {
	savedToks, savedI := conv.toks, conv.i
	defer func() {
		conv.toks, conv.i = savedToks, savedI
	}()
	conv.toks, conv.i = toks, 0
	target := parent
	for conv.peek().kind != tokEOF {
		var err error
		target, err = conv.inline(target, conv.next())
		if err != nil {
			return err
		}
	}
	return nil
}

// inline converts one token (and whatever arguments it consumes) into
// parent. It returns the node subsequent content of the same group should go
// into, which differs from parent after a declaration such as \bfseries.
func (conv *converter) inline(parent *html.Node, tok token) (*html.Node, error) {
	switch tok.kind {
	case tokText:
		appendText(parent, ligatures.Replace(tok.text))
	case tokPar:
		appendText(parent, " ")
	case tokTilde:
		appendText(parent, "\u00a0")
	case tokOpen:
		target := parent
		for {
			next := conv.next()
			switch next.kind {
			case tokEOF:
				return nil, errorAt(tok, "unclosed group: missing }")
			case tokClose:
				return parent, nil
			}
			var err error
			target, err = conv.inline(target, next)
			if err != nil {
				return nil, err
			}
		}
	case tokClose:
		return nil, errorAt(tok, "unexpected }")
	case tokMath:
		return parent, conv.math(parent, tok, tok.text, tok.display, "")
	case tokRawEnv:
		if tok.env == "verbatim" {
			code := element(atom.Code, "verbatim")
			appendText(code, tok.text)
			parent.AppendChild(code)
			return parent, nil
		}
		return parent, conv.mathEnvironment(parent, tok)
	case tokVerb:
		code := element(atom.Code, "verb")
		code.AppendChild(&html.Node{Type: html.TextNode, Data: tok.text})
		parent.AppendChild(code)
	case tokSpecial:
		switch tok.text {
		case "&":
			return nil, errorAt(tok, "misplaced alignment tab character &")
		case "#":
			return nil, errorAt(tok, "macro parameter character # outside a macro definition")
		}
		return nil, errorAt(tok, "character "+tok.text+" is only allowed in math mode")
	case tokParam:
		return nil, errorAt(tok, "macro parameter "+tok.text+" outside a macro definition")
	case tokCommand:
		return conv.command(parent, tok)
	}
	return parent, nil
}

func (conv *converter) math(parent *html.Node, tok token, expr string, display bool, id string) error {
	class := "math"
	if display {
		class = "math display"
	}
	span := element(atom.Span, class)
	if id != "" {
		setAttr(span, "id", id)
	}
	parent.AppendChild(span)
	if conv.typesetter == nil {
		appendText(span, expr)
		return nil
	}
	mathml, err := conv.typesetter.Typeset(expr, display)
	if err != nil {
		return errorAt(tok, "math: "+err.Error())
	}
	nodes, err := html.ParseFragment(strings.NewReader(mathml), &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
	})
	if err != nil {
		return errorAt(tok, "math: "+err.Error())
	}
	for _, node := range nodes {
		span.AppendChild(node)
	}
	return nil
}

func (conv *converter) mathEnvironment(parent *html.Node, tok token) error {
	body := tok.text
	var labels []string
	for {
		i := strings.Index(body, `\label{`)
		if i < 0 {
			break
		}
		j := strings.IndexByte(body[i:], '}')
		if j < 0 {
			return errorAt(tok, `unclosed \label in `+tok.env)
		}
		labels = append(labels, body[i+len(`\label{`):i+j])
		body = body[:i] + body[i+j+1:]
	}
	numbered := !strings.HasSuffix(tok.env, "*")
	for _, tag := range []string{`\nonumber`, `\notag`} {
		if strings.Contains(body, tag) {
			numbered = false
			body = strings.ReplaceAll(body, tag, "")
		}
	}
	switch strings.TrimSuffix(tok.env, "*") {
	case "align":
		body = `\begin{aligned}` + body + `\end{aligned}`
	case "gather", "multline":
		body = `\begin{gathered}` + body + `\end{gathered}`
	}
	var id string
	if numbered {
		conv.equation++
		number := strconv.Itoa(conv.equation)
		id = "eq-" + number
		conv.current = anchor{id: id, text: number}
	}
	for _, label := range labels {
		conv.labels[label] = conv.current
	}
	err := conv.math(parent, tok, strings.TrimSpace(body), true, id)
	if err != nil {
		return err
	}
	if numbered {
		eqno := element(atom.Span, "eqno")
		appendText(eqno, "("+strconv.Itoa(conv.equation)+")")
		parent.AppendChild(eqno)
	}
	return nil
}

// skipSpace skips text tokens that hold only whitespace.
func (conv *converter) skipSpace() {
	for {
		tok := conv.peek()
		if tok.kind != tokText || strings.TrimSpace(tok.text) != "" {
			return
		}
		conv.next()
	}
}

// arg reads the required argument of cmd: the tokens of a {...} group, or a
// single token (a single character of a text run).
func (conv *converter) arg(cmd token) ([]token, error) {
	conv.skipSpace()
	tok := conv.peek()
	switch tok.kind {
	case tokEOF, tokClose, tokPar:
		return nil, errorAt(cmd, "missing argument for "+cmd.text)
	case tokOpen:
		conv.next()
		start := conv.i
		depth := 1
		for {
			next := conv.next()
			switch next.kind {
			case tokEOF:
				return nil, errorAt(tok, "unclosed group: missing }")
			case tokOpen:
				depth++
			case tokClose:
				depth--
				if depth == 0 {
					return conv.toks[start : conv.i-1], nil
				}
			}
		}
	case tokText:
		_, size := utf8.DecodeRuneInString(tok.text)
		if size < len(tok.text) {
			first, rest := tok, tok
			first.text = tok.text[:size]
			rest.text = tok.text[size:]
			rest.col++
			conv.toks = slices.Concat(conv.toks[:conv.i], []token{first, rest}, conv.toks[conv.i+1:])
			tok = first
		}
	}
	conv.next()
	return []token{tok}, nil
}

// optArg reads an optional [...] argument.
func (conv *converter) optArg() ([]token, bool, error) {
	saved := conv.i
	conv.skipSpace()
	open := conv.peek()
	if open.kind != tokText || open.text != "[" {
		conv.i = saved
		return nil, false, nil
	}
	conv.next()
	start := conv.i
	depth := 0
	for {
		tok := conv.next()
		switch tok.kind {
		case tokEOF:
			return nil, false, errorAt(open, "unclosed optional argument: missing ]")
		case tokOpen:
			depth++
		case tokClose:
			depth--
		case tokText:
			if tok.text == "]" && depth == 0 {
				return conv.toks[start : conv.i-1], true, nil
			}
		}
	}
}

// stringArg reads a required argument as raw source text, for names, keys
// and URLs.
func (conv *converter) stringArg(cmd token) (string, error) {
	toks, err := conv.arg(cmd)
	if err != nil {
		return "", err
	}
	return rawText(toks), nil
}

func rawText(toks []token) string {
	var b strings.Builder
	for _, tok := range toks {
		switch tok.kind {
		case tokOpen:
			b.WriteString("{")
		case tokClose:
			b.WriteString("}")
		case tokTilde:
			b.WriteString("~")
		case tokPar:
			b.WriteString(" ")
		case tokMath:
			b.WriteString("$" + tok.text + "$")
		case tokCommand:
			// Escaped specials stand for themselves in keys and URLs.
			if len(tok.text) == 2 && strings.ContainsRune(`%#&_$~{}`, rune(tok.text[1])) {
				b.WriteByte(tok.text[1])
			} else {
				b.WriteString(tok.text)
			}
		default:
			b.WriteString(tok.text)
		}
	}
	return b.String()
}

var ligatures = strings.NewReplacer(
	"---", "—",
	"--", "–",
	"``", "“",
	"''", "”",
	"!`", "¡",
	"?`", "¿",
	"`", "‘",
	"'", "’",
)
