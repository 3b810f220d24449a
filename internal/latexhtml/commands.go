package latexhtml

import (
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// preambleCommands may appear before \begin{document}.
var preambleCommands = map[string]bool{
	`\documentclass`:     true,
	`\usepackage`:        true,
	`\title`:             true,
	`\author`:            true,
	`\date`:              true,
	`\newcommand`:        true,
	`\renewcommand`:      true,
	`\providecommand`:    true,
	`\pagestyle`:         true,
	`\setlength`:         true,
	`\setcounter`:        true,
	`\makeatletter`:      true,
	`\makeatother`:       true,
	`\bibliographystyle`: true,
}

// textSymbols map commands without arguments to the text they produce.
var textSymbols = map[string]string{
	`\%`: "%", `\$`: "$", `\&`: "&", `\#`: "#", `\_`: "_", `\{`: "{", `\}`: "}",
	`\ `: " ", `\,`: "\u2009", `\;`: "\u2005", `\:`: "\u2005", `\!`: "", `\/`: "", `\@`: "",
	`\-`: "\u00ad", `\quad`: "\u2003", `\qquad`: "\u2003\u2003", `\enspace`: "\u2002",
	`\ldots`: "…", `\dots`: "…", `\textellipsis`: "…",
	`\textbackslash`: `\`, `\textasciitilde`: "~", `\textasciicircum`: "^",
	`\textunderscore`: "_", `\textbar`: "|", `\textless`: "<", `\textgreater`: ">",
	`\textbullet`: "•", `\textdegree`: "°", `\textendash`: "–", `\textemdash`: "—",
	`\textquoteleft`: "‘", `\textquoteright`: "’", `\textquotedblleft`: "“", `\textquotedblright`: "”",
	`\ss`: "ß", `\ae`: "æ", `\AE`: "Æ", `\oe`: "œ", `\OE`: "Œ", `\o`: "ø", `\O`: "Ø",
	`\aa`: "å", `\AA`: "Å", `\l`: "ł", `\L`: "Ł", `\i`: "ı", `\j`: "ȷ",
	`\copyright`: "©", `\textcopyright`: "©", `\textregistered`: "®", `\texttrademark`: "™",
	`\dag`: "†", `\ddag`: "‡", `\S`: "§", `\P`: "¶", `\pounds`: "£", `\textsterling`: "£",
	`\hfill`: " ", `\hfil`: " ",
	`\TeX`: "TeX", `\LaTeX`: "LaTeX", `\LaTeXe`: "LaTeX2ε",
}

// noops are commands without arguments that have no effect on the HTML.
var noops = map[string]bool{
	`\noindent`: true, `\indent`: true, `\centering`: true, `\raggedright`: true, `\raggedleft`: true,
	`\smallskip`: true, `\medskip`: true, `\bigskip`: true, `\clearpage`: true, `\newpage`: true,
	`\cleardoublepage`: true, `\relax`: true, `\protect`: true, `\normalsize`: true, `\small`: true,
	`\footnotesize`: true, `\scriptsize`: true, `\tiny`: true, `\large`: true, `\Large`: true,
	`\LARGE`: true, `\huge`: true, `\Huge`: true, `\sloppy`: true, `\fussy`: true, `\vfill`: true,
	`\null`: true, `\linebreak`: true, `\nolinebreak`: true, `\pagebreak`: true, `\nopagebreak`: true,
	`\frenchspacing`: true, `\nonfrenchspacing`: true, `\makeatletter`: true, `\makeatother`: true,
	`\tableofcontents`: true,
}

// ignoredArgs are commands whose arguments are read and discarded.
var ignoredArgs = map[string]int{
	`\hspace`: 1, `\vspace`: 1, `\pagestyle`: 1, `\thispagestyle`: 1, `\bibliographystyle`: 1,
	`\setlength`: 2, `\addtolength`: 2, `\setcounter`: 2, `\addtocounter`: 2,
}

// fontCommands wrap their argument in an element.
var fontCommands = map[string]struct {
	atom  atom.Atom
	class string
}{
	`\textbf`:          {atom.B, ""},
	`\textit`:          {atom.I, ""},
	`\textsl`:          {atom.I, ""},
	`\emph`:            {atom.Em, ""},
	`\texttt`:          {atom.Code, ""},
	`\underline`:       {atom.U, ""},
	`\textsc`:          {atom.Span, "textsc"},
	`\textrm`:          {atom.Span, "textrm"},
	`\textsf`:          {atom.Span, "textsf"},
	`\textup`:          {atom.Span, "textup"},
	`\textmd`:          {atom.Span, "textmd"},
	`\textnormal`:      {atom.Span, "textnormal"},
	`\mbox`:            {atom.Span, "mbox"},
	`\textsuperscript`: {atom.Sup, ""},
	`\textsubscript`:   {atom.Sub, ""},
}

// declarations switch the font for the rest of the enclosing group.
var declarations = map[string]struct {
	atom  atom.Atom
	class string
}{
	`\bf`: {atom.B, ""}, `\bfseries`: {atom.B, ""},
	`\it`: {atom.I, ""}, `\itshape`: {atom.I, ""}, `\sl`: {atom.I, ""}, `\slshape`: {atom.I, ""},
	`\em`:              {atom.Em, ""},
	`\tt`: {atom.Code, ""}, `\ttfamily`: {atom.Code, ""},
	`\sc`: {atom.Span, "textsc"}, `\scshape`: {atom.Span, "textsc"},
	`\sf`: {atom.Span, "textsf"}, `\sffamily`: {atom.Span, "textsf"},
	`\rm`: {atom.Span, "textrm"}, `\rmfamily`: {atom.Span, "textrm"},
	`\normalfont`: {atom.Span, "textnormal"}, `\upshape`: {atom.Span, "textup"}, `\mdseries`: {atom.Span, "textmd"},
}

// accents map accent commands to combining characters.
var accents = map[string]string{
	`\'`: "\u0301", "\\`": "\u0300", `\^`: "\u0302", `\"`: "\u0308", `\~`: "\u0303",
	`\=`: "\u0304", `\.`: "\u0307", `\u`: "\u0306", `\v`: "\u030c", `\H`: "\u030b",
	`\c`: "\u0327", `\k`: "\u0328", `\r`: "\u030a", `\d`: "\u0323", `\b`: "\u0331",
}

func (conv *converter) command(parent *html.Node, tok token) (*html.Node, error) {
	name := tok.text
	if m, ok := conv.macros[name]; ok {
		return parent, conv.expand(tok, m)
	}
	if s, ok := textSymbols[name]; ok {
		appendText(parent, s)
		return parent, nil
	}
	if noops[name] {
		return parent, nil
	}
	if n, ok := ignoredArgs[name]; ok {
		conv.star()
		for i := 0; i < n; i++ {
			_, err := conv.arg(tok)
			if err != nil {
				return nil, err
			}
		}
		return parent, nil
	}
	if f, ok := fontCommands[name]; ok {
		var node *html.Node
		if f.class != "" {
			node = element(f.atom, f.class)
		} else {
			node = element(f.atom)
		}
		return parent, conv.wrap(parent, node, tok)
	}
	if d, ok := declarations[name]; ok {
		var node *html.Node
		if d.class != "" {
			node = element(d.atom, d.class)
		} else {
			node = element(d.atom)
		}
		parent.AppendChild(node)
		return node, nil
	}
	if mark, ok := accents[name]; ok {
		return parent, conv.accent(parent, tok, mark)
	}
	switch name {
	case `\documentclass`:
		if conv.documentClass != nil || conv.begun || conv.doc.Body.FirstChild != nil {
			return nil, errorAt(tok, `\documentclass can only be used once, at the start`)
		}
		_, _, err := conv.optArg()
		if err != nil {
			return nil, err
		}
		_, err = conv.arg(tok)
		if err != nil {
			return nil, err
		}
		conv.documentClass = &tok
	case `\usepackage`:
		if conv.begun {
			return nil, errorAt(tok, `\usepackage can only be used in the preamble`)
		}
		_, _, err := conv.optArg()
		if err != nil {
			return nil, err
		}
		_, err = conv.arg(tok)
		if err != nil {
			return nil, err
		}
	case `\title`, `\author`, `\date`:
		_, _, err := conv.optArg()
		if err != nil {
			return nil, err
		}
		arg, err := conv.arg(tok)
		if err != nil {
			return nil, err
		}
		switch name {
		case `\title`:
			conv.title = arg
		case `\author`:
			conv.author = arg
		default:
			conv.date, conv.hasDate = arg, true
		}
	case `\newcommand`, `\renewcommand`, `\providecommand`:
		conv.star()
		return parent, conv.define(tok)
	case `\and`:
		appendText(parent, ", ")
	case `\today`:
		appendText(parent, conv.today)
	case `\\`, `\newline`:
		if name == `\\` {
			conv.star()
			_, _, err := conv.optArg()
			if err != nil {
				return nil, err
			}
		}
		trimTrailingSpace(parent)
		parent.AppendChild(element(atom.Br))
	case `\par`:
		appendText(parent, " ")
	case `\paragraph`, `\subparagraph`:
		conv.star()
		arg, err := conv.arg(tok)
		if err != nil {
			return nil, err
		}
		strong := element(atom.Strong, strings.TrimPrefix(name, `\`))
		err = conv.renderInto(strong, arg)
		if err != nil {
			return nil, err
		}
		parent.AppendChild(strong)
		appendText(parent, " ")
	case `\footnote`:
		arg, err := conv.arg(tok)
		if err != nil {
			return nil, err
		}
		n := strconv.Itoa(len(conv.footnotes) + 1)
		sup := element(atom.Sup, "footnote-ref")
		a := element(atom.A)
		setAttr(a, "href", "#fn-"+n)
		setAttr(a, "id", "fnref-"+n)
		appendText(a, n)
		sup.AppendChild(a)
		parent.AppendChild(sup)
		li := element(atom.Li)
		setAttr(li, "id", "fn-"+n)
		err = conv.renderInto(li, arg)
		if err != nil {
			return nil, err
		}
		conv.footnotes = append(conv.footnotes, li)
	case `\label`:
		key, err := conv.stringArg(tok)
		if err != nil {
			return nil, err
		}
		conv.labels[strings.TrimSpace(key)] = conv.current
	case `\ref`, `\eqref`:
		key, err := conv.stringArg(tok)
		if err != nil {
			return nil, err
		}
		a := element(atom.A, "ref")
		parent.AppendChild(a)
		conv.refs = append(conv.refs, pendingRef{node: a, key: strings.TrimSpace(key), paren: name == `\eqref`})
	case `\href`:
		url, err := conv.stringArg(tok)
		if err != nil {
			return nil, err
		}
		a := element(atom.A)
		setAttr(a, "href", strings.TrimSpace(url))
		return parent, conv.wrap(parent, a, tok)
	case `\url`:
		url, err := conv.stringArg(tok)
		if err != nil {
			return nil, err
		}
		url = strings.TrimSpace(url)
		a := element(atom.A, "url")
		setAttr(a, "href", url)
		appendText(a, url)
		parent.AppendChild(a)
	case `\section`, `\subsection`, `\subsubsection`, `\maketitle`, `\begin`, `\end`, `\item`:
		return nil, errorAt(tok, name+" is not allowed here")
	default:
		return nil, errorAt(tok, "unknown macro: "+name)
	}
	return parent, nil
}

// wrap renders the argument of cmd into node and appends node to parent.
func (conv *converter) wrap(parent, node *html.Node, cmd token) error {
	arg, err := conv.arg(cmd)
	if err != nil {
		return err
	}
	parent.AppendChild(node)
	return conv.renderInto(node, arg)
}

func (conv *converter) accent(parent *html.Node, tok token, mark string) error {
	arg, err := conv.arg(tok)
	if err != nil {
		return err
	}
	span := element(atom.Span)
	err = conv.renderInto(span, arg)
	if err != nil {
		return err
	}
	base := textContent(span)
	if base == "" {
		// A lone accent over nothing, as in \'{}.
		base = " "
	}
	appendText(parent, norm.NFC.String(base+mark))
	return nil
}

// define handles \newcommand, \renewcommand and \providecommand:
//
//	\newcommand{\name}[nargs][default]{body}
func (conv *converter) define(tok token) error {
	nameToks, err := conv.arg(tok)
	if err != nil {
		return err
	}
	if len(nameToks) != 1 || nameToks[0].kind != tokCommand {
		return errorAt(tok, tok.text+": the macro name must be a single control sequence")
	}
	name := nameToks[0].text
	var m macro
	nargs, ok, err := conv.optArg()
	if err != nil {
		return err
	}
	if ok {
		n, err := strconv.Atoi(strings.TrimSpace(rawText(nargs)))
		if err != nil || n < 0 || n > 9 {
			return errorAt(tok, tok.text+": invalid number of arguments for "+name)
		}
		m.nargs = n
		def, ok, err := conv.optArg()
		if err != nil {
			return err
		}
		if ok {
			if m.nargs == 0 {
				return errorAt(tok, tok.text+": default argument given for "+name+" which takes no arguments")
			}
			m.hasDefault, m.defaultArg = true, def
		}
	}
	m.body, err = conv.arg(tok)
	if err != nil {
		return err
	}
	_, exists := conv.macros[name]
	switch tok.text {
	case `\newcommand`:
		if exists || isBuiltin(name) {
			return errorAt(tok, name+" is already defined")
		}
	case `\providecommand`:
		if exists || isBuiltin(name) {
			return nil
		}
	}
	conv.macros[name] = m
	return nil
}

func isBuiltin(name string) bool {
	if _, ok := textSymbols[name]; ok {
		return true
	}
	if _, ok := fontCommands[name]; ok {
		return true
	}
	if _, ok := declarations[name]; ok {
		return true
	}
	if _, ok := accents[name]; ok {
		return true
	}
	return noops[name] || preambleCommands[name]
}

// expand reads the arguments of a user macro and splices its body, with
// parameters substituted, into the token stream.
func (conv *converter) expand(tok token, m macro) error {
	conv.expansions++
	if conv.expansions > maxExpansions {
		return errorAt(tok, "macro expansion too deep in "+tok.text)
	}
	args := make([][]token, m.nargs)
	start := 0
	if m.hasDefault {
		opt, ok, err := conv.optArg()
		if err != nil {
			return err
		}
		if ok {
			args[0] = opt
		} else {
			args[0] = m.defaultArg
		}
		start = 1
	}
	for i := start; i < m.nargs; i++ {
		arg, err := conv.arg(tok)
		if err != nil {
			return err
		}
		args[i] = arg
	}
	var out []token
	for _, t := range m.body {
		if t.kind != tokParam {
			out = append(out, t)
			continue
		}
		n := int(t.text[1] - '1')
		if n >= m.nargs {
			return errorAt(t, "illegal parameter number "+t.text+" in definition of "+tok.text)
		}
		out = append(out, args[n]...)
	}
	conv.toks = slices.Concat(conv.toks[:conv.i], out, conv.toks[conv.i:])
	return nil
}
