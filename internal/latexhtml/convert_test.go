package latexhtml

import (
	"errors"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeTypesetter wraps the expression in a <mi> so that tests do not depend
// on the MathML produced by a real typesetter.
type fakeTypesetter struct{}

func (fakeTypesetter) Typeset(expr string, display bool) (string, error) {
	if strings.Contains(expr, `\bad`) {
		return "", errors.New(`Undefined control sequence: \bad`)
	}
	return "<math><mi>" + html.EscapeString(expr) + "</mi></math>", nil
}

func newConverter() *Converter {
	return &Converter{
		Typesetter: fakeTypesetter{},
		Now: func() time.Time {
			return time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
		},
	}
}

func TestConvert(t *testing.T) {
	type TestTable struct {
		description string
		src         string
		want        string
	}

	tests := []TestTable{{
		description: "paragraphs",
		src:         "Hello  world.\n\nSecond paragraph.",
		want:        `<div class="body"><p>Hello world.</p><p>Second paragraph.</p></div>`,
	}, {
		description: "font commands",
		src:         `\textbf{bold} and \emph{it}`,
		want:        `<div class="body"><p><b>bold</b> and <em>it</em></p></div>`,
	}, {
		description: "declaration scoped to group",
		src:         `{\bfseries bold} normal`,
		want:        `<div class="body"><p><b>bold</b> normal</p></div>`,
	}, {
		description: "ligatures",
		src:         "``quoted'' --- dash",
		want:        `<div class="body"><p>“quoted” — dash</p></div>`,
	}, {
		description: "accents",
		src:         `caf\'e na\"ive`,
		want:        `<div class="body"><p>café naïve</p></div>`,
	}, {
		description: "section and reference",
		src:         `\section{Intro}\label{sec:intro}See \ref{sec:intro}.`,
		want:        `<div class="body"><h2 id="sec-1"><span class="secnum">1</span> Intro</h2><p>See <a class="ref" href="#sec-1">1</a>.</p></div>`,
	}, {
		description: "unnumbered section",
		src:         `\section*{Notes}`,
		want:        `<div class="body"><h2>Notes</h2></div>`,
	}, {
		description: "unknown reference",
		src:         `\ref{nope}`,
		want:        `<div class="body"><p><a class="ref">??</a></p></div>`,
	}, {
		description: "inline math",
		src:         `Energy $E=mc^2$.`,
		want:        `<div class="body"><p>Energy <span class="math"><math><mi>E=mc^2</mi></math></span>.</p></div>`,
	}, {
		description: "display math",
		src:         `\[x\]`,
		want:        `<div class="body"><p><span class="math display"><math><mi>x</mi></math></span></p></div>`,
	}, {
		description: "numbered equation",
		src:         `\begin{equation}\label{eq:1} x \end{equation} See \eqref{eq:1}.`,
		want:        `<div class="body"><p><span class="math display" id="eq-1"><math><mi>x</mi></math></span><span class="eqno">(1)</span>See <a class="ref" href="#eq-1">(1)</a>.</p></div>`,
	}, {
		description: "itemize",
		src:         "\\begin{itemize}\n\\item One\n\\item Two\n\\end{itemize}",
		want:        `<div class="body"><ul><li><p>One</p></li><li><p>Two</p></li></ul></div>`,
	}, {
		description: "description",
		src:         `\begin{description}\item[Term] Meaning\end{description}`,
		want:        `<div class="body"><dl><dt>Term</dt><dd><p>Meaning</p></dd></dl></div>`,
	}, {
		description: "footnote",
		src:         `Text\footnote{Note.} more.`,
		want:        `<div class="body"><p>Text<sup class="footnote-ref"><a href="#fn-1" id="fnref-1">1</a></sup> more.</p><div class="footnotes"><ol><li id="fn-1">Note.</li></ol></div></div>`,
	}, {
		description: "macro with argument",
		src:         `\newcommand{\hi}[1]{Hello, \textbf{#1}!}\hi{World}`,
		want:        `<div class="body"><p>Hello, <b>World</b>!</p></div>`,
	}, {
		description: "verbatim",
		src:         "\\begin{verbatim}\na < b\n\\end{verbatim}",
		want:        "<div class=\"body\"><pre class=\"verbatim\">a &lt; b\n</pre></div>",
	}, {
		description: "escaped specials",
		src:         `50\% of \$10 \& more`,
		want:        `<div class="body"><p>50% of $10 &amp; more</p></div>`,
	}, {
		description: "href",
		src:         `\href{https://example.com}{site}`,
		want:        `<div class="body"><p><a href="https://example.com">site</a></p></div>`,
	}}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			doc, err := newConverter().Convert(tt.src)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, doc.BodyHTML()); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestConvertErrors(t *testing.T) {
	type TestTable struct {
		description string
		src         string
		wantMsg     string
	}

	tests := []TestTable{{
		description: "unbalanced dollar",
		src:         "Unbalanced $x^2",
		wantMsg:     "unterminated math: missing $",
	}, {
		description: "unknown macro",
		src:         `\foo`,
		wantMsg:     `unknown macro: \foo`,
	}, {
		description: "unclosed list",
		src:         `\begin{itemize}\item a`,
		wantMsg:     `missing \end{itemize}`,
	}, {
		description: "mismatched environment",
		src:         `\begin{center}x\end{quote}`,
		wantMsg:     `\begin{center} on line 1 ended by \end{quote}`,
	}, {
		description: "unknown environment",
		src:         `\begin{tikzpicture}\end{tikzpicture}`,
		wantMsg:     "unknown environment: tikzpicture",
	}, {
		description: "superscript outside math",
		src:         `x^2`,
		wantMsg:     "character ^ is only allowed in math mode",
	}, {
		description: "text in preamble",
		src:         "\\documentclass{article}\nHello",
		wantMsg:     `missing \begin{document}`,
	}, {
		description: "document never begun",
		src:         `\documentclass{article}`,
		wantMsg:     `missing \begin{document}`,
	}, {
		description: "missing argument",
		src:         `\textbf`,
		wantMsg:     `missing argument for \textbf`,
	}, {
		description: "stray close brace",
		src:         `a}`,
		wantMsg:     "unexpected }",
	}, {
		description: "math error",
		src:         `$\bad$`,
		wantMsg:     `math: Undefined control sequence: \bad`,
	}, {
		description: "recursive macro",
		src:         `\newcommand{\again}{\again}\again`,
		wantMsg:     `macro expansion too deep in \again`,
	}, {
		description: "maketitle without title",
		src:         `\maketitle`,
		wantMsg:     `no \title given`,
	}}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			_, err := newConverter().Convert(tt.src)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.wantMsg)
			}
			var convErr *Error
			if !errors.As(err, &convErr) {
				t.Fatalf("expected *Error, got %#v", err)
			}
			if diff := cmp.Diff(tt.wantMsg, convErr.Msg); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestConvertDocument(t *testing.T) {
	src := `
\documentclass{article}
\begin{document}
\title{A Research Paper}
\author{Your Name}
\maketitle

\begin{abstract}
This is the abstract.
\end{abstract}

\section{Introduction}
This is a sample LaTeX document with math: $E = mc^2$.

\section{Method}
You can write equations like this:
\[
    \int_0^{\infty} e^{-x^2} dx = \frac{\sqrt{\pi}}{2}
\]

\end{document}
ignored trailing text
`
	doc, err := newConverter().Convert(src)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("A Research Paper", doc.Title); diff != "" {
		t.Error(diff)
	}
	got := doc.OuterHTML()
	for _, want := range []string{
		`<title>A Research Paper</title>`,
		`<div class="title"><h1>A Research Paper</h1><div class="author">Your Name</div><div class="date">January 2, 2006</div></div>`,
		`<div class="abstract"><h3 class="abstract-title">Abstract</h3><p>This is the abstract.</p></div>`,
		`<h2 id="sec-1"><span class="secnum">1</span> Introduction</h2>`,
		`<h2 id="sec-2"><span class="secnum">2</span> Method</h2>`,
		`<span class="math"><math><mi>E = mc^2</mi></math></span>`,
		`<span class="math display">`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output does not contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ignored trailing text") {
		t.Errorf("content after \\end{document} was rendered:\n%s", got)
	}
}

func TestConvertWithoutTypesetter(t *testing.T) {
	var c Converter
	doc, err := c.Convert(`$a<b$`)
	if err != nil {
		t.Fatal(err)
	}
	want := `<div class="body"><p><span class="math">a&lt;b</span></p></div>`
	if diff := cmp.Diff(want, doc.BodyHTML()); diff != "" {
		t.Error(diff)
	}
}
