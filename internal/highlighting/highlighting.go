// Package highlighting is a goldmark extension that syntax highlights fenced
// code blocks with chroma.
package highlighting

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// Option configures the Highlighting extension.
type Option func(*Highlighting)

// WithStyle sets the chroma style by name. Unknown names fall back to
// chroma's default style.
func WithStyle(style string) Option {
	return func(h *Highlighting) {
		h.style = style
	}
}

// WithFormatOptions passes options on to the chroma HTML formatter.
func WithFormatOptions(opts ...chromahtml.Option) Option {
	return func(h *Highlighting) {
		h.formatOptions = append(h.formatOptions, opts...)
	}
}

// Highlighting is a goldmark extension that renders fenced code blocks with
// a recognized language as highlighted HTML. Code blocks without a language,
// or with one chroma does not know, are rendered as plain escaped code.
type Highlighting struct {
	style         string
	formatOptions []chromahtml.Option
}

// NewHighlighting returns a new Highlighting extension.
func NewHighlighting(opts ...Option) *Highlighting {
	h := &Highlighting{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Highlighting) Extend(markdown goldmark.Markdown) {
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(h, 200),
		),
	)
}

func (h *Highlighting) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, h.renderFencedCodeBlock)
}

func (h *Highlighting) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	codeBlock := node.(*ast.FencedCodeBlock)
	language := string(codeBlock.Language(source))
	var b strings.Builder
	lines := codeBlock.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
	code := b.String()
	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		writePlain(w, language, code)
		return ast.WalkContinue, nil
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		writePlain(w, language, code)
		return ast.WalkContinue, nil
	}
	formatter := chromahtml.New(h.formatOptions...)
	err = formatter.Format(w, styles.Get(h.style), iterator)
	if err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkContinue, nil
}

func writePlain(w util.BufWriter, language, code string) {
	w.WriteString("<pre><code")
	if language != "" {
		w.WriteString(` class="language-`)
		w.Write(util.EscapeHTML([]byte(language)))
		w.WriteString(`"`)
	}
	w.WriteString(">")
	w.Write(util.EscapeHTML([]byte(code)))
	w.WriteString("</code></pre>\n")
}
