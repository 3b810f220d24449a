// Package markdownmath is a goldmark extension that typesets ```math fenced
// code blocks as display math.
package markdownmath

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Typesetter renders a math expression as MathML.
type Typesetter interface {
	Typeset(expr string, display bool) (string, error)
}

// New returns an extension that typesets math blocks with typesetter. A block
// that fails to typeset is rendered as <pre class="math-error"> holding the
// error message.
func New(typesetter Typesetter) goldmark.Extender {
	return mathExtension{typesetter: typesetter}
}

type mathExtension struct {
	typesetter Typesetter
}

func (e mathExtension) Extend(markdown goldmark.Markdown) {
	markdown.Parser().AddOptions(
		parser.WithASTTransformers(
			util.Prioritized(mathTransformer{}, 100),
		),
	)
	markdown.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(mathRenderer{typesetter: e.typesetter}, 100),
		),
	)
}

// MathBlock is a ```math fenced code block.
type MathBlock struct {
	ast.BaseBlock
}

// KindMathBlock is the ast.NodeKind of a MathBlock.
var KindMathBlock = ast.NewNodeKind("MathBlock")

var _ ast.Node = (*MathBlock)(nil)

func (n *MathBlock) Kind() ast.NodeKind {
	return KindMathBlock
}

func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

type mathTransformer struct{}

var _ parser.ASTTransformer = (*mathTransformer)(nil)

func (t mathTransformer) Transform(document *ast.Document, reader text.Reader, _ parser.Context) {
	var nodes []ast.Node
	ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fencedCodeBlock, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if !bytes.Equal(fencedCodeBlock.Language(reader.Source()), []byte("math")) {
			return ast.WalkContinue, nil
		}
		nodes = append(nodes, fencedCodeBlock)
		return ast.WalkContinue, nil
	})
	for _, node := range nodes {
		parent := node.Parent()
		if parent != nil {
			mathBlock := &MathBlock{}
			mathBlock.SetLines(node.Lines())
			parent.ReplaceChild(parent, node, mathBlock)
		}
	}
}

type mathRenderer struct {
	typesetter Typesetter
}

var _ renderer.NodeRenderer = (*mathRenderer)(nil)

func (r mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMathBlock, func(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var length int
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			length += len(line.Value(source))
		}
		var b strings.Builder
		b.Grow(length)
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.Write(line.Value(source))
		}
		mathml, err := r.typesetter.Typeset(strings.TrimSpace(b.String()), true)
		if err != nil {
			w.WriteString(`<pre class="math-error">` + html.EscapeString(err.Error()) + "</pre>\n")
			return ast.WalkContinue, nil
		}
		w.WriteString(mathml)
		w.WriteString("\n")
		return ast.WalkContinue, nil
	})
}
