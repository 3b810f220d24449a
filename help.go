package latexeditor

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	fences "github.com/stefanfritsch/goldmark-fences"
	"github.com/unmatched78/latex-editor/internal/highlighting"
	"github.com/unmatched78/latex-editor/internal/markdownmath"
	"github.com/unmatched78/latex-editor/internal/texmath"
	"github.com/unmatched78/latex-editor/stacktrace"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// NewMarkdown returns the goldmark instance used to render the help page.
// Fenced code blocks are highlighted, ```math blocks are typeset and :::
// fences become divs.
func NewMarkdown(typesetter markdownmath.Typesetter) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("onedark"),
				highlighting.WithFormatOptions(chromahtml.TabWidth(2)),
			),
			extension.Table,
			extension.Footnote,
			markdownmath.New(typesetter),
			&fences.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
		),
	)
}

var helpTemplate = template.Must(template.
	New("help.html").
	Funcs(baseFuncMap).
	ParseFS(RuntimeFS, "embed/help.html"),
)

var helpPage = struct {
	once sync.Once
	html string
	err  error
}{}

func (ed *Editor) help(w http.ResponseWriter, r *http.Request) {
	type Response struct {
		Content       string
		Version       string
		StylesCSSHash string
	}
	if r.Method != "GET" && r.Method != "HEAD" {
		ed.MethodNotAllowed(w, r)
		return
	}
	helpPage.once.Do(func() {
		b, err := fs.ReadFile(RuntimeFS, "embed/help.md")
		if err != nil {
			helpPage.err = stacktrace.New(err)
			return
		}
		var buf bytes.Buffer
		err = NewMarkdown(texmath.Typesetter{}).Convert(b, &buf)
		if err != nil {
			helpPage.err = stacktrace.Errorf("rendering help.md: %w", err)
			return
		}
		helpPage.html = buf.String()
	})
	if helpPage.err != nil {
		ed.GetLogger(r.Context()).Error(helpPage.err.Error())
		ed.InternalServerError(w, r, helpPage.err)
		return
	}
	ed.ExecuteTemplate(w, r, helpTemplate, &Response{
		Content:       helpPage.html,
		Version:       Version,
		StylesCSSHash: StylesCSSHash,
	})
}
