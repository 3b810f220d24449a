package latexeditor

import (
	"errors"
	"html/template"
	"net/http"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/unmatched78/latex-editor/internal/latexhtml"
	"github.com/unmatched78/latex-editor/internal/mathspan"
	"github.com/unmatched78/latex-editor/internal/texmath"
	"github.com/unmatched78/latex-editor/stacktrace"
	"golang.org/x/sync/errgroup"
)

// Typesetter renders a single math expression as MathML markup.
type Typesetter interface {
	Typeset(expr string, display bool) (string, error)
}

// TypesetterFunc adapts an ordinary function to the Typesetter interface.
type TypesetterFunc func(expr string, display bool) (string, error)

func (f TypesetterFunc) Typeset(expr string, display bool) (string, error) {
	return f(expr, display)
}

// Converter converts a whole LaTeX document into HTML.
type Converter interface {
	Convert(text string) (*latexhtml.Document, error)
}

// MathUnit is the rendered form of one math span. Exactly one of MathML and
// Err is set.
type MathUnit struct {
	Index   int           `json:"index"`
	Expr    string        `json:"expr"`
	Display bool          `json:"display"`
	MathML  template.HTML `json:"mathml,omitempty"`
	Err     string        `json:"error,omitempty"`
}

// DocumentPreview is the rendered form of the whole document. Exactly one of
// HTML and Err is set.
type DocumentPreview struct {
	Title string        `json:"title,omitempty"`
	HTML  template.HTML `json:"html,omitempty"`
	Err   string        `json:"error,omitempty"`
}

// Preview holds everything derived from a document's text.
type Preview struct {
	Math     []MathUnit      `json:"math"`
	Document DocumentPreview `json:"document"`
}

// Renderer computes previews using a math typesetter and a document
// converter.
type Renderer struct {
	Typesetter Typesetter
	Converter  Converter
}

// NewRenderer returns a Renderer that typesets math with texmath and converts
// documents with latexhtml.
func NewRenderer() *Renderer {
	typesetter := texmath.Typesetter{}
	return &Renderer{
		Typesetter: typesetter,
		Converter:  &latexhtml.Converter{Typesetter: typesetter},
	}
}

// Compute derives the full Preview of text. The math preview and the
// document preview are computed concurrently and fail independently.
func (rd *Renderer) Compute(text string) Preview {
	var preview Preview
	var group errgroup.Group
	group.Go(func() error {
		preview.Math = RenderMath(mathspan.Extract(text), rd.Typesetter)
		return nil
	})
	group.Go(func() error {
		preview.Document = RenderDocument(text, rd.Converter)
		return nil
	})
	group.Wait()
	if preview.Math == nil {
		preview.Math = []MathUnit{}
	}
	return preview
}

// RenderMath typesets every span in display style, in span order. A span
// that fails to typeset becomes a failure unit without affecting the others.
func RenderMath(spans []mathspan.Span, typesetter Typesetter) []MathUnit {
	if len(spans) == 0 {
		return nil
	}
	units := make([]MathUnit, len(spans))
	for i, span := range spans {
		units[i] = MathUnit{
			Index:   i,
			Expr:    span.Expr,
			Display: span.Display,
		}
		mathml, err := typeset(typesetter, span.Expr)
		if err != nil {
			units[i].Err = errorMessage(err)
			continue
		}
		units[i].MathML = template.HTML(previewPolicy.Sanitize(mathml))
	}
	return units
}

func typeset(typesetter Typesetter, expr string) (mathml string, err error) {
	defer stacktrace.RecoverPanic(&err)
	return typesetter.Typeset(expr, true)
}

// RenderDocument converts the whole text into sanitized HTML, or reports why
// it could not.
func RenderDocument(text string, converter Converter) DocumentPreview {
	doc, err := convert(converter, text)
	if err != nil {
		return DocumentPreview{Err: errorMessage(err)}
	}
	return DocumentPreview{
		Title: doc.Title,
		HTML:  template.HTML(previewPolicy.Sanitize(doc.BodyHTML())),
	}
}

func convert(converter Converter, text string) (doc *latexhtml.Document, err error) {
	defer stacktrace.RecoverPanic(&err)
	return converter.Convert(text)
}

// errorMessage returns the message of err without any stack trace.
func errorMessage(err error) string {
	var stackTraceErr *stacktrace.Error
	if errors.As(err, &stackTraceErr) {
		return stackTraceErr.Err.Error()
	}
	return err.Error()
}

var mathMLElements = []string{
	"math", "semantics", "annotation", "annotation-xml", "mrow", "mi", "mn",
	"mo", "ms", "mtext", "mspace", "msup", "msub", "msubsup", "mfrac",
	"msqrt", "mroot", "mover", "munder", "munderover", "mtable", "mtr",
	"mtd", "mlabeledtr", "mstyle", "mpadded", "mphantom", "menclose",
	"merror", "mfenced", "mmultiscripts", "mprescripts", "none",
}

var mathMLAttributes = []string{
	"xmlns", "display", "mathvariant", "mathsize", "mathcolor",
	"mathbackground", "stretchy", "fence", "separator", "separators",
	"lspace", "rspace", "accent", "accentunder", "movablelimits", "largeop",
	"symmetric", "minsize", "maxsize", "linethickness", "columnalign",
	"rowalign", "columnspacing", "rowspacing", "columnlines", "rowlines",
	"frame", "width", "height", "depth", "displaystyle", "scriptlevel",
	"notation", "encoding", "form", "open", "close", "voffset", "align",
	"bevelled",
}

// previewPolicy sanitizes everything derived from user text before it is
// embedded in a page. It permits MathML and the classes and ids the
// converter emits.
var previewPolicy = func() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9_ -]+$`)).Globally()
	policy.AllowAttrs("id").Matching(regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)).Globally()
	policy.AllowElements(mathMLElements...)
	// Most MathML elements carry no attributes and would otherwise be
	// dropped, flattening the formula to its text.
	policy.AllowNoAttrs().OnElements(mathMLElements...)
	policy.AllowAttrs(mathMLAttributes...).OnElements(mathMLElements...)
	return policy
}()

func (ed *Editor) preview(w http.ResponseWriter, r *http.Request, sess *session) {
	if r.Method != "GET" && r.Method != "HEAD" {
		ed.MethodNotAllowed(w, r)
		return
	}
	preview := sess.document.Preview()
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusOK, preview)
		return
	}
	ed.ExecuteTemplate(w, r, previewTemplate, preview)
}

var previewTemplate = template.Must(template.
	New("preview.html").
	Funcs(baseFuncMap).
	ParseFS(RuntimeFS, "embed/preview.html"),
)
