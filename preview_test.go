package latexeditor

import (
	"encoding/json"
	"errors"
	"html"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/unmatched78/latex-editor/internal/mathspan"
)

type recordingTypesetter struct {
	mu      sync.Mutex
	display []bool
}

func (ts *recordingTypesetter) Typeset(expr string, display bool) (string, error) {
	ts.mu.Lock()
	ts.display = append(ts.display, display)
	ts.mu.Unlock()
	switch expr {
	case "bad":
		return "", errors.New("unknown command \\bad")
	case "boom":
		panic("boom")
	}
	return `<math display="block"><mi>` + html.EscapeString(expr) + `</mi></math>`, nil
}

func TestRenderMath(t *testing.T) {
	typesetter := &recordingTypesetter{}
	spans := []mathspan.Span{
		{Expr: "x"},
		{Expr: "bad"},
		{Expr: "boom"},
		{Expr: "y", Display: true},
	}
	units := RenderMath(spans, typesetter)
	want := []MathUnit{
		{Index: 0, Expr: "x", MathML: `<math display="block"><mi>x</mi></math>`},
		{Index: 1, Expr: "bad", Err: `unknown command \bad`},
		{Index: 2, Expr: "boom", Err: "panic: boom"},
		{Index: 3, Expr: "y", Display: true, MathML: `<math display="block"><mi>y</mi></math>`},
	}
	if diff := cmp.Diff(want, units); diff != "" {
		t.Error(diff)
	}
	for i, display := range typesetter.display {
		if !display {
			t.Errorf("span %d: expected display style", i)
		}
	}
	if units := RenderMath(nil, typesetter); len(units) != 0 {
		t.Errorf("expected no units, got %#v", units)
	}
}

func TestRenderMathSanitizes(t *testing.T) {
	typesetter := TypesetterFunc(func(expr string, display bool) (string, error) {
		return `<math><mi onclick="alert(1)">x</mi><script>alert(1)</script></math>`, nil
	})
	units := RenderMath([]mathspan.Span{{Expr: "x"}}, typesetter)
	got := string(units[0].MathML)
	if strings.Contains(got, "onclick") || strings.Contains(got, "<script") {
		t.Errorf("unsanitized MathML: %q", got)
	}
	if !strings.Contains(got, "<mi>x</mi>") {
		t.Errorf("expected MathML to survive sanitization, got %q", got)
	}
}

func TestComputeSample(t *testing.T) {
	preview := NewRenderer().Compute(SampleText)
	if len(preview.Math) != 2 {
		t.Fatalf("expected 2 math units, got %d: %#v", len(preview.Math), preview.Math)
	}
	if got := preview.Math[0]; got.Expr != "E = mc^2" || got.Display || got.Err != "" || got.MathML == "" {
		t.Errorf("unexpected inline unit %#v", got)
	}
	if got := preview.Math[1]; !strings.Contains(got.Expr, `\int_0^{\infty}`) || !got.Display || got.Err != "" || got.MathML == "" {
		t.Errorf("unexpected display unit %#v", got)
	}
	for i, want := range [][]string{
		{"<mi>E</mi>", "<msup>", "<mn>2</mn>"},
		{"<mfrac>", "<msqrt>", "<msup>"},
	} {
		for _, element := range want {
			if !strings.Contains(string(preview.Math[i].MathML), element) {
				t.Errorf("math unit %d lost %s in sanitization: %s", i, element, preview.Math[i].MathML)
			}
		}
	}
	if preview.Document.Err != "" {
		t.Fatalf("document: %s", preview.Document.Err)
	}
	if preview.Document.Title != "A Research Paper" {
		t.Errorf("expected title %q, got %q", "A Research Paper", preview.Document.Title)
	}
	for _, want := range []string{"A Research Paper", "Your Name", "This is the abstract.", "Introduction", "Method", "<math", "<msup>", "<mfrac>"} {
		if !strings.Contains(string(preview.Document.HTML), want) {
			t.Errorf("document HTML does not contain %q", want)
		}
	}
}

func TestComputeErrorsAreIndependent(t *testing.T) {
	type TestTable struct {
		description string
		text        string
		mathErrs    []bool
		documentErr bool
	}

	tests := []TestTable{{
		description: "no math",
		text:        "Hello world.",
		mathErrs:    []bool{},
		documentErr: false,
	}, {
		description: "bad math span does not affect the others",
		text:        `$\frac{1}$ and $x^2$`,
		mathErrs:    []bool{true, false},
		documentErr: true,
	}, {
		description: "bad document does not affect math",
		text:        "\\begin{itemize}\n\\item $x$\n",
		mathErrs:    []bool{false},
		documentErr: true,
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			preview := NewRenderer().Compute(tt.text)
			mathErrs := make([]bool, len(preview.Math))
			for i, unit := range preview.Math {
				mathErrs[i] = unit.Err != ""
				if (unit.Err == "") == (unit.MathML == "") {
					t.Errorf("unit %d: exactly one of MathML and Err must be set: %#v", i, unit)
				}
			}
			if diff := cmp.Diff(tt.mathErrs, mathErrs); diff != "" {
				t.Error(diff)
			}
			if got := preview.Document.Err != ""; got != tt.documentErr {
				t.Errorf("document error: want %v, got %v (%q)", tt.documentErr, got, preview.Document.Err)
			}
			if preview.Document.Err != "" && preview.Document.HTML != "" {
				t.Errorf("document has both HTML and an error")
			}
		})
	}
}

func TestPreviewJSON(t *testing.T) {
	b, err := json.Marshal(NewRenderer().Compute("no math here"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"math":[]`) {
		t.Errorf("expected an empty math array, got %s", b)
	}
}

func TestRenderDocumentSanitizes(t *testing.T) {
	preview := RenderDocument(`\href{javascript:alert(1)}{click}`, NewRenderer().Converter)
	if preview.Err != "" {
		t.Fatal(preview.Err)
	}
	if strings.Contains(string(preview.HTML), "javascript:") {
		t.Errorf("unsanitized link: %q", preview.HTML)
	}
	if !strings.Contains(string(preview.HTML), "click") {
		t.Errorf("expected link text to survive, got %q", preview.HTML)
	}
}

func TestDocument(t *testing.T) {
	renderer := NewRenderer()
	doc := NewDocument("a", renderer)
	doc.Append(`\alpha`)
	text, preview := doc.Append(`\beta`)
	if text != `a\alpha\beta` {
		t.Errorf("expected %q, got %q", `a\alpha\beta`, text)
	}
	if got := doc.Text(); got != text {
		t.Errorf("expected %q, got %q", text, got)
	}
	if diff := cmp.Diff(renderer.Compute(text), preview); diff != "" {
		t.Error(diff)
	}
	preview = doc.Replace("$x$")
	if diff := cmp.Diff(renderer.Compute("$x$"), preview); diff != "" {
		t.Error(diff)
	}
	text, snapshot := doc.Snapshot()
	if text != "$x$" {
		t.Errorf("expected %q, got %q", "$x$", text)
	}
	if diff := cmp.Diff(preview, snapshot); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff(preview, doc.Preview()); diff != "" {
		t.Error(diff)
	}
}

func TestDocumentAppendConcurrent(t *testing.T) {
	renderer := NewRenderer()
	doc := NewDocument("$x", renderer)
	type result struct {
		text    string
		preview Preview
	}
	results := make([]result, len(Palette))
	var wg sync.WaitGroup
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, preview := doc.Append(Palette[i].Symbol)
			results[i] = result{text: text, preview: preview}
		}()
	}
	wg.Wait()
	for i, result := range results {
		if !strings.HasSuffix(result.text, Palette[i].Symbol) {
			t.Errorf("%s: returned text %q does not end with the appended symbol", Palette[i].Symbol, result.text)
		}
		if diff := cmp.Diff(renderer.Compute(result.text), result.preview); diff != "" {
			t.Errorf("%s: preview does not belong to the returned text: %s", Palette[i].Symbol, diff)
		}
	}
	if got := len(doc.Text()); got != len("$x")+len(strings.Join(symbolsOf(Palette), "")) {
		t.Errorf("expected every symbol to be appended, got %q", doc.Text())
	}
}

func symbolsOf(palette []PaletteEntry) []string {
	symbols := make([]string, 0, len(palette))
	for _, entry := range palette {
		symbols = append(symbols, entry.Symbol)
	}
	return symbols
}

func TestPalette(t *testing.T) {
	var symbols []string
	for _, entry := range Palette {
		symbols = append(symbols, entry.Symbol)
	}
	want := []string{`\alpha`, `\beta`, `\gamma`, `\sum`, `\int`, `\sqrt{}`, `\frac{}{}`, `\infty`}
	if diff := cmp.Diff(want, symbols); diff != "" {
		t.Error(diff)
	}
	if _, ok := LookupSymbol(`\delta`); ok {
		t.Errorf(`\delta should not be in the palette`)
	}
}
