package highlighting

import (
	"bytes"
	"strings"
	"testing"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/google/go-cmp/cmp"
	"github.com/yuin/goldmark"
)

func convert(t *testing.T, markdown string) string {
	t.Helper()
	md := goldmark.New(goldmark.WithExtensions(NewHighlighting(
		WithStyle("dracula"),
		WithFormatOptions(chromahtml.TabWidth(2)),
	)))
	var buf bytes.Buffer
	err := md.Convert([]byte(markdown), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestPlain(t *testing.T) {
	type TestTable struct {
		description string
		markdown    string
		want        string
	}

	tests := []TestTable{{
		description: "no language",
		markdown:    "```\na < b\n```\n",
		want:        "<pre><code>a &lt; b\n</code></pre>\n",
	}, {
		description: "unknown language",
		markdown:    "```nosuchlanguage\nx & y\n```\n",
		want:        "<pre><code class=\"language-nosuchlanguage\">x &amp; y\n</code></pre>\n",
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			got := convert(t, tt.markdown)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Error(diff)
			}
		})
	}
}

func TestHighlighted(t *testing.T) {
	got := convert(t, "```latex\n\\section{Intro}\n```\n")
	if !strings.HasPrefix(got, "<pre") {
		t.Fatalf("expected a <pre> block, got %q", got)
	}
	if !strings.Contains(got, "style=") {
		t.Errorf("expected inline styles, got %q", got)
	}
	if !strings.Contains(got, "section") {
		t.Errorf("expected the code to be preserved, got %q", got)
	}
}
