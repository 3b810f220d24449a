package markdownmath

import (
	"bytes"
	"errors"
	"html"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yuin/goldmark"
)

type fakeTypesetter struct{}

func (fakeTypesetter) Typeset(expr string, display bool) (string, error) {
	if expr == `\bad` {
		return "", errors.New("unknown command \\bad")
	}
	mode := "inline"
	if display {
		mode = "block"
	}
	return `<math display="` + mode + `"><mi>` + html.EscapeString(expr) + `</mi></math>`, nil
}

func TestMathBlock(t *testing.T) {
	type TestTable struct {
		description string
		markdown    string
		want        string
	}

	tests := []TestTable{{
		description: "math block",
		markdown:    "```math\nx^2\n```\n",
		want:        "<math display=\"block\"><mi>x^2</mi></math>\n",
	}, {
		description: "typeset error",
		markdown:    "```math\n\\bad\n```\n",
		want:        "<pre class=\"math-error\">unknown command \\bad</pre>\n",
	}, {
		description: "other languages are untouched",
		markdown:    "```go\nx := 1\n```\n",
		want:        "<pre><code class=\"language-go\">x := 1\n</code></pre>\n",
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			markdown := goldmark.New(goldmark.WithExtensions(New(fakeTypesetter{})))
			var buf bytes.Buffer
			err := markdown.Convert([]byte(tt.markdown), &buf)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, buf.String()); diff != "" {
				t.Error(diff)
			}
		})
	}
}
