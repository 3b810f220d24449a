package mathspan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtract(t *testing.T) {
	type TestTable struct {
		description string
		text        string
		want        []string
	}

	tests := []TestTable{{
		description: "no delimiters",
		text:        "plain text with no math at all",
		want:        nil,
	}, {
		description: "empty text",
		text:        "",
		want:        nil,
	}, {
		description: "one inline pair",
		text:        "energy $a$ here",
		want:        []string{"a"},
	}, {
		description: "inline pairs are shortest-match",
		text:        "$a$ and $b$",
		want:        []string{"a", "b"},
	}, {
		description: "unbalanced inline delimiter",
		text:        "Unbalanced $x^2",
		want:        nil,
	}, {
		description: "inline span cannot cross a newline",
		text:        "$a\nb$",
		want:        nil,
	}, {
		description: "inline span cannot cross a carriage return",
		text:        "$a\rb$ $c$",
		want:        []string{" "},
	}, {
		description: "failed opener lets the next dollar open",
		text:        "$a\n$b$",
		want:        []string{"b"},
	}, {
		description: "adjacent dollars give an empty span",
		text:        "$$",
		want:        []string{""},
	}, {
		description: "escaped dollar still delimits",
		text:        `price \$5$ total`,
		want:        []string{"5"},
	}, {
		description: "display spans over lines",
		text:        "\\[\n  x + y\n\\]",
		want:        []string{"\n  x + y\n"},
	}, {
		description: "display spans are shortest-match",
		text:        `\[a\] text \[b\]`,
		want:        []string{"a", "b"},
	}, {
		description: "unclosed display block",
		text:        `\[a + b`,
		want:        nil,
	}, {
		description: "inline results precede display results",
		text:        `\[d\] then $i$`,
		want:        []string{"i", "d"},
	}, {
		description: "inline pair inside a display block is extracted twice",
		text:        `\[ $x$ \]`,
		want:        []string{"x", " $x$ "},
	}}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			got := Exprs(Extract(tt.text))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestExtractKinds(t *testing.T) {
	spans := Extract(`\[b\] $a$`)
	want := []Span{
		{Expr: "a", Display: false},
		{Expr: "b", Display: true},
	}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractIdempotent(t *testing.T) {
	text := "$E = mc^2$ and \\[\n\\int_0^1 x\\,dx\n\\]"
	first := Extract(text)
	second := Extract(text)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated extraction differs (-first +second):\n%s", diff)
	}
}
