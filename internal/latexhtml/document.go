// Package latexhtml converts LaTeX documents into HTML documents.
//
// It understands the everyday subset of LaTeX used for articles (sectioning,
// lists, font commands, footnotes, cross-references, simple \newcommand
// macros and math) and reports anything else as an *Error rather than
// guessing. Math is handed to a MathTypesetter and embedded as MathML.
package latexhtml

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Error is a conversion error at a position in the LaTeX source.
type Error struct {
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Column) + ": " + e.Msg
}

// Document is a converted LaTeX document.
type Document struct {
	// Title is the plain text of \title, or empty.
	Title string

	// Root is the <html> element.
	Root *html.Node

	// Body is the <div class="body"> element holding the rendered content.
	Body *html.Node
}

// OuterHTML returns the markup of the whole <html> element.
func (doc *Document) OuterHTML() string {
	return render(doc.Root)
}

// BodyHTML returns the markup of the body container, suitable for embedding
// in another page.
func (doc *Document) BodyHTML() string {
	return render(doc.Body)
}

func render(node *html.Node) string {
	var b strings.Builder
	err := html.Render(&b, node)
	if err != nil {
		// html.Render only fails when the writer fails, and strings.Builder
		// never does.
		panic(err)
	}
	return b.String()
}

func newDocument() *Document {
	root := element(atom.Html)
	root.Attr = []html.Attribute{{Key: "lang", Val: "en"}}
	head := element(atom.Head)
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "UTF-8"}}
	head.AppendChild(meta)
	root.AppendChild(head)
	body := element(atom.Body)
	root.AppendChild(body)
	container := element(atom.Div, "body")
	body.AppendChild(container)
	return &Document{Root: root, Body: container}
}

func (doc *Document) setTitle(title string) {
	doc.Title = title
	if title == "" {
		title = "Document"
	}
	head := doc.Root.FirstChild
	node := element(atom.Title)
	node.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	head.AppendChild(node)
}

// element creates an element with an optional class attribute.
func element(a atom.Atom, class ...string) *html.Node {
	node := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if len(class) > 0 {
		node.Attr = append(node.Attr, html.Attribute{Key: "class", Val: strings.Join(class, " ")})
	}
	return node
}

func setAttr(node *html.Node, key, val string) {
	for i := range node.Attr {
		if node.Attr[i].Key == key {
			node.Attr[i].Val = val
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: val})
}

func appendText(parent *html.Node, s string) {
	if s == "" {
		return
	}
	if last := parent.LastChild; last != nil && last.Type == html.TextNode {
		if strings.HasSuffix(last.Data, " ") {
			s = strings.TrimLeft(s, " ")
		}
		last.Data += s
		return
	}
	if parent.FirstChild == nil && parent.DataAtom == atom.P {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return
		}
	}
	parent.AppendChild(&html.Node{Type: html.TextNode, Data: s})
}

// textContent returns the concatenated text of node and its descendants.
func textContent(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return strings.TrimSpace(b.String())
}

// trimTrailingSpace removes trailing spaces from the last text node of p.
func trimTrailingSpace(p *html.Node) {
	last := p.LastChild
	for last != nil && last.Type == html.ElementNode && last.LastChild != nil {
		last = last.LastChild
	}
	if last != nil && last.Type == html.TextNode {
		last.Data = strings.TrimRight(last.Data, " ")
	}
}
