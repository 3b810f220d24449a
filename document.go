package latexeditor

import (
	"sync"
)

// Document is the text being edited in one session together with its
// Preview. Every mutation recomputes the Preview before returning, so a
// reader never observes a Preview that does not belong to the current text.
type Document struct {
	renderer *Renderer

	mu      sync.Mutex
	text    string
	preview Preview
}

// NewDocument returns a Document holding text.
func NewDocument(text string, renderer *Renderer) *Document {
	return &Document{
		renderer: renderer,
		text:     text,
		preview:  renderer.Compute(text),
	}
}

// Replace adopts text verbatim as the new document text.
func (doc *Document) Replace(text string) Preview {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	doc.text = text
	doc.preview = doc.renderer.Compute(text)
	return doc.preview
}

// Append adds symbol to the end of the document text and returns the
// resulting text with its Preview.
func (doc *Document) Append(symbol string) (string, Preview) {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	doc.text += symbol
	doc.preview = doc.renderer.Compute(doc.text)
	return doc.text, doc.preview
}

// Text returns the current document text.
func (doc *Document) Text() string {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.text
}

// Preview returns the Preview of the current document text.
func (doc *Document) Preview() Preview {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.preview
}

// Snapshot returns the current text and its Preview as a consistent pair.
func (doc *Document) Snapshot() (string, Preview) {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return doc.text, doc.preview
}
