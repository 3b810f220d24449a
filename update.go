package latexeditor

import (
	"fmt"
	"net/http"
	"strings"
)

// EditResponse is the result of an edit: the new text and its preview.
type EditResponse struct {
	Text    string  `json:"text"`
	Preview Preview `json:"preview"`
}

// update replaces the document text with the submitted text.
func (ed *Editor) update(w http.ResponseWriter, r *http.Request, sess *session) {
	if r.Method != "POST" {
		ed.MethodNotAllowed(w, r)
		return
	}
	if !r.PostForm.Has("text") {
		ed.BadRequest(w, r, fmt.Errorf("missing text"))
		return
	}
	if !sess.limiter.Allow() {
		ed.TooManyRequests(w, r)
		return
	}
	text := r.PostForm.Get("text")
	if !r.Form.Has("api") {
		// Browsers submit textarea contents with CRLF line endings.
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	preview := sess.document.Replace(text)
	ed.respondEdit(w, r, EditResponse{Text: text, Preview: preview})
}

// insert appends a palette symbol to the document text.
func (ed *Editor) insert(w http.ResponseWriter, r *http.Request, sess *session) {
	if r.Method != "POST" {
		ed.MethodNotAllowed(w, r)
		return
	}
	entry, ok := LookupSymbol(r.PostForm.Get("symbol"))
	if !ok {
		ed.BadRequest(w, r, fmt.Errorf("unknown symbol %q", r.PostForm.Get("symbol")))
		return
	}
	if !sess.limiter.Allow() {
		ed.TooManyRequests(w, r)
		return
	}
	text, preview := sess.document.Append(entry.Symbol)
	ed.respondEdit(w, r, EditResponse{Text: text, Preview: preview})
}

// reset restores the sample document.
func (ed *Editor) reset(w http.ResponseWriter, r *http.Request, sess *session) {
	if r.Method != "POST" {
		ed.MethodNotAllowed(w, r)
		return
	}
	if !sess.limiter.Allow() {
		ed.TooManyRequests(w, r)
		return
	}
	preview := sess.document.Replace(ed.SampleText)
	ed.respondEdit(w, r, EditResponse{Text: ed.SampleText, Preview: preview})
}

func (ed *Editor) respondEdit(w http.ResponseWriter, r *http.Request, response EditResponse) {
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusOK, &response)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
