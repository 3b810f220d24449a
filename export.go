package latexeditor

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// Export is a downloadable file built from the document text.
type Export struct {
	Name        string
	ContentType string
	Body        []byte
}

// NewExport packages text as document.tex. The body is exactly the text.
func NewExport(text string) Export {
	return Export{
		Name:        "document.tex",
		ContentType: "text/x-tex",
		Body:        []byte(text),
	}
}

// Serve writes the export as an attachment response. The reader over the
// body lives only for the duration of the write.
func (export Export) Serve(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", export.ContentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(export.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == "HEAD" {
		return nil
	}
	_, err := io.Copy(w, bytes.NewReader(export.Body))
	return err
}

func (ed *Editor) export(w http.ResponseWriter, r *http.Request, sess *session) {
	if r.Method != "GET" && r.Method != "HEAD" {
		ed.MethodNotAllowed(w, r)
		return
	}
	err := NewExport(sess.document.Text()).Serve(w, r)
	if err != nil {
		// The client went away mid-download. Nothing to recover.
		ed.GetLogger(r.Context()).Debug("export interrupted", slog.String("error", err.Error()))
	}
}
