package latexeditor

import (
	"html/template"
	"net/http"
)

var editorTemplate = template.Must(template.
	New("editor.html").
	Funcs(baseFuncMap).
	ParseFS(RuntimeFS, "embed/editor.html", "embed/preview.html"),
)

func (ed *Editor) index(w http.ResponseWriter, r *http.Request, sess *session) {
	type Response struct {
		Text          string         `json:"text"`
		Preview       Preview        `json:"preview"`
		Palette       []PaletteEntry `json:"palette"`
		Version       string         `json:"version,omitempty"`
		StylesCSSHash string         `json:"-"`
		EditorJSHash  string         `json:"-"`
	}
	if r.Method != "GET" && r.Method != "HEAD" {
		ed.MethodNotAllowed(w, r)
		return
	}
	var response Response
	response.Text, response.Preview = sess.document.Snapshot()
	response.Palette = Palette
	response.Version = Version
	response.StylesCSSHash = StylesCSSHash
	response.EditorJSHash = EditorJSHash
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusOK, &response)
		return
	}
	ed.ExecuteTemplate(w, r, editorTemplate, &response)
}
