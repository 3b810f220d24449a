package latexeditor

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/unmatched78/latex-editor/stacktrace"
	"golang.org/x/crypto/blake2b"
)

// staticFileTypes maps the extensions of files under static/ to their
// Content-Type.
var staticFileTypes = map[string]string{
	".js":  "text/javascript; charset=utf-8",
	".css": "text/css; charset=utf-8",
	".svg": "image/svg+xml",
	".ico": "image/x-icon",
}

func (ed *Editor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scheme := "https://"
	if r.TLS == nil {
		scheme = "http://"
	}
	// Redirect unclean paths to the clean path equivalent.
	if r.Method == "GET" || r.Method == "HEAD" {
		cleanPath := path.Clean(r.URL.Path)
		if cleanPath != "/" {
			_, ok := staticFileTypes[strings.ToLower(path.Ext(cleanPath))]
			if !ok {
				cleanPath += "/"
			}
		}
		if cleanPath != r.URL.Path {
			cleanURL := *r.URL
			cleanURL.Path = cleanPath
			http.Redirect(w, r, cleanURL.String(), http.StatusMovedPermanently)
			return
		}
	}
	ed.AddSecurityHeaders(w, r)
	r = r.WithContext(context.WithValue(r.Context(), LoggerKey, ed.Logger.With(
		slog.String("method", r.Method),
		slog.String("url", scheme+r.Host+r.URL.RequestURI()),
	)))
	if r.Body != nil && ed.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, ed.MaxBodySize)
	}
	err := r.ParseForm()
	if err != nil {
		ed.BadRequest(w, r, err)
		return
	}
	urlPath := strings.Trim(path.Clean(r.URL.Path), "/")
	head, _, _ := strings.Cut(urlPath, "/")
	switch head {
	case "static":
		ed.serveStatic(w, r, urlPath)
		return
	case "help":
		ed.help(w, r)
		return
	}
	sess, err := ed.getSession(w, r)
	if err != nil {
		ed.GetLogger(r.Context()).Error(err.Error())
		ed.InternalServerError(w, r, err)
		return
	}
	if sess.label != "" {
		r = r.WithContext(context.WithValue(r.Context(), LoggerKey, ed.GetLogger(r.Context()).With(
			slog.String("client", sess.label),
		)))
	}
	switch urlPath {
	case "":
		ed.index(w, r, sess)
	case "update":
		ed.update(w, r, sess)
	case "insert":
		ed.insert(w, r, sess)
	case "reset":
		ed.reset(w, r, sess)
	case "preview":
		ed.preview(w, r, sess)
	case "export":
		ed.export(w, r, sess)
	default:
		ed.NotFound(w, r)
	}
}

// AddSecurityHeaders adds certain headers to the response that enhance the
// security of the page.
func (ed *Editor) AddSecurityHeaders(w http.ResponseWriter, r *http.Request) {
	// https://cheatsheetseries.owasp.org/cheatsheets/HTTP_Headers_Cheat_Sheet.html
	w.Header().Add("X-Frame-Options", "DENY")
	w.Header().Add("X-Content-Type-Options", "nosniff")
	w.Header().Add("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Add("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
	w.Header().Add("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Add("Cross-Origin-Embedder-Policy", "credentialless")
	w.Header().Add("Cross-Origin-Resource-Policy", "same-origin")
	if r.TLS != nil {
		w.Header().Add("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	}
}

// serveStatic serves a file under static/ from RuntimeFS. Files are gzipped
// on the fly and cached by the client for a year; the templates bust the
// cache by appending the file's hash to its URL.
func (ed *Editor) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != "GET" && r.Method != "HEAD" {
		ed.MethodNotAllowed(w, r)
		return
	}
	contentType, ok := staticFileTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		ed.NotFound(w, r)
		return
	}
	file, err := RuntimeFS.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ed.NotFound(w, r)
			return
		}
		ed.GetLogger(r.Context()).Error(err.Error())
		ed.InternalServerError(w, r, err)
		return
	}
	defer file.Close()
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
	}()
	hasher := hashPool.Get().(hash.Hash)
	defer func() {
		hasher.Reset()
		hashPool.Put(hasher)
	}()
	gzipWriter := gzipWriterPool.Get().(*gzip.Writer)
	gzipWriter.Reset(io.MultiWriter(buf, hasher))
	defer func() {
		gzipWriter.Reset(io.Discard)
		gzipWriterPool.Put(gzipWriter)
	}()
	_, err = io.Copy(gzipWriter, file)
	if err == nil {
		err = gzipWriter.Close()
	}
	if err != nil {
		err = stacktrace.New(err)
		ed.GetLogger(r.Context()).Error(err.Error())
		ed.InternalServerError(w, r, err)
		return
	}
	var b [blake2b.Size256]byte
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Cache-Control", "max-age=31536000, immutable" /* 1 year */)
	w.Header().Set("ETag", `"`+hex.EncodeToString(hasher.Sum(b[:0]))+`"`)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(buf.Bytes()))
}
