package latexeditor

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/oschwald/maxminddb-golang"
	"github.com/unmatched78/latex-editor/stacktrace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

// Editor represents a latexeditor instance. It serves the editor page and
// owns one Document per browser session.
type Editor struct {
	// Port is the port the editor listens on.
	Port int

	// Renderer computes the previews of every document.
	Renderer *Renderer

	// SampleText is the text every new document starts with.
	SampleText string

	// SessionTTL is how long a session may stay idle before its document is
	// discarded.
	SessionTTL time.Duration

	// EditLimit and EditBurst configure the per-session rate limiter applied
	// to edits.
	EditLimit rate.Limit
	EditBurst int

	// MaxBodySize caps the size of request bodies.
	MaxBodySize int64

	// ContentSecurityPolicy is the Content-Security-Policy header sent with
	// every HTML page.
	ContentSecurityPolicy string

	// Logger is used for reporting errors that cannot be handled and are
	// thrown away.
	Logger *slog.Logger

	// MaxMindDBReader, if set, resolves client IP addresses to countries for
	// session labels.
	MaxMindDBReader *maxminddb.Reader

	// ProxyConfig describes the reverse proxies in front of the editor.
	ProxyConfig struct {
		// RealIPHeaders maps trusted proxy IPs to the header they put the
		// real client IP in.
		RealIPHeaders map[netip.Addr]string

		// ProxyIPs is the set of proxy IPs trusted to set X-Forwarded-For.
		ProxyIPs map[netip.Addr]struct{}
	}

	// Mailer, if set, is used to send error reports.
	Mailer *Mailer

	// MailFrom is the sender address of error reports.
	MailFrom string

	// ErrorlogConfig configures error reports.
	ErrorlogConfig struct {
		// Email address to notify for errors.
		Email string
	}

	// BaseCtx is the base context of the editor instance.
	BaseCtx context.Context

	// baseCtxCancel cancels the base context.
	baseCtxCancel func()

	// BaseCtxWaitGroup tracks the number of background jobs spawned by the
	// editor. Each background job should take in the base context, and
	// should initiate shutdown when the base context is canceled.
	BaseCtxWaitGroup sync.WaitGroup

	sessionsMu sync.Mutex
	sessions   map[sessionKey]*session
}

// New returns a new Editor with default settings. Fields may be adjusted
// before the editor starts serving requests.
func New() *Editor {
	baseCtx, baseCtxCancel := context.WithCancel(context.Background())
	ed := &Editor{
		Port:                  6455,
		Renderer:              NewRenderer(),
		SampleText:            SampleText,
		SessionTTL:            24 * time.Hour,
		EditLimit:             30,
		EditBurst:             60,
		MaxBodySize:           1 << 20, // 1 MB
		ContentSecurityPolicy: DefaultContentSecurityPolicy,
		Logger:                slog.Default(),
		BaseCtx:               baseCtx,
		baseCtxCancel:         baseCtxCancel,
		sessions:              make(map[sessionKey]*session),
	}
	return ed
}

// Close shuts down the editor instance as well as any background jobs it may
// have spawned.
func (ed *Editor) Close() error {
	ed.baseCtxCancel()
	ed.BaseCtxWaitGroup.Wait()
	if ed.MaxMindDBReader != nil {
		ed.MaxMindDBReader.Close()
	}
	return nil
}

// DefaultContentSecurityPolicy only allows the editor's own scripts and
// stylesheets. Inline styles are allowed because typeset MathML carries
// style attributes.
const DefaultContentSecurityPolicy = "default-src 'none';" +
	" script-src 'self';" +
	" style-src 'self' 'unsafe-inline';" +
	" img-src 'self' data:;" +
	" connect-src 'self';" +
	" form-action 'self';" +
	" base-uri 'none';" +
	" frame-ancestors 'none';"

type contextKey struct{}

// LoggerKey is the key used by the editor for setting and getting a logger
// from the request context.
var LoggerKey = &contextKey{}

// GetLogger is a syntactic sugar operation for getting a request-specific
// logger from the context, or else it returns the default logger.
func (ed *Editor) GetLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return ed.Logger
}

// If a buffer's capacity exceeds this value, don't put it back in the pool
// because it's too expensive to keep it around in memory.
const maxPoolableBufferCapacity = 1 << 18

var bufPool = sync.Pool{
	New: func() any { return &bytes.Buffer{} },
}

var hashPool = sync.Pool{
	New: func() any {
		hash, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return hash
	},
}

var gzipWriterPool = sync.Pool{
	New: func() any {
		// Compression level 4 is the best balance between space and speed.
		gzipWriter, _ := gzip.NewWriterLevel(nil, 4)
		return gzipWriter
	},
}

// ExecuteTemplate renders a given template with the given data into the
// ResponseWriter, but it first buffers the HTML output so that it can detect
// if any template errors occurred, and if so return 500 Internal Server Error
// instead. Additionally, it gzips the response on the fly and sets an ETag so
// that the page may be cached by the client.
func (ed *Editor) ExecuteTemplate(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data any) {
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
	multiWriter := io.MultiWriter(buf, hasher)
	gzipWriter := gzipWriterPool.Get().(*gzip.Writer)
	gzipWriter.Reset(multiWriter)
	defer func() {
		gzipWriter.Reset(io.Discard)
		gzipWriterPool.Put(gzipWriter)
	}()
	err := tmpl.Execute(gzipWriter, data)
	if err != nil {
		err = stacktrace.New(err)
		ed.GetLogger(r.Context()).Error(err.Error())
		ed.InternalServerError(w, r, err)
		return
	}
	err = gzipWriter.Close()
	if err != nil {
		err = stacktrace.New(err)
		ed.GetLogger(r.Context()).Error(err.Error())
		ed.InternalServerError(w, r, err)
		return
	}
	var b [blake2b.Size256]byte
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Security-Policy", ed.ContentSecurityPolicy)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", `"`+hex.EncodeToString(hasher.Sum(b[:0]))+`"`)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(buf.Bytes()))
}

// writeJSON writes v as the JSON response with the given status code.
func (ed *Editor) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if r.Method == "HEAD" {
		return
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(v)
	if err != nil {
		ed.GetLogger(r.Context()).Error(err.Error())
	}
}

// baseFuncMap is the template functions available to every page template.
var baseFuncMap = map[string]any{
	"safeHTML": func(v any) template.HTML {
		if str, ok := v.(string); ok {
			return template.HTML(str)
		}
		return ""
	},
	"dump": func(v any) template.HTML {
		if !developerMode {
			return ""
		}
		return template.HTML("<pre>" + template.HTMLEscapeString(spew.Sdump(v)) + "</pre>")
	},
}

// errorTemplate is the template used for all error responses i.e.
// InternalServerError, NotFound, BadRequest, etc. It is parsed once at
// package initialization time so any changes to the error template require
// recompiling the binary.
var errorTemplate = template.Must(template.
	New("error.html").
	Funcs(baseFuncMap).
	ParseFS(RuntimeFS, "embed/error.html"),
)

// HumanReadableFileSize returns a human readable file size of an int64 size in
// bytes.
func HumanReadableFileSize(size int64) string {
	if size < 0 {
		return ""
	}
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "kMGTPE"[exp])
}

// executeError renders the error page with the given status code, falling
// back to plain text if the error template itself fails.
func (ed *Editor) executeError(w http.ResponseWriter, r *http.Request, statusCode int, data map[string]any) {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
	}()
	err := errorTemplate.Execute(buf, data)
	if err != nil {
		ed.GetLogger(r.Context()).Error(err.Error())
		http.Error(w, fmt.Sprint(data["Headline"]), statusCode)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", ed.ContentSecurityPolicy)
	w.WriteHeader(statusCode)
	if r.Method == "HEAD" {
		return
	}
	buf.WriteTo(w)
}

// BadRequest indicates that something was wrong with the request data.
func (ed *Editor) BadRequest(w http.ResponseWriter, r *http.Request, serverErr error) {
	var message string
	var maxBytesErr *http.MaxBytesError
	if errors.As(serverErr, &maxBytesErr) {
		message = "payload is too big (max " + HumanReadableFileSize(maxBytesErr.Limit) + ")"
	} else {
		message = serverErr.Error()
	}
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusBadRequest, map[string]any{
			"error":   "BadRequest",
			"message": message,
		})
		return
	}
	ed.executeError(w, r, http.StatusBadRequest, map[string]any{
		"Title":    "400 bad request",
		"Headline": "400 bad request",
		"Byline":   message,
	})
}

// NotFound indicates that a URL does not exist.
func (ed *Editor) NotFound(w http.ResponseWriter, r *http.Request) {
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusNotFound, map[string]any{
			"error": "NotFound",
		})
		return
	}
	ed.executeError(w, r, http.StatusNotFound, map[string]any{
		"Title":    "404 not found",
		"Headline": "404 not found",
		"Byline":   "The page you are looking for does not exist.",
	})
}

// MethodNotAllowed indicates that the request method is not allowed.
func (ed *Editor) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusMethodNotAllowed, map[string]any{
			"error":  "MethodNotAllowed",
			"method": r.Method,
		})
		return
	}
	ed.executeError(w, r, http.StatusMethodNotAllowed, map[string]any{
		"Title":    "405 method not allowed",
		"Headline": "405 method not allowed: " + r.Method,
	})
}

// TooManyRequests indicates that the session is editing faster than its rate
// limit allows. The edit is dropped; the next one carries the full text.
func (ed *Editor) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusTooManyRequests, map[string]any{
			"error": "TooManyRequests",
		})
		return
	}
	ed.executeError(w, r, http.StatusTooManyRequests, map[string]any{
		"Title":    "429 too many requests",
		"Headline": "429 too many requests",
		"Byline":   "You are editing too quickly, please try again in a moment.",
	})
}

// InternalServerError is a catch-all handler for catching server errors and
// displaying it to the user.
//
// This includes the error message as well as the stack trace and version, in
// hopes that a user will be able to give developers the detailed error and
// trace in order to diagnose the problem faster.
func (ed *Editor) InternalServerError(w http.ResponseWriter, r *http.Request, serverErr error) {
	if serverErr == nil {
		if r.Method == "HEAD" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}
	var errmsg string
	var callers []string
	var stackTraceErr *stacktrace.Error
	if errors.As(serverErr, &stackTraceErr) {
		errmsg = stackTraceErr.Err.Error()
		callers = stackTraceErr.Callers
	} else {
		errmsg = serverErr.Error()
		var pc [30]uintptr
		n := runtime.Callers(2, pc[:]) // skip runtime.Callers + InternalServerError
		callers = make([]string, 0, n)
		frames := runtime.CallersFrames(pc[:n])
		for frame, more := frames.Next(); more; frame, more = frames.Next() {
			callers = append(callers, frame.File+":"+strconv.Itoa(frame.Line))
		}
	}
	isCanceled := errors.Is(serverErr, context.Canceled) || errors.Is(serverErr, context.DeadlineExceeded)
	if ed.ErrorlogConfig.Email != "" && ed.Mailer != nil && !isCanceled {
		ed.reportError(r, errmsg, callers)
	}
	if r.Form.Has("api") {
		ed.writeJSON(w, r, http.StatusInternalServerError, map[string]any{
			"error":   "InternalServerError",
			"message": errmsg,
			"callers": callers,
			"version": Version,
		})
		return
	}
	ed.executeError(w, r, http.StatusInternalServerError, map[string]any{
		"Title":    "500 internal server error",
		"Headline": "500 internal server error",
		"Byline":   "There's a bug with the editor.",
		"Details":  errmsg,
		"Callers":  callers,
		"Version":  Version,
	})
}

// reportError queues an error report mail in the background.
func (ed *Editor) reportError(r *http.Request, errmsg string, callers []string) {
	ed.BaseCtxWaitGroup.Add(1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				fmt.Println(stacktrace.Errorf("panic: %v", v))
			}
		}()
		defer ed.BaseCtxWaitGroup.Done()
		var b strings.Builder
		b.WriteString(r.Host + ": internal server error")
		b.WriteString("\r\n")
		b.WriteString("\r\n" + r.Method + " " + r.URL.String())
		b.WriteString("\r\n" + errmsg)
		b.WriteString("\r\n")
		b.WriteString("\r\nstack trace:")
		for _, caller := range callers {
			b.WriteString("\r\n" + caller)
		}
		b.WriteString("\r\n")
		b.WriteString("\r\ngit commit: " + Version)
		mail := Mail{
			MailFrom: ed.MailFrom,
			RcptTo:   ed.ErrorlogConfig.Email,
			Headers: []string{
				"Subject", "latexeditor: " + r.Host + ": internal server error: " + errmsg,
				"Content-Type", "text/plain; charset=utf-8",
			},
			Body: strings.NewReader(b.String()),
		}
		select {
		case <-ed.BaseCtx.Done():
		case ed.Mailer.C <- mail:
		}
	}()
}

// RealClientIP returns the real client IP of the request.
func RealClientIP(r *http.Request, realIPHeaders map[netip.Addr]string, proxyIPs map[netip.Addr]struct{}) netip.Addr {
	// Reference: https://adam-p.ca/blog/2022/03/x-forwarded-for/
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}
	}
	remoteAddr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}
	}
	// Without any proxies configured, remoteAddr is the real client IP.
	if len(realIPHeaders) == 0 && len(proxyIPs) == 0 {
		return remoteAddr
	}
	if header, ok := realIPHeaders[remoteAddr]; ok {
		addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get(header)))
		if err != nil {
			return netip.Addr{}
		}
		return addr
	}
	if _, ok := proxyIPs[remoteAddr]; !ok {
		return remoteAddr
	}
	// The rightmost X-Forwarded-For address that isn't a proxy is the client.
	values := r.Header.Values("X-Forwarded-For")
	for i := len(values) - 1; i >= 0; i-- {
		ips := strings.Split(values[i], ",")
		for j := len(ips) - 1; j >= 0; j-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(ips[j]))
			if err != nil {
				continue
			}
			if _, ok := proxyIPs[addr]; ok {
				continue
			}
			return addr
		}
	}
	return netip.Addr{}
}

// MaxMindDBRecord is the struct used to retrieve the country for an IP
// address.
type MaxMindDBRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

var (
	//go:embed embed static
	embedFS embed.FS

	// RuntimeFS is the FS containing the runtime files needed by the editor
	// for operation.
	RuntimeFS fs.FS = embedFS

	// developerMode indicates if the developer mode is enabled for the current
	// binary.
	developerMode = false

	// SampleText is the built-in sample document from embed/sample.tex.
	SampleText string

	// StylesCSSHash is the sha256 hash of static/styles.css, used for cache
	// busting.
	StylesCSSHash string

	// EditorJSHash is the sha256 hash of static/editor.js.
	EditorJSHash string

	// Version holds the current git revision.
	Version string
)

func init() {
	// vcs.revision
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				Version = setting.Value
				break
			}
		}
	}
	b, err := fs.ReadFile(embedFS, "embed/sample.tex")
	if err != nil {
		panic(err)
	}
	SampleText = string(bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n")))
	b, err = fs.ReadFile(embedFS, "static/styles.css")
	if err != nil {
		panic(err)
	}
	hash := sha256.Sum256(b)
	StylesCSSHash = base64.RawURLEncoding.EncodeToString(hash[:8])
	b, err = fs.ReadFile(embedFS, "static/editor.js")
	if err != nil {
		panic(err)
	}
	hash = sha256.Sum256(b)
	EditorJSHash = base64.RawURLEncoding.EncodeToString(hash[:8])
}
