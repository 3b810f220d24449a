package latexeditor

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mileusna/useragent"
	"github.com/unmatched78/latex-editor/stacktrace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

// sessionKey is what the server keeps of a session token: the 8-byte
// creation timestamp followed by the blake2b-256 hash of the 16 random
// bytes. The token itself is only ever known to the client.
type sessionKey [8 + blake2b.Size256]byte

type session struct {
	document *Document
	limiter  *rate.Limiter

	// label describes the client (country, device, browser) for logs.
	label string

	// lastSeen is the unix nano time of the last request.
	lastSeen atomic.Int64
}

// newSessionToken returns a fresh hex-encoded session token and the key under
// which the server stores it.
func newSessionToken(now time.Time) (token string, key sessionKey, err error) {
	var tokenBytes [8 + 16]byte
	binary.BigEndian.PutUint64(tokenBytes[:8], uint64(now.Unix()))
	_, err = rand.Read(tokenBytes[8:])
	if err != nil {
		return "", key, stacktrace.New(err)
	}
	return strings.TrimLeft(hex.EncodeToString(tokenBytes[:]), "0"), hashSessionToken(tokenBytes), nil
}

// parseSessionToken validates a hex-encoded session token and returns its
// key.
func parseSessionToken(token string) (sessionKey, bool) {
	if len(token) > 48 {
		return sessionKey{}, false
	}
	b, err := hex.DecodeString(fmt.Sprintf("%048s", token))
	if err != nil || len(b) != 24 {
		return sessionKey{}, false
	}
	return hashSessionToken([24]byte(b)), true
}

func hashSessionToken(tokenBytes [24]byte) sessionKey {
	var key sessionKey
	checksum := blake2b.Sum256(tokenBytes[8:])
	copy(key[:8], tokenBytes[:8])
	copy(key[8:], checksum[:])
	return key
}

// getSession returns the session named by the request's session cookie,
// starting a new one (and setting the cookie) if there is none or it has
// expired.
func (ed *Editor) getSession(w http.ResponseWriter, r *http.Request) (*session, error) {
	now := time.Now()
	if cookie, _ := r.Cookie("session"); cookie != nil {
		if key, ok := parseSessionToken(cookie.Value); ok {
			ed.sessionsMu.Lock()
			sess := ed.sessions[key]
			if sess != nil && now.Sub(time.Unix(0, sess.lastSeen.Load())) > ed.SessionTTL {
				delete(ed.sessions, key)
				sess = nil
			}
			ed.sessionsMu.Unlock()
			if sess != nil {
				sess.lastSeen.Store(now.UnixNano())
				return sess, nil
			}
		}
	}
	token, key, err := newSessionToken(now)
	if err != nil {
		return nil, err
	}
	sess := &session{
		document: NewDocument(ed.SampleText, ed.Renderer),
		limiter:  rate.NewLimiter(ed.EditLimit, ed.EditBurst),
		label:    ed.sessionLabel(r),
	}
	sess.lastSeen.Store(now.UnixNano())
	ed.sessionsMu.Lock()
	ed.sessions[key] = sess
	ed.sessionsMu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     "session",
		Value:    token,
		Secure:   r.TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ed.SessionTTL.Seconds()),
	})
	ed.GetLogger(r.Context()).Debug("started session", slog.String("label", sess.label))
	return sess, nil
}

// sessionLabel describes the client of r, e.g. "Singapore Desktop macOS
// Chrome".
func (ed *Editor) sessionLabel(r *http.Request) string {
	var b strings.Builder
	if ed.MaxMindDBReader != nil {
		addr := RealClientIP(r, ed.ProxyConfig.RealIPHeaders, ed.ProxyConfig.ProxyIPs)
		if addr.IsValid() {
			var record MaxMindDBRecord
			err := ed.MaxMindDBReader.Lookup(net.IP(addr.AsSlice()), &record)
			if err == nil {
				if country := record.Country.Names["en"]; country != "" {
					b.WriteString(country)
				} else {
					b.WriteString(record.Country.ISOCode)
				}
			}
		}
	}
	userAgent := useragent.Parse(r.UserAgent())
	if userAgent.Name == "" {
		return b.String()
	}
	var words []string
	switch {
	case userAgent.Mobile:
		words = append(words, "Mobile")
	case userAgent.Tablet:
		words = append(words, "Tablet")
	case userAgent.Desktop:
		words = append(words, "Desktop")
	}
	words = append(words, userAgent.Device, userAgent.OS, userAgent.Name)
	for _, word := range words {
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(word)
	}
	return b.String()
}

// ExpireSessions discards every session idle for longer than SessionTTL as
// of now and reports how many were discarded.
func (ed *Editor) ExpireSessions(now time.Time) int {
	ed.sessionsMu.Lock()
	defer ed.sessionsMu.Unlock()
	var n int
	for key, sess := range ed.sessions {
		if now.Sub(time.Unix(0, sess.lastSeen.Load())) > ed.SessionTTL {
			delete(ed.sessions, key)
			n++
		}
	}
	return n
}

// SessionCount returns the number of live sessions.
func (ed *Editor) SessionCount() int {
	ed.sessionsMu.Lock()
	defer ed.sessionsMu.Unlock()
	return len(ed.sessions)
}

// StartJanitor starts a background job that expires idle sessions every
// interval until the editor is closed.
func (ed *Editor) StartJanitor(interval time.Duration) {
	ed.BaseCtxWaitGroup.Add(1)
	go func() {
		defer ed.BaseCtxWaitGroup.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ed.BaseCtx.Done():
				return
			case now := <-ticker.C:
				n := ed.ExpireSessions(now)
				if n > 0 {
					ed.Logger.Debug("expired sessions", slog.Int("count", n))
				}
			}
		}
	}()
}
