package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oschwald/maxminddb-golang"
	latexeditor "github.com/unmatched78/latex-editor"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

// Editor assembles a latexeditor.Editor from the files in configDir. Every
// setting lives in its own file and every file is optional. The returned
// closers must be closed (in reverse order) even if an error is returned.
func Editor(configDir string, verbose bool) (*latexeditor.Editor, []io.Closer, error) {
	var closers []io.Closer
	ed := latexeditor.New()
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var logHandler slog.Handler
	if term.IsTerminal(int(os.Stdout.Fd())) {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		})
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		})
	}
	ed.Logger = slog.New(logHandler).With(slog.String("version", latexeditor.Version))

	// Port.
	b, err := os.ReadFile(filepath.Join(configDir, "port.txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "port.txt"), err)
	}
	port := string(bytes.TrimSpace(b))
	if port != "" {
		ed.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %q is not a valid integer", filepath.Join(configDir, "port.txt"), port)
		}
		if ed.Port <= 0 || ed.Port > 65535 {
			return nil, closers, fmt.Errorf("%s: %d is not a valid port", filepath.Join(configDir, "port.txt"), ed.Port)
		}
	}

	// Session TTL.
	b, err = os.ReadFile(filepath.Join(configDir, "sessionttl.txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "sessionttl.txt"), err)
	}
	sessionTTL := string(bytes.TrimSpace(b))
	if sessionTTL != "" {
		ed.SessionTTL, err = time.ParseDuration(sessionTTL)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "sessionttl.txt"), err)
		}
		if ed.SessionTTL <= 0 {
			return nil, closers, fmt.Errorf("%s: %s is not a positive duration", filepath.Join(configDir, "sessionttl.txt"), sessionTTL)
		}
	}

	// Rate limit.
	b, err = os.ReadFile(filepath.Join(configDir, "ratelimit.txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "ratelimit.txt"), err)
	}
	rateLimit := string(bytes.TrimSpace(b))
	if rateLimit != "" {
		limit, burst, err := ParseRateLimit(rateLimit)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "ratelimit.txt"), err)
		}
		ed.EditLimit = limit
		ed.EditBurst = burst
	}

	// Sample document.
	b, err = os.ReadFile(filepath.Join(configDir, "sample.tex"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "sample.tex"), err)
		}
	} else {
		ed.SampleText = string(bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n")))
	}

	// MaxMind DB reader.
	b, err = os.ReadFile(filepath.Join(configDir, "maxminddb.txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "maxminddb.txt"), err)
	}
	maxMindDBFilePath := string(bytes.TrimSpace(b))
	if maxMindDBFilePath != "" {
		_, err = os.Stat(maxMindDBFilePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, closers, fmt.Errorf("%s: %s does not exist", filepath.Join(configDir, "maxminddb.txt"), maxMindDBFilePath)
			}
			return nil, closers, fmt.Errorf("%s: %s: %w", filepath.Join(configDir, "maxminddb.txt"), maxMindDBFilePath, err)
		}
		maxmindDBReader, err := maxminddb.Open(maxMindDBFilePath)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %s: %w", filepath.Join(configDir, "maxminddb.txt"), maxMindDBFilePath, err)
		}
		// Closed by ed.Close.
		ed.MaxMindDBReader = maxmindDBReader
	}

	// Proxy.
	b, err = os.ReadFile(filepath.Join(configDir, "proxy.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "proxy.json"), err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 {
		var proxyConfig ProxyConfig
		decoder := json.NewDecoder(bytes.NewReader(b))
		decoder.DisallowUnknownFields()
		err := decoder.Decode(&proxyConfig)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "proxy.json"), err)
		}
		ed.ProxyConfig.RealIPHeaders = make(map[netip.Addr]string)
		for ip, header := range proxyConfig.RealIPHeaders {
			addr, err := netip.ParseAddr(ip)
			if err != nil {
				return nil, closers, fmt.Errorf("%s: realIPHeaders: %s: %w", filepath.Join(configDir, "proxy.json"), ip, err)
			}
			ed.ProxyConfig.RealIPHeaders[addr] = header
		}
		ed.ProxyConfig.ProxyIPs = make(map[netip.Addr]struct{})
		for _, ip := range proxyConfig.ProxyIPs {
			addr, err := netip.ParseAddr(ip)
			if err != nil {
				return nil, closers, fmt.Errorf("%s: proxyIPs: %s: %w", filepath.Join(configDir, "proxy.json"), ip, err)
			}
			ed.ProxyConfig.ProxyIPs[addr] = struct{}{}
		}
	}

	// SMTP.
	b, err = os.ReadFile(filepath.Join(configDir, "smtp.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "smtp.json"), err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 {
		var smtpConfig SMTPConfig
		decoder := json.NewDecoder(bytes.NewReader(b))
		decoder.DisallowUnknownFields()
		err := decoder.Decode(&smtpConfig)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "smtp.json"), err)
		}
		if smtpConfig.Host != "" && smtpConfig.Port != "" && smtpConfig.Username != "" && smtpConfig.Password != "" {
			mailerConfig := latexeditor.MailerConfig{
				Username: smtpConfig.Username,
				Password: smtpConfig.Password,
				Host:     smtpConfig.Host,
				Port:     smtpConfig.Port,
				MailFrom: smtpConfig.MailFrom,
				Logger:   ed.Logger,
			}
			ed.MailFrom = smtpConfig.MailFrom
			if smtpConfig.LimitInterval == "" {
				mailerConfig.LimitInterval = 3 * time.Minute
			} else {
				limitInterval, err := time.ParseDuration(smtpConfig.LimitInterval)
				if err != nil {
					return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "smtp.json"), err)
				}
				mailerConfig.LimitInterval = limitInterval
			}
			if smtpConfig.LimitBurst <= 0 {
				mailerConfig.LimitBurst = 20
			} else {
				mailerConfig.LimitBurst = smtpConfig.LimitBurst
			}
			mailer, err := latexeditor.NewMailer(mailerConfig)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, mailer)
			ed.Mailer = mailer
		}
	}

	// Errorlog.
	b, err = os.ReadFile(filepath.Join(configDir, "errorlog.json"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "errorlog.json"), err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 {
		var errorlogConfig ErrorlogConfig
		decoder := json.NewDecoder(bytes.NewReader(b))
		decoder.DisallowUnknownFields()
		err := decoder.Decode(&errorlogConfig)
		if err != nil {
			return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "errorlog.json"), err)
		}
		ed.ErrorlogConfig.Email = errorlogConfig.Email
	}

	// Content Security Policy.
	b, err = os.ReadFile(filepath.Join(configDir, "contentsecuritypolicy.txt"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, closers, fmt.Errorf("%s: %w", filepath.Join(configDir, "contentsecuritypolicy.txt"), err)
	}
	if csp := strings.Join(strings.Fields(string(b)), " "); csp != "" {
		ed.ContentSecurityPolicy = csp
	}
	return ed, closers, nil
}

// ParseRateLimit parses "<events-per-second> <burst>", e.g. "30 60".
func ParseRateLimit(s string) (rate.Limit, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%q: expected <events-per-second> <burst>", s)
	}
	limit, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || limit <= 0 {
		return 0, 0, fmt.Errorf("%q is not a valid rate", fields[0])
	}
	burst, err := strconv.Atoi(fields[1])
	if err != nil || burst <= 0 {
		return 0, 0, fmt.Errorf("%q is not a valid burst", fields[1])
	}
	return rate.Limit(limit), burst, nil
}

// NewServer returns an http.Server serving ed. It only listens on localhost
// unless a reverse proxy is configured in front of it.
func NewServer(ed *latexeditor.Editor) *http.Server {
	server := &http.Server{
		ErrorLog:          log.New(&LogFilter{Stderr: os.Stderr}, "", log.LstdFlags),
		Handler:           ed,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       5 * time.Minute,
	}
	if len(ed.ProxyConfig.RealIPHeaders) == 0 && len(ed.ProxyConfig.ProxyIPs) == 0 {
		server.Addr = "localhost:" + strconv.Itoa(ed.Port)
	} else {
		server.Addr = ":" + strconv.Itoa(ed.Port)
	}
	return server
}

// LogFilter drops noisy http.Server log lines that are caused by clients
// rather than the server.
type LogFilter struct {
	Stderr io.Writer
}

func (logFilter *LogFilter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("http: TLS handshake error from ")) ||
		bytes.Contains(p, []byte("http2: RECEIVED GOAWAY")) ||
		bytes.Contains(p, []byte("http2: server: error reading preface from client")) {
		return 0, nil
	}
	return logFilter.Stderr.Write(p)
}
