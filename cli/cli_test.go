package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	latexeditor "github.com/unmatched78/latex-editor"
	"golang.org/x/time/rate"
)

func writeConfig(t *testing.T, configDir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		err := os.WriteFile(filepath.Join(configDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestEditorDefaults(t *testing.T) {
	ed, closers, err := Editor(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
		ed.Close()
	}()
	if ed.Port != 6455 {
		t.Errorf("expected port 6455, got %d", ed.Port)
	}
	if ed.SampleText != latexeditor.SampleText {
		t.Errorf("expected the built-in sample")
	}
	if ed.ContentSecurityPolicy != latexeditor.DefaultContentSecurityPolicy {
		t.Errorf("unexpected Content-Security-Policy %q", ed.ContentSecurityPolicy)
	}
	if server := NewServer(ed); server.Addr != "localhost:6455" {
		t.Errorf("expected to listen on localhost only, got %q", server.Addr)
	}
}

func TestEditorConfig(t *testing.T) {
	configDir := t.TempDir()
	writeConfig(t, configDir, map[string]string{
		"port.txt":                  "8080\n",
		"sessionttl.txt":            "1h30m",
		"ratelimit.txt":             "5 10",
		"sample.tex":                "\\section{Hello}\r\n$x$\r\n",
		"contentsecuritypolicy.txt": "default-src 'self';\n  script-src 'self';\n",
		"errorlog.json":             `{"email": "admin@example.com"}`,
		"proxy.json": `{
			"realIPHeaders": {"127.0.0.1": "X-Real-IP"},
			"proxyIPs": ["10.0.0.1"]
		}`,
	})
	ed, closers, err := Editor(configDir, true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
		ed.Close()
	}()
	if ed.Port != 8080 {
		t.Errorf("expected port 8080, got %d", ed.Port)
	}
	if ed.SessionTTL != 90*time.Minute {
		t.Errorf("expected 1h30m, got %s", ed.SessionTTL)
	}
	if ed.EditLimit != 5 || ed.EditBurst != 10 {
		t.Errorf("expected rate 5 burst 10, got %v %d", ed.EditLimit, ed.EditBurst)
	}
	if ed.SampleText != "\\section{Hello}\n$x$\n" {
		t.Errorf("unexpected sample %q", ed.SampleText)
	}
	if ed.ContentSecurityPolicy != "default-src 'self'; script-src 'self';" {
		t.Errorf("unexpected Content-Security-Policy %q", ed.ContentSecurityPolicy)
	}
	if ed.ErrorlogConfig.Email != "admin@example.com" {
		t.Errorf("unexpected errorlog email %q", ed.ErrorlogConfig.Email)
	}
	if len(ed.ProxyConfig.RealIPHeaders) != 1 || ed.ProxyConfig.RealIPHeaders[netip.MustParseAddr("127.0.0.1")] != "X-Real-IP" {
		t.Errorf("unexpected realIPHeaders %v", ed.ProxyConfig.RealIPHeaders)
	}
	if _, ok := ed.ProxyConfig.ProxyIPs[netip.MustParseAddr("10.0.0.1")]; !ok {
		t.Errorf("expected 10.0.0.1 to be a proxy IP")
	}
	if server := NewServer(ed); server.Addr != ":8080" {
		t.Errorf("expected to listen on all interfaces behind a proxy, got %q", server.Addr)
	}
}

func TestEditorInvalidConfig(t *testing.T) {
	type TestTable struct {
		description string
		files       map[string]string
		wantErr     string
	}

	tests := []TestTable{{
		description: "port is not a number",
		files:       map[string]string{"port.txt": "abc"},
		wantErr:     `"abc" is not a valid integer`,
	}, {
		description: "port out of range",
		files:       map[string]string{"port.txt": "70000"},
		wantErr:     "70000 is not a valid port",
	}, {
		description: "bad session ttl",
		files:       map[string]string{"sessionttl.txt": "forever"},
		wantErr:     "sessionttl.txt",
	}, {
		description: "bad rate limit",
		files:       map[string]string{"ratelimit.txt": "5"},
		wantErr:     "expected <events-per-second> <burst>",
	}, {
		description: "unknown proxy field",
		files:       map[string]string{"proxy.json": `{"proxies": []}`},
		wantErr:     "proxy.json",
	}, {
		description: "bad proxy ip",
		files:       map[string]string{"proxy.json": `{"proxyIPs": ["not-an-ip"]}`},
		wantErr:     "proxyIPs: not-an-ip",
	}, {
		description: "missing maxmind db",
		files:       map[string]string{"maxminddb.txt": "/nonexistent/GeoLite2-Country.mmdb"},
		wantErr:     "does not exist",
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			configDir := t.TempDir()
			writeConfig(t, configDir, tt.files)
			ed, closers, err := Editor(configDir, false)
			for _, closer := range closers {
				closer.Close()
			}
			if err == nil {
				ed.Close()
				t.Fatalf("expected an error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected an error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestParseRateLimit(t *testing.T) {
	type TestTable struct {
		input     string
		wantLimit rate.Limit
		wantBurst int
		wantErr   bool
	}

	tests := []TestTable{
		{input: "30 60", wantLimit: 30, wantBurst: 60},
		{input: "0.5   2", wantLimit: 0.5, wantBurst: 2},
		{input: "0 1", wantErr: true},
		{input: "1 0", wantErr: true},
		{input: "fast 1", wantErr: true},
		{input: "1 2 3", wantErr: true},
	}

	for _, tt := range tests {
		limit, burst, err := ParseRateLimit(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected an error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.input, err)
			continue
		}
		if limit != tt.wantLimit || burst != tt.wantBurst {
			t.Errorf("%q: want %v %d, got %v %d", tt.input, tt.wantLimit, tt.wantBurst, limit, burst)
		}
	}
}

func TestConfigCmd(t *testing.T) {
	configDir := t.TempDir()
	run := func(args ...string) (string, error) {
		t.Helper()
		cmd, err := ConfigCommand(configDir, args...)
		if err != nil {
			return "", err
		}
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		err = cmd.Run()
		return stdout.String(), err
	}

	_, err := run("port", "8080")
	if err != nil {
		t.Fatal(err)
	}
	got, err := run("port")
	if err != nil {
		t.Fatal(err)
	}
	if got != "8080\n" {
		t.Errorf("expected %q, got %q", "8080\n", got)
	}

	_, err = run("errorlog", `{"email":"admin@example.com"}`)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(configDir, "errorlog.json"))
	if err != nil {
		t.Fatal(err)
	}
	var errorlogConfig ErrorlogConfig
	err = json.Unmarshal(b, &errorlogConfig)
	if err != nil {
		t.Fatal(err)
	}
	if errorlogConfig.Email != "admin@example.com" {
		t.Errorf("unexpected email %q", errorlogConfig.Email)
	}

	for _, args := range [][]string{
		{"port", "http"},
		{"sessionttl", "-1h"},
		{"ratelimit", "fast"},
		{"smtp", `{"server": "smtp.example.com"}`},
	} {
		if _, err := run(args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
	if _, err := run("nosuchkey"); err == nil {
		t.Errorf("expected an error for an unknown key")
	}

	_, err = run("port", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(configDir, "port.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected port.txt to be removed, got %v", err)
	}

	got, err = run()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "port: \n") || !strings.Contains(got, "errorlog:\n{") {
		t.Errorf("unexpected listing %q", got)
	}
}

func TestRenderCmd(t *testing.T) {
	type TestTable struct {
		description string
		input       string
		args        []string
		wantErr     error
		wantOutput  []string
	}

	tests := []TestTable{{
		description: "sample document",
		input:       latexeditor.SampleText,
		wantOutput:  []string{`[0] inline "E = mc^2"`, `[1] display`, `document "A Research Paper"`},
	}, {
		description: "no math",
		input:       "Hello.",
		wantOutput:  []string{"No math blocks found."},
	}, {
		description: "math error",
		input:       `$\frac{1}$`,
		wantErr:     ErrRenderFailed,
		wantOutput:  []string{`❌ [0] inline "\\frac{1}"`},
	}, {
		description: "json",
		input:       "$x$",
		args:        []string{"-json"},
		wantOutput:  []string{`"expr": "x"`, `"display": false`},
	}, {
		description: "html",
		input:       `\textbf{bold}`,
		args:        []string{"-html"},
		wantOutput:  []string{"<b>bold</b>"},
	}}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.description, func(t *testing.T) {
			t.Parallel()
			cmd, err := RenderCommand(latexeditor.NewRenderer(), tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			var stdout bytes.Buffer
			cmd.Stdin = strings.NewReader(tt.input)
			cmd.Stdout = &stdout
			err = cmd.Run()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want error %v, got %v", tt.wantErr, err)
			}
			for _, want := range tt.wantOutput {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("output does not contain %q:\n%s", want, stdout.String())
				}
			}
		})
	}

	if _, err := RenderCommand(nil, "-json", "-html"); err == nil {
		t.Errorf("expected -json and -html to be mutually exclusive")
	}
}

func TestLogFilter(t *testing.T) {
	var stderr bytes.Buffer
	logFilter := &LogFilter{Stderr: &stderr}
	logFilter.Write([]byte("http: TLS handshake error from 1.2.3.4:5678: EOF\n"))
	logFilter.Write([]byte("http: panic serving 1.2.3.4:5678\n"))
	if got := stderr.String(); got != "http: panic serving 1.2.3.4:5678\n" {
		t.Errorf("unexpected log output %q", got)
	}
}
