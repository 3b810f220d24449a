package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProxyConfig is the contents of proxy.json.
type ProxyConfig struct {
	// RealIPHeaders maps proxy IP addresses to the header they put the real
	// client IP in, e.g. X-Real-IP or True-Client-IP.
	RealIPHeaders map[string]string `json:"realIPHeaders"`

	// ProxyIPs are the proxy IP addresses trusted to append to
	// X-Forwarded-For.
	ProxyIPs []string `json:"proxyIPs"`
}

// SMTPConfig is the contents of smtp.json.
type SMTPConfig struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Host          string `json:"host"`
	Port          string `json:"port"`
	MailFrom      string `json:"mailFrom"`
	LimitInterval string `json:"limitInterval"`
	LimitBurst    int    `json:"limitBurst"`
}

// ErrorlogConfig is the contents of errorlog.json.
type ErrorlogConfig struct {
	Email string `json:"email"`
}

// configFiles maps config keys to the file in the config directory holding
// them.
var configFiles = map[string]string{
	"port":                  "port.txt",
	"sessionttl":            "sessionttl.txt",
	"ratelimit":             "ratelimit.txt",
	"maxminddb":             "maxminddb.txt",
	"contentsecuritypolicy": "contentsecuritypolicy.txt",
	"proxy":                 "proxy.json",
	"smtp":                  "smtp.json",
	"errorlog":              "errorlog.json",
}

var configKeys = []string{
	"port",
	"sessionttl",
	"ratelimit",
	"maxminddb",
	"contentsecuritypolicy",
	"proxy",
	"smtp",
	"errorlog",
}

type ConfigCmd struct {
	ConfigDir string
	Stdout    io.Writer
	Key       string
	Value     string
	HasValue  bool
}

func ConfigCommand(configDir string, args ...string) (*ConfigCmd, error) {
	var cmd ConfigCmd
	cmd.ConfigDir = configDir
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  latexeditor config                 # print every config value
  latexeditor config <key>           # print a config value
  latexeditor config <key> <value>   # set a config value
  latexeditor config <key> ""        # unset a config value
Keys:
  port, sessionttl, ratelimit, maxminddb, contentsecuritypolicy, proxy, smtp, errorlog`)
		flagset.PrintDefaults()
	}
	err := flagset.Parse(args)
	if err != nil {
		return nil, err
	}
	args = flagset.Args()
	switch len(args) {
	case 0:
	case 1:
		cmd.Key = args[0]
	case 2:
		cmd.Key, cmd.Value, cmd.HasValue = args[0], args[1], true
	default:
		flagset.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(args[2:], " "))
	}
	if cmd.Key != "" {
		if _, ok := configFiles[cmd.Key]; !ok {
			return nil, fmt.Errorf("invalid key %q", cmd.Key)
		}
	}
	return &cmd, nil
}

func (cmd *ConfigCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Key == "" {
		for _, key := range configKeys {
			value, err := cmd.read(key)
			if err != nil {
				return err
			}
			if strings.Contains(value, "\n") {
				fmt.Fprintf(cmd.Stdout, "%s:\n%s\n", key, value)
			} else {
				fmt.Fprintf(cmd.Stdout, "%s: %s\n", key, value)
			}
		}
		return nil
	}
	if !cmd.HasValue {
		value, err := cmd.read(cmd.Key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.Stdout, value)
		return nil
	}
	value, err := validateConfig(cmd.Key, strings.TrimSpace(cmd.Value))
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Key, err)
	}
	name := filepath.Join(cmd.ConfigDir, configFiles[cmd.Key])
	if value == "" {
		err := os.Remove(name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.WriteFile(name, []byte(value+"\n"), 0644)
}

func (cmd *ConfigCmd) read(key string) (string, error) {
	b, err := os.ReadFile(filepath.Join(cmd.ConfigDir, configFiles[key]))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(bytes.TrimSpace(b)), nil
}

// validateConfig checks value against the format expected for key and
// returns it in the form it should be written in.
func validateConfig(key, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	switch key {
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return "", fmt.Errorf("%q is not a valid port", value)
		}
	case "sessionttl":
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return "", err
		}
		if ttl <= 0 {
			return "", fmt.Errorf("%s is not a positive duration", value)
		}
	case "ratelimit":
		_, _, err := ParseRateLimit(value)
		if err != nil {
			return "", err
		}
	case "proxy":
		var proxyConfig ProxyConfig
		err := decodeStrict(value, &proxyConfig)
		if err != nil {
			return "", err
		}
		for ip := range proxyConfig.RealIPHeaders {
			_, err := netip.ParseAddr(ip)
			if err != nil {
				return "", fmt.Errorf("realIPHeaders: %s: %w", ip, err)
			}
		}
		for _, ip := range proxyConfig.ProxyIPs {
			_, err := netip.ParseAddr(ip)
			if err != nil {
				return "", fmt.Errorf("proxyIPs: %s: %w", ip, err)
			}
		}
		return marshalIndent(proxyConfig)
	case "smtp":
		var smtpConfig SMTPConfig
		err := decodeStrict(value, &smtpConfig)
		if err != nil {
			return "", err
		}
		if smtpConfig.LimitInterval != "" {
			_, err := time.ParseDuration(smtpConfig.LimitInterval)
			if err != nil {
				return "", fmt.Errorf("limitInterval: %w", err)
			}
		}
		return marshalIndent(smtpConfig)
	case "errorlog":
		var errorlogConfig ErrorlogConfig
		err := decodeStrict(value, &errorlogConfig)
		if err != nil {
			return "", err
		}
		return marshalIndent(errorlogConfig)
	}
	return value, nil
}

func decodeStrict(value string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(value))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func marshalIndent(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
