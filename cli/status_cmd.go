package cli

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	latexeditor "github.com/unmatched78/latex-editor"
)

type StatusCmd struct {
	Editor    *latexeditor.Editor
	Stdout    io.Writer
	ConfigDir string
}

func StatusCommand(ed *latexeditor.Editor, configDir string, args ...string) (*StatusCmd, error) {
	var cmd StatusCmd
	cmd.Editor = ed
	cmd.ConfigDir = configDir
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  latexeditor status
Reports whether the editor is running and prints its effective settings.`)
		flagset.PrintDefaults()
	}
	err := flagset.Parse(args)
	if err != nil {
		return nil, err
	}
	if flagset.NArg() > 0 {
		flagset.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagset.Args(), " "))
	}
	return &cmd, nil
}

func (cmd *StatusCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	ed := cmd.Editor
	pid, name, err := portPID(ed.Port)
	if err != nil {
		fmt.Fprintf(cmd.Stdout, "❌ %s\n", err.Error())
	} else if pid != 0 && name != "" {
		fmt.Fprintf(cmd.Stdout, "✔️  %s (pid %d) is listening on port %d\n", name, pid, ed.Port)
	} else {
		fmt.Fprintf(cmd.Stdout, "❌ latexeditor is not currently running on port %d\n", ed.Port)
	}
	fmt.Fprintf(cmd.Stdout, "configdir  = %s\n", cmd.ConfigDir)
	fmt.Fprintf(cmd.Stdout, "port       = %d\n", ed.Port)
	fmt.Fprintf(cmd.Stdout, "sessionttl = %s\n", ed.SessionTTL)
	fmt.Fprintf(cmd.Stdout, "ratelimit  = %g %d\n", float64(ed.EditLimit), ed.EditBurst)
	if ed.SampleText == latexeditor.SampleText {
		fmt.Fprintf(cmd.Stdout, "sample     = <built-in>\n")
	} else {
		fmt.Fprintf(cmd.Stdout, "sample     = sample.tex (%s)\n", latexeditor.HumanReadableFileSize(int64(len(ed.SampleText))))
	}
	if ed.MaxMindDBReader == nil {
		fmt.Fprintf(cmd.Stdout, "maxminddb  = <not configured>\n")
	} else {
		fmt.Fprintf(cmd.Stdout, "maxminddb  = %s\n", ed.MaxMindDBReader.Metadata.DatabaseType)
	}
	if len(ed.ProxyConfig.RealIPHeaders) == 0 && len(ed.ProxyConfig.ProxyIPs) == 0 {
		fmt.Fprintf(cmd.Stdout, "proxy      = <not configured>\n")
	} else {
		fmt.Fprintf(cmd.Stdout, "proxy      = %d realIPHeaders, %d proxyIPs\n", len(ed.ProxyConfig.RealIPHeaders), len(ed.ProxyConfig.ProxyIPs))
	}
	if ed.Mailer == nil {
		fmt.Fprintf(cmd.Stdout, "smtp       = <not configured>\n")
	} else {
		fmt.Fprintf(cmd.Stdout, "smtp       = %s:%s\n", ed.Mailer.Host, ed.Mailer.Port)
	}
	if ed.ErrorlogConfig.Email == "" {
		fmt.Fprintf(cmd.Stdout, "errorlog   = <not configured>\n")
	} else {
		fmt.Fprintf(cmd.Stdout, "errorlog   = %s\n", ed.ErrorlogConfig.Email)
	}
	fmt.Fprintf(cmd.Stdout, "To configure latexeditor's settings, run `latexeditor config`.\n")
	return nil
}

// portPID returns the pid and name of the process listening on port, or a
// zero pid if there is none.
func portPID(port int) (pid int, name string, err error) {
	switch runtime.GOOS {
	case "darwin", "linux":
		b, err := exec.Command("lsof", "-n", "-P", "-i", ":"+strconv.Itoa(port)).Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
				// lsof exits with 1 when nothing matched too. Only treat it as
				// an error if it also printed something to stderr.
				return 0, "", errors.New(string(bytes.TrimSpace(exitErr.Stderr)))
			}
		}
		return parseLsof(b)
	case "windows":
		b, err := exec.Command("netstat.exe", "-a", "-n", "-o").Output()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
				return 0, "", errors.New(string(bytes.TrimSpace(exitErr.Stderr)))
			}
			return 0, "", err
		}
		pid = parseNetstat(b, port)
		if pid == 0 {
			return 0, "", nil
		}
		b, err = exec.Command("tasklist.exe", "/fi", "pid eq "+strconv.Itoa(pid), "/fo", "list").Output()
		if err != nil {
			return 0, "", err
		}
		_, after, ok := bytes.Cut(b, []byte("Image Name:"))
		if !ok {
			return pid, "", nil
		}
		line, _, _ := bytes.Cut(after, []byte("\n"))
		return pid, string(bytes.TrimSpace(line)), nil
	default:
		return 0, "", fmt.Errorf("unable to check if a process is listening on port %d (only macos, linux and windows are supported)", port)
	}
}

// parseLsof returns the first listening process in the output of lsof.
func parseLsof(b []byte) (pid int, name string, err error) {
	var line []byte
	remainder := b
	for len(remainder) > 0 {
		line, remainder, _ = bytes.Cut(remainder, []byte("\n"))
		line = bytes.TrimSpace(line)
		if !bytes.Contains(line, []byte("LISTEN")) {
			continue
		}
		fields := strings.Fields(string(line))
		if len(fields) < 5 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		return pid, fields[0], nil
	}
	return 0, "", nil
}

// parseNetstat returns the pid listening on TCP port in the output of
// netstat -a -n -o.
func parseNetstat(b []byte, port int) int {
	var line []byte
	remainder := b
	for len(remainder) > 0 {
		line, remainder, _ = bytes.Cut(remainder, []byte("\n"))
		fields := strings.Fields(string(line))
		if len(fields) < 5 || fields[0] != "TCP" || fields[3] != "LISTENING" {
			continue
		}
		if !strings.HasSuffix(fields[1], ":"+strconv.Itoa(port)) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil {
			continue
		}
		return pid
	}
	return 0
}
