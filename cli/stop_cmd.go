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

type StopCmd struct {
	Editor *latexeditor.Editor
	Stdout io.Writer
}

func StopCommand(ed *latexeditor.Editor, args ...string) (*StopCmd, error) {
	var cmd StopCmd
	cmd.Editor = ed
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  latexeditor stop
Stops the process listening on the configured port.`)
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

func (cmd *StopCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	pid, name, err := portPID(cmd.Editor.Port)
	if err != nil {
		return err
	}
	if pid == 0 {
		fmt.Fprintf(cmd.Stdout, "could not find any process listening on port %d\n", cmd.Editor.Port)
		return nil
	}
	if runtime.GOOS == "windows" {
		err := exec.Command("taskkill.exe", "/t", "/f", "/pid", strconv.Itoa(pid)).Run()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Stdout, "stopped %s (pid %d)\n", name, pid)
		return nil
	}
	// Kill the whole process group so that `go run` wrappers go down with
	// the server.
	pgid := -pid
	b, err := exec.Command("ps", "-o", "pgid=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return err
		}
	} else if n, err := strconv.Atoi(string(bytes.TrimSpace(b))); err == nil {
		pgid = -n
	}
	err = exec.Command("kill", "--", strconv.Itoa(pgid)).Run()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "stopped %s (pid %d)\n", name, pid)
	return nil
}
