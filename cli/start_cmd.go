package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	latexeditor "github.com/unmatched78/latex-editor"
)

type StartCmd struct {
	Editor  *latexeditor.Editor
	Stdout  io.Writer
	Handler http.Handler

	// JanitorInterval is how often idle sessions are expired.
	JanitorInterval time.Duration
}

func StartCommand(ed *latexeditor.Editor, args ...string) (*StartCmd, error) {
	var cmd StartCmd
	cmd.Editor = ed
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.DurationVar(&cmd.JanitorInterval, "janitor-interval", 5*time.Minute, "How often idle sessions are expired.")
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  latexeditor start [FLAGS]
Starts the editor server in the foreground. Stop it with Ctrl-C or `+"`latexeditor stop`"+`.
Flags:`)
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
	if cmd.JanitorInterval <= 0 {
		return nil, fmt.Errorf("-janitor-interval: %s is not a positive duration", cmd.JanitorInterval)
	}
	return &cmd, nil
}

func (cmd *StartCmd) Run() error {
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.JanitorInterval == 0 {
		cmd.JanitorInterval = 5 * time.Minute
	}
	server := NewServer(cmd.Editor)
	if cmd.Handler != nil {
		server.Handler = cmd.Handler
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		var errno syscall.Errno
		if !errors.As(err, &errno) {
			return err
		}
		// https://cs.opensource.google/go/x/sys/+/refs/tags/v0.6.0:windows/zerrors_windows.go;l=2680
		const WSAEADDRINUSE = syscall.Errno(10048)
		if errno == syscall.EADDRINUSE || runtime.GOOS == "windows" && errno == WSAEADDRINUSE {
			fmt.Fprintf(cmd.Stdout, "latexeditor is already running on http://%s/ (run `latexeditor stop` to stop the process)\n", server.Addr)
			return nil
		}
		return err
	}
	cmd.Editor.StartJanitor(cmd.JanitorInterval)
	// Swallow SIGHUP so that we can keep running even when the (SSH)
	// session ends (the user should use `latexeditor stop` to stop the
	// process).
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for {
			<-ch
		}
	}()
	wait := make(chan os.Signal, 1)
	signal.Notify(wait, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(cmd.Stdout, err)
			close(wait)
		}
	}()
	fmt.Fprintf(cmd.Stdout, "latexeditor is running on http://%s/\n", server.Addr)
	<-wait
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	server.Shutdown(ctx)
	return nil
}
