package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	latexeditor "github.com/unmatched78/latex-editor"
)

// ErrRenderFailed is returned by RenderCmd.Run when a math span or the
// document could not be rendered.
var ErrRenderFailed = errors.New("render failed")

type RenderCmd struct {
	Renderer *latexeditor.Renderer
	Stdin    io.Reader
	Stdout   io.Writer
	File     string
	JSON     bool
	HTML     bool
}

func RenderCommand(renderer *latexeditor.Renderer, args ...string) (*RenderCmd, error) {
	var cmd RenderCmd
	cmd.Renderer = renderer
	flagset := flag.NewFlagSet("", flag.ContinueOnError)
	flagset.BoolVar(&cmd.JSON, "json", false, "Print the result as JSON.")
	flagset.BoolVar(&cmd.HTML, "html", false, "Print only the converted document HTML.")
	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), `Usage:
  latexeditor render [FLAGS] [FILE]
Renders a LaTeX file (or stdin) the way the editor previews it: every math
span, then the whole document.
Flags:`)
		flagset.PrintDefaults()
	}
	err := flagset.Parse(args)
	if err != nil {
		return nil, err
	}
	switch flagset.NArg() {
	case 0:
	case 1:
		cmd.File = flagset.Arg(0)
	default:
		flagset.Usage()
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagset.Args()[1:], " "))
	}
	if cmd.JSON && cmd.HTML {
		return nil, fmt.Errorf("-json and -html are mutually exclusive")
	}
	return &cmd, nil
}

func (cmd *RenderCmd) Run() error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Renderer == nil {
		cmd.Renderer = latexeditor.NewRenderer()
	}
	var b []byte
	var err error
	if cmd.File == "" || cmd.File == "-" {
		b, err = io.ReadAll(cmd.Stdin)
	} else {
		b, err = os.ReadFile(cmd.File)
	}
	if err != nil {
		return err
	}
	preview := cmd.Renderer.Compute(string(b))
	failed := preview.Document.Err != ""
	for _, unit := range preview.Math {
		if unit.Err != "" {
			failed = true
		}
	}
	switch {
	case cmd.JSON:
		encoder := json.NewEncoder(cmd.Stdout)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		err := encoder.Encode(preview)
		if err != nil {
			return err
		}
	case cmd.HTML:
		if preview.Document.Err != "" {
			return fmt.Errorf("%w: %s", ErrRenderFailed, preview.Document.Err)
		}
		_, err := io.WriteString(cmd.Stdout, string(preview.Document.HTML)+"\n")
		return err
	default:
		if len(preview.Math) == 0 {
			fmt.Fprintln(cmd.Stdout, "No math blocks found.")
		}
		for _, unit := range preview.Math {
			kind := "inline"
			if unit.Display {
				kind = "display"
			}
			if unit.Err != "" {
				fmt.Fprintf(cmd.Stdout, "❌ [%d] %s %q: %s\n", unit.Index, kind, unit.Expr, unit.Err)
			} else {
				fmt.Fprintf(cmd.Stdout, "✔️  [%d] %s %q\n", unit.Index, kind, unit.Expr)
			}
		}
		if preview.Document.Err != "" {
			fmt.Fprintf(cmd.Stdout, "❌ document: %s\n", preview.Document.Err)
		} else if preview.Document.Title != "" {
			fmt.Fprintf(cmd.Stdout, "✔️  document %q\n", preview.Document.Title)
		} else {
			fmt.Fprintf(cmd.Stdout, "✔️  document\n")
		}
	}
	if failed {
		return ErrRenderFailed
	}
	return nil
}
