package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	latexeditor "github.com/unmatched78/latex-editor"
	"github.com/unmatched78/latex-editor/cli"
)

func main() {
	err := func() error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configHomeDir := os.Getenv("XDG_CONFIG_HOME")
		if configHomeDir == "" {
			configHomeDir = homeDir
		}
		var configDir string
		var verbose bool
		flagset := flag.NewFlagSet("", flag.ContinueOnError)
		flagset.StringVar(&configDir, "configdir", "", "")
		flagset.BoolVar(&verbose, "verbose", false, "")
		err = flagset.Parse(os.Args[1:])
		if err != nil {
			return err
		}
		args := flagset.Args()
		if configDir == "" {
			configDir = filepath.Join(configHomeDir, "latexeditor-config")
		} else {
			configDir = filepath.Clean(configDir)
		}
		err = os.MkdirAll(configDir, 0755)
		if err != nil {
			return err
		}
		configDir, err = filepath.Abs(filepath.FromSlash(configDir))
		if err != nil {
			return err
		}
		if len(args) > 0 {
			switch args[0] {
			case "config":
				cmd, err := cli.ConfigCommand(configDir, args[1:]...)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				err = cmd.Run()
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			case "render":
				cmd, err := cli.RenderCommand(latexeditor.NewRenderer(), args[1:]...)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				err = cmd.Run()
				if err != nil {
					if errors.Is(err, cli.ErrRenderFailed) {
						os.Exit(1)
					}
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			case "version":
				fmt.Println(latexeditor.Version)
				return nil
			}
		}
		ed, closers, err := cli.Editor(configDir, verbose)
		defer func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}()
		if err != nil {
			return err
		}
		defer ed.Close()
		if len(args) > 0 {
			switch args[0] {
			case "start":
				cmd, err := cli.StartCommand(ed, args[1:]...)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				err = cmd.Run()
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			case "status":
				cmd, err := cli.StatusCommand(ed, configDir, args[1:]...)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				err = cmd.Run()
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			case "stop":
				cmd, err := cli.StopCommand(ed, args[1:]...)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				err = cmd.Run()
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				return nil
			default:
				return fmt.Errorf("unknown command: %s", args[0])
			}
		}
		cmd, err := cli.StartCommand(ed)
		if err != nil {
			return err
		}
		return cmd.Run()
	}()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
