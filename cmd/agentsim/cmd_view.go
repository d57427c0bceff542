package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nathoo/agentsim/cli"
	"github.com/nathoo/agentsim/tui"
)

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [scenario]",
		Short: "Step through a scenario in the terminal viewer",
		Long: `view opens a full-screen viewer over the scenario. Type "tick" to
advance, "/play" to tick continuously and "/help" for the rest.

Falls back to the line-oriented REPL when stdout is not a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return runREPL(cmd, args, nil)
			}
			// The viewer owns the screen; logs go to a file.
			logFile, err := openLogFile()
			if err != nil {
				return err
			}
			defer logFile.Close()

			s, err := newSession(cmd, args, logFile)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.attachSinks(); err != nil {
				return err
			}
			return tui.Run(s.clock, s.source.Name(), s.cfg.Simulation.Interval)
		},
	}
	cmd.Flags().Duration("interval", 0, "Pause between ticks while playing")
	cmd.Flags().String("journal", "", "Write a zstd journal to this path")
	cmd.Flags().String("history", "", "Record the run in this SQLite database")
	cmd.Flags().String("observe", "", "Serve frames over WebSocket on this address")
	return cmd
}

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl [scenario]",
		Short: "Step through a scenario with a line-oriented command loop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var script io.Reader
			if path, _ := cmd.Flags().GetString("script"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("opening script: %w", err)
				}
				defer f.Close()
				script = f
			}
			return runREPL(cmd, args, script)
		},
	}
	cmd.Flags().String("script", "", "Read commands from a file and echo them")
	cmd.Flags().Bool("trace", false, "Print every operation outcome")
	cmd.Flags().String("journal", "", "Write a zstd journal to this path")
	cmd.Flags().String("history", "", "Record the run in this SQLite database")
	return cmd
}

// runREPL drives the CLI over stdin, or over script when it is non-nil.
func runREPL(cmd *cobra.Command, args []string, script io.Reader) error {
	s, err := newSession(cmd, args, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.attachSinks(); err != nil {
		return err
	}

	c := cli.New(s.clock, s.source.Name())
	c.In = cmd.InOrStdin()
	c.Out = cmd.OutOrStdout()
	c.Trace, _ = cmd.Flags().GetBool("trace")
	if script != nil {
		c.In = script
		c.EchoInput = true
	}
	c.Run()
	return nil
}

func openLogFile() (*os.File, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".agentsim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, "agentsim.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
