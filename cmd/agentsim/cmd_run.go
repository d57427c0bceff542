package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nathoo/agentsim/cli"
	"github.com/nathoo/agentsim/engine/history"
	"github.com/nathoo/agentsim/engine/journal"
	"github.com/nathoo/agentsim/transport/ws"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a scenario headless, printing one line per tick",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.attachSinks(); err != nil {
				return err
			}
			trace, _ := cmd.Flags().GetBool("trace")
			tree, _ := cmd.Flags().GetBool("tree")
			s.clock.AddObserver(&cli.Printer{Out: cmd.OutOrStdout(), Trace: trace, Tree: tree})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return s.run(ctx, cmd)
		},
	}
	cmd.Flags().Int("ticks", 0, "Ticks to run; 0 uses the scenario or config value")
	cmd.Flags().Duration("interval", 0, "Pause between ticks")
	cmd.Flags().String("journal", "", "Write a zstd journal to this path")
	cmd.Flags().String("history", "", "Record the run in this SQLite database")
	cmd.Flags().String("observe", "", "Serve frames over WebSocket on this address")
	cmd.Flags().Bool("trace", false, "Print every operation outcome")
	cmd.Flags().Bool("tree", false, "Print the agent tree after each tick")
	cmd.Flags().String("record", "", "Write a replay record to this path when the run ends")
	return cmd
}

// run ticks s.ticks ticks, reports the count and writes the requested
// replay record. An interrupt still writes the record.
func (s *session) run(ctx context.Context, cmd *cobra.Command) error {
	ran, err := s.clock.Run(ctx, s.ticks)
	fmt.Fprintf(cmd.OutOrStdout(), "ran %d tick(s), %d total\n", ran, s.clock.TickCount())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("record"); path != "" {
		return s.record(path)
	}
	return nil
}

// attachSinks registers the journal, history and WebSocket observers that
// the config enables.
func (s *session) attachSinks() error {
	if path := s.cfg.Journal.Path; path != "" {
		opts := []journal.Option{journal.WithLogger(s.logger)}
		if !s.cfg.Journal.Frames {
			opts = append(opts, journal.WithoutFrames())
		}
		j, err := journal.Create(path, opts...)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		s.clock.AddObserver(j)
		s.onClose(j.Close)
	}

	if path := s.cfg.History.Path; path != "" {
		h, err := history.Open(path, s.logger)
		if err != nil {
			return err
		}
		s.onClose(h.Close)
		if _, err := h.BeginRun(s.source.Name(), s.cfg.Simulation.Seed); err != nil {
			return err
		}
		s.clock.AddObserver(h)
	}

	if addr := s.cfg.Observer.Addr; addr != "" {
		return s.serveFrames(addr)
	}
	return nil
}

func (s *session) serveFrames(addr string) error {
	hub := ws.NewHub(s.logger)
	mux := http.NewServeMux()
	mux.Handle("/frames", hub)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observer server failed", "err", err)
		}
	}()
	s.logger.Info("serving frames", "addr", ln.Addr().String(), "path", "/frames")

	s.clock.AddObserver(hub)
	s.onClose(func() error {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}
