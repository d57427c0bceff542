package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/save"
	"github.com/nathoo/agentsim/logging"
	"github.com/nathoo/agentsim/scenario"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <record>...",
		Short: "Replay run records and check they reproduce the same digest",
		Long: `verify rebuilds each record's scenario, replays it to the recorded
tick under the same seed and policy, and fails if the resulting tree does
not match the recorded digest. Records are written by "run --record".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if err := verifyRecord(ctx, out, path, logger); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed++
					fmt.Fprintf(out, "%s: FAIL\n  - %v\n", path, err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d record(s) failed verification", failed, len(args))
			}
			return nil
		},
	}
}

func verifyRecord(ctx context.Context, out io.Writer, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rec, err := save.Load(data)
	if err != nil {
		return err
	}
	src, err := scenario.Open(rec.Scenario, rec.Seed)
	if err != nil {
		return err
	}
	if _, err := save.Verify(ctx, rec, src.Build, engine.WithLogger(logger)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: ok (%s, tick %d, digest %.12s)\n", path, rec.Scenario, rec.Tick, rec.Digest)
	return nil
}
