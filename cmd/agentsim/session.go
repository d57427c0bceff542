package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nathoo/agentsim/config"
	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/policy"
	"github.com/nathoo/agentsim/engine/save"
	"github.com/nathoo/agentsim/logging"
	"github.com/nathoo/agentsim/scenario"
)

// session is a configured clock over one built scenario.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	source scenario.Source
	clock  *engine.Clock
	rng    *engine.RNG
	ticks  int

	closers []func() error
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("policy") {
		cfg.Simulation.Policy, _ = flags.GetString("policy")
	}
	// Subcommand flags; Changed is false for flags a command does not define.
	if flags.Changed("interval") {
		cfg.Simulation.Interval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("journal") {
		cfg.Journal.Path, _ = flags.GetString("journal")
	}
	if flags.Changed("history") {
		cfg.History.Path, _ = flags.GetString("history")
	}
	if flags.Changed("observe") {
		cfg.Observer.Addr, _ = flags.GetString("observe")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newSession builds the scenario named by args (or the configured one) and
// wires a clock for it. Logs go to logOut.
func newSession(cmd *cobra.Command, args []string, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Logging.Level, logOut)
	slog.SetDefault(logger)

	name := cfg.Simulation.Scenario
	if len(args) > 0 {
		name = args[0]
	}
	src, err := scenario.Open(name, cfg.Simulation.Seed)
	if err != nil {
		return nil, err
	}
	w, err := src.Build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", src.Name(), err)
	}

	rng := engine.NewRNG(cfg.Simulation.Seed)
	p, err := policy.FromName(cfg.Simulation.Policy, rng)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		source: src,
		rng:    rng,
		ticks:  cfg.Simulation.Ticks,
	}
	if t, ok := src.(scenario.Ticker); ok && t.Ticks() > 0 {
		s.ticks = t.Ticks()
	}
	if cmd.Flags().Changed("ticks") {
		s.ticks, _ = cmd.Flags().GetInt("ticks")
	}

	s.clock = engine.New(w, append(clockOptions(cfg, logger), engine.WithPolicy(p))...)
	logger.Info("scenario loaded", "scenario", src.Name(), "seed", cfg.Simulation.Seed,
		"policy", cfg.Simulation.Policy, "ticks", s.ticks)
	return s, nil
}

func clockOptions(cfg *config.Config, logger *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithLogger(logger),
		engine.WithInterval(cfg.Simulation.Interval),
		engine.WithTickBudget(cfg.Simulation.TickBudget),
	}
}

// record writes a replay record of the session's clock to path.
func (s *session) record(path string) error {
	rec, err := save.Take(s.clock, save.Run{
		Scenario: s.source.Name(),
		Seed:     s.cfg.Simulation.Seed,
		Policy:   s.cfg.Simulation.Policy,
		RNG:      s.rng,
	})
	if err != nil {
		return err
	}
	data, err := save.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	s.logger.Info("run record written", "path", path, "tick", rec.Tick, "digest", rec.Digest)
	return nil
}

// onClose registers fn to run when the session closes.
func (s *session) onClose(fn func() error) { s.closers = append(s.closers, fn) }

// Close runs the registered closers in reverse order.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
