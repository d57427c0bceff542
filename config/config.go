// Package config provides configuration loading for agentsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory when
// no explicit path is given.
const DefaultFile = "agentsim.yaml"

// Config contains all agentsim settings.
type Config struct {
	// Simulation controls the clock.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Journal configures the compressed tick journal.
	Journal JournalConfig `json:"journal" yaml:"journal"`

	// History configures the SQLite run history.
	History HistoryConfig `json:"history" yaml:"history"`

	// Observer configures the websocket frame stream.
	Observer ObserverConfig `json:"observer" yaml:"observer"`
}

// SimulationConfig controls the clock.
type SimulationConfig struct {
	// Scenario is a built-in scenario name or a path to a Lua scenario.
	Scenario string `json:"scenario" yaml:"scenario"`

	// Ticks is the number of ticks Run executes. Zero means until stopped
	// or until the scenario's end condition holds.
	Ticks int `json:"ticks" yaml:"ticks"`

	// Interval paces ticks in run mode. Zero runs as fast as possible.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// TickBudget halts the simulation when one tick's evaluation takes
	// longer. Zero disables the budget.
	TickBudget time.Duration `json:"tick_budget" yaml:"tick_budget"`

	// Seed feeds randomized policies and generated scenarios.
	Seed int64 `json:"seed" yaml:"seed"`

	// Policy selects abilities per caster: "all" (default) or "random".
	Policy string `json:"policy" yaml:"policy"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "trace" additionally logs every recorded operation.
	Level string `json:"level" yaml:"level"`
}

// JournalConfig configures the tick journal.
type JournalConfig struct {
	// Path of the .jsonl.zst file. Empty disables the journal.
	Path string `json:"path" yaml:"path"`

	// Frames includes the full tree in every entry.
	Frames bool `json:"frames" yaml:"frames"`
}

// HistoryConfig configures run history.
type HistoryConfig struct {
	// Path of the SQLite database. Empty disables history.
	Path string `json:"path" yaml:"path"`
}

// ObserverConfig configures the websocket server.
type ObserverConfig struct {
	// Addr to listen on, e.g. "127.0.0.1:8088". Empty disables it.
	Addr string `json:"addr" yaml:"addr"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Scenario: "dogs",
			Ticks:    10,
			Seed:     1,
			Policy:   "all",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Journal: JournalConfig{
			Frames: true,
		},
	}
}

// Load loads configuration from path, or from DefaultFile when path is
// empty and the file exists, then applies environment variables.
// Order: defaults -> file -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.Journal.Path = os.ExpandEnv(config.Journal.Path)
	config.History.Path = os.ExpandEnv(config.History.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Simulation.Ticks < 0 {
		return fmt.Errorf("ticks must be non-negative, got %d", c.Simulation.Ticks)
	}
	if c.Simulation.Interval < 0 {
		return fmt.Errorf("interval must be non-negative, got %v", c.Simulation.Interval)
	}
	if c.Simulation.TickBudget < 0 {
		return fmt.Errorf("tick_budget must be non-negative, got %v", c.Simulation.TickBudget)
	}

	validPolicies := map[string]bool{"": true, "all": true, "random": true, "single": true}
	if !validPolicies[c.Simulation.Policy] {
		return fmt.Errorf("invalid policy: %s (valid: all, random)", c.Simulation.Policy)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AGENTSIM_SCENARIO"); v != "" {
		config.Simulation.Scenario = v
	}
	if v := os.Getenv("AGENTSIM_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Ticks = n
		}
	}
	if v := os.Getenv("AGENTSIM_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.Interval = d
		}
	}
	if v := os.Getenv("AGENTSIM_TICK_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Simulation.TickBudget = d
		}
	}
	if v := os.Getenv("AGENTSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}
	if v := os.Getenv("AGENTSIM_POLICY"); v != "" {
		config.Simulation.Policy = v
	}
	if v := os.Getenv("AGENTSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("AGENTSIM_JOURNAL"); v != "" {
		config.Journal.Path = v
	}
	if v := os.Getenv("AGENTSIM_HISTORY"); v != "" {
		config.History.Path = v
	}
	if v := os.Getenv("AGENTSIM_OBSERVER_ADDR"); v != "" {
		config.Observer.Addr = v
	}
}
