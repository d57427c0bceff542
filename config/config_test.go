package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Simulation.Scenario != "dogs" {
		t.Errorf("expected Scenario 'dogs', got '%s'", config.Simulation.Scenario)
	}
	if config.Simulation.Ticks != 10 {
		t.Errorf("expected Ticks 10, got %d", config.Simulation.Ticks)
	}
	if config.Simulation.Policy != "all" {
		t.Errorf("expected Policy 'all', got '%s'", config.Simulation.Policy)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if !config.Journal.Frames {
		t.Error("expected Journal.Frames to be true by default")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "agentsim.yaml")

	configContent := `
simulation:
  scenario: life
  ticks: 50
  interval: 250ms
  tick_budget: 2s
  seed: 42
  policy: random

logging:
  level: debug

journal:
  path: ${AGENTSIM_TEST_DIR}/run.jsonl.zst
  frames: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("AGENTSIM_TEST_DIR", tmpDir)

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Simulation.Scenario != "life" {
		t.Errorf("expected Scenario 'life', got '%s'", config.Simulation.Scenario)
	}
	if config.Simulation.Ticks != 50 {
		t.Errorf("expected Ticks 50, got %d", config.Simulation.Ticks)
	}
	if config.Simulation.Interval != 250*time.Millisecond {
		t.Errorf("expected Interval 250ms, got %v", config.Simulation.Interval)
	}
	if config.Simulation.TickBudget != 2*time.Second {
		t.Errorf("expected TickBudget 2s, got %v", config.Simulation.TickBudget)
	}
	if config.Simulation.Seed != 42 {
		t.Errorf("expected Seed 42, got %d", config.Simulation.Seed)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Journal.Path != filepath.Join(tmpDir, "run.jsonl.zst") {
		t.Errorf("expected expanded journal path, got '%s'", config.Journal.Path)
	}
	if config.Journal.Frames {
		t.Error("expected Frames false")
	}
	// Unset sections keep their defaults.
	if config.History.Path != "" {
		t.Errorf("expected empty History.Path, got '%s'", config.History.Path)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("simulation: [unclosed"), 0644)
	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AGENTSIM_SCENARIO", "forage")
	t.Setenv("AGENTSIM_TICKS", "7")
	t.Setenv("AGENTSIM_INTERVAL", "1s")
	t.Setenv("AGENTSIM_SEED", "99")
	t.Setenv("AGENTSIM_POLICY", "random")
	t.Setenv("AGENTSIM_LOG_LEVEL", "trace")
	t.Setenv("AGENTSIM_HISTORY", "/tmp/h.db")
	t.Setenv("AGENTSIM_OBSERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("AGENTSIM_TICK_BUDGET", "not-a-duration")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Scenario != "forage" || config.Simulation.Ticks != 7 || config.Simulation.Seed != 99 {
		t.Errorf("simulation overrides not applied: %+v", config.Simulation)
	}
	if config.Simulation.Interval != time.Second {
		t.Errorf("expected Interval 1s, got %v", config.Simulation.Interval)
	}
	if config.Simulation.TickBudget != 0 {
		t.Errorf("invalid duration should be ignored, got %v", config.Simulation.TickBudget)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Level 'trace', got '%s'", config.Logging.Level)
	}
	if config.History.Path != "/tmp/h.db" || config.Observer.Addr != "127.0.0.1:9000" {
		t.Errorf("path overrides not applied: %+v %+v", config.History, config.Observer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative ticks", func(c *Config) { c.Simulation.Ticks = -1 }},
		{"negative interval", func(c *Config) { c.Simulation.Interval = -time.Second }},
		{"negative budget", func(c *Config) { c.Simulation.TickBudget = -time.Second }},
		{"bad policy", func(c *Config) { c.Simulation.Policy = "greedy" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
