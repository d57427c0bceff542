package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nathoo/agentsim/engine/history"
	"github.com/nathoo/agentsim/engine/journal"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir()) // no stray agentsim.yaml
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func scenarioPath(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("..", "..", "scenarios", name))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "agentsim dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestRun_Builtin(t *testing.T) {
	out, err := execute(t, "run", "dogs")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"tick 1: agents=2", "tick 3:", "ran 3 tick(s), 3 total"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_TicksFlagAndTree(t *testing.T) {
	out, err := execute(t, "run", "dogs", "--ticks", "1", "--tree")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "ran 1 tick(s)") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "#2 dog calories=10 [eat]") {
		t.Errorf("expected tree after tick, got:\n%s", out)
	}
}

func TestRun_Sinks(t *testing.T) {
	dir := t.TempDir()
	jpath := filepath.Join(dir, "run.jsonl.zst")
	hpath := filepath.Join(dir, "history.db")

	if _, err := execute(t, "run", "dogs", "--journal", jpath, "--history", hpath); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	entries, err := journal.ReadAll(jpath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) == 0 {
		t.Error("journal is empty")
	}

	store, err := history.Open(hpath, nil)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()
	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Scenario != "dogs" {
		t.Errorf("runs = %+v, want one dogs run", runs)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := execute(t, "run", "no-such-scenario"); err == nil {
		t.Error("expected error for unknown scenario")
	}
	if _, err := execute(t, "run", "dogs", "--policy", "greedy"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if _, err := execute(t, "run", "dogs", "--log-level", "loud"); err == nil {
		t.Error("expected error for bad log level")
	}
}

func TestRun_LuaScenario(t *testing.T) {
	out, err := execute(t, "run", scenarioPath(t, "rabbits.lua"), "--ticks", "1")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "tick 1:") {
		t.Errorf("output = %s", out)
	}
}

func TestRepl_Script(t *testing.T) {
	script := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(script, []byte("tick\n/state\n/quit\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "repl", "dogs", "--script", script)
	if err != nil {
		t.Fatalf("repl failed: %v", err)
	}
	for _, want := range []string{"tick 1: agents=2", "[Tick: 1]", "[Goodbye.]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", scenarioPath(t, "dogs.lua"), scenarioPath(t, "rabbits.lua"))
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if strings.Count(out, ": ok (") != 2 {
		t.Errorf("output = %s", out)
	}
}

func TestValidate_Failure(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.lua")
	src := `Scenario { title = "Bad" }
Agent "x" { zap = Ability { effects = { { type = "teleport" } } } }
`
	if err := os.WriteFile(bad, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "validate", bad)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "teleport") {
		t.Errorf("output = %s", out)
	}
}

func TestRecordAndVerify(t *testing.T) {
	dir := t.TempDir()
	forage := filepath.Join(dir, "forage.json")
	dogs := filepath.Join(dir, "dogs.json")
	out, err := execute(t, "run", "forage", "--seed", "4", "--policy", "random", "--ticks", "3", "--record", forage)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "ran 3 tick(s), 3 total") {
		t.Errorf("run output = %s", out)
	}
	if _, err := execute(t, "run", "dogs", "--record", dogs); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err = execute(t, "verify", forage, dogs)
	if err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out)
	}
	for _, want := range []string{"forage.json: ok (forage, tick 3,", "dogs.json: ok (dogs, tick 3,"} {
		if !strings.Contains(out, want) {
			t.Errorf("verify output missing %q:\n%s", want, out)
		}
	}
}

func TestVerify_Tampered(t *testing.T) {
	rec := filepath.Join(t.TempDir(), "dogs.json")
	if _, err := execute(t, "run", "dogs", "--ticks", "1", "--record", rec); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	data, err := os.ReadFile(rec)
	if err != nil {
		t.Fatal(err)
	}
	// Replaying zero ticks cannot reproduce the tick-1 digest.
	data = bytes.Replace(data, []byte(`"tick": 1,`), []byte(`"tick": 0,`), 1)
	if err := os.WriteFile(rec, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "verify", rec)
	if err == nil {
		t.Fatal("expected digest mismatch")
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "diverged") {
		t.Errorf("verify output = %s", out)
	}
}
