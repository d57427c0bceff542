package scenario

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/builder"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/logging"
)

func clockFor(t *testing.T, src Source) (*world.World, *engine.Clock) {
	t.Helper()
	w, err := src.Build()
	if err != nil {
		t.Fatalf("Build(%s) failed: %v", src.Name(), err)
	}
	return w, engine.New(w, engine.WithLogger(logging.Discard()))
}

func tick(t *testing.T, c *engine.Clock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := c.Tick(); err != nil {
			t.Fatalf("tick %d failed: %v", i+1, err)
		}
	}
}

func TestNames(t *testing.T) {
	if got, want := Names(), []string{"dogs", "forage", "life"}; !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestOpen(t *testing.T) {
	src, err := Open("dogs", 1)
	if err != nil {
		t.Fatalf("Open(dogs) failed: %v", err)
	}
	if src.Name() != "dogs" {
		t.Errorf("Name = %q, want dogs", src.Name())
	}
	if tk, ok := src.(Ticker); !ok || tk.Ticks() != 3 {
		t.Errorf("dogs should suggest 3 ticks")
	}

	path := filepath.Join("..", "scenarios", "dogs.lua")
	src, err = Open(path, 1)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	if _, ok := src.(*LuaSource); !ok {
		t.Errorf("Open(%s) = %T, want *LuaSource", path, src)
	}

	if _, err := Open("no-such-scenario", 1); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestDogAndApple(t *testing.T) {
	w, c := clockFor(t, DogAndApple())
	tick(t, c, 1)
	snap := w.Snapshot()
	if snap.Count("apple") != 0 {
		t.Error("apple should be eaten on the first tick")
	}
	dog := snap.Root().Children()[0]
	if n, _ := dog.Number("calories"); n != 10 {
		t.Errorf("dog calories = %v, want 10", n)
	}
	// Nothing left to eat: further ticks change nothing.
	before := snap.Digest()
	tick(t, c, 2)
	if after := w.Snapshot().Digest(); after != before {
		t.Error("world changed with nothing left to eat")
	}
}

func TestLuaSource(t *testing.T) {
	src := Lua(filepath.Join("..", "scenarios", "rabbits.lua"))
	w, c := clockFor(t, src)
	if src.Ticks() != 6 {
		t.Errorf("Ticks = %d, want 6", src.Ticks())
	}
	tick(t, c, 1)
	snap := w.Snapshot()
	// The rabbit starts with 4 food: it grazes (+1), breeds (-2) and has a kit.
	if snap.Count("kit") != 1 {
		t.Errorf("kits = %d, want 1", snap.Count("kit"))
	}
	meadow := snap.Root().Children()[0]
	if n, _ := meadow.Number("grass"); n != 11 {
		t.Errorf("grass = %v, want 11", n)
	}
}

func TestLuaSource_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.lua")
	os.WriteFile(path, []byte(`Scenario {}`), 0644)
	if _, err := Lua(path).Build(); err == nil {
		t.Error("expected validation error")
	}
}

func TestGameOfLife_Blinker(t *testing.T) {
	w, c := clockFor(t, GameOfLife(5, 5, Blinker(2, 2)...))
	horizontal := []Cell{{1, 2}, {2, 2}, {3, 2}}
	vertical := []Cell{{2, 1}, {2, 2}, {2, 3}}

	if got := LiveCells(w.Snapshot()); !slices.Equal(got, horizontal) {
		t.Fatalf("initial = %v, want %v", got, horizontal)
	}
	tick(t, c, 1)
	if got := LiveCells(w.Snapshot()); !slices.Equal(got, vertical) {
		t.Errorf("after 1 tick = %v, want %v", got, vertical)
	}
	tick(t, c, 1)
	if got := LiveCells(w.Snapshot()); !slices.Equal(got, horizontal) {
		t.Errorf("after 2 ticks = %v, want %v", got, horizontal)
	}
}

func TestGameOfLife_Glider(t *testing.T) {
	w, c := clockFor(t, GameOfLife(10, 10, Glider(0, 0)...))
	tick(t, c, 4)

	want := Glider(1, 1)
	slices.SortFunc(want, compareCells)
	if got := LiveCells(w.Snapshot()); !slices.Equal(got, want) {
		t.Errorf("glider after 4 ticks = %v, want %v", got, want)
	}
}

func TestGameOfLife_Block(t *testing.T) {
	block := []Cell{{1, 1}, {2, 1}, {1, 2}, {2, 2}}
	w, c := clockFor(t, GameOfLife(4, 4, block...))
	before := w.Snapshot().Digest()
	tick(t, c, 3)
	if w.Snapshot().Digest() != before {
		t.Error("a still life should not change")
	}
}

func TestGameOfLife_OutOfBounds(t *testing.T) {
	if _, err := GameOfLife(3, 3, Cell{5, 5}).Build(); err == nil {
		t.Error("expected error for a cell outside the grid")
	}
	if _, err := GameOfLife(0, 3).Build(); err == nil {
		t.Error("expected error for an empty grid")
	}
}

func TestForage_Deterministic(t *testing.T) {
	digests := func() []string {
		w, c := clockFor(t, Forage(7, 10, 3))
		var out []string
		for i := 0; i < 5; i++ {
			tick(t, c, 1)
			out = append(out, w.Snapshot().Digest())
		}
		return out
	}
	if a, b := digests(), digests(); !slices.Equal(a, b) {
		t.Error("same seed produced different runs")
	}
}

func TestForageDef(t *testing.T) {
	def, err := ForageDef(3, 8, 2)
	if err != nil {
		t.Fatalf("ForageDef failed: %v", err)
	}
	field, herd := def.Agents[0], def.Agents[1]
	if len(herd.Children) != 2 {
		t.Errorf("grazers = %d, want 2", len(herd.Children))
	}
	for _, p := range field.Children {
		grass := p.Traits[0].Value.(float64)
		if grass < 1 || grass > maxGrass {
			t.Errorf("patch grass %v out of range", grass)
		}
		x, y := p.Traits[2].Value.(float64), p.Traits[3].Value.(float64)
		if x < 0 || x >= 8 || y < 0 || y >= 8 {
			t.Errorf("patch at (%v, %v) outside field", x, y)
		}
	}
	if _, err := ForageDef(1, 0, 1); err == nil {
		t.Error("expected error for empty field")
	}
}

func TestForage_GrazersStarveWithoutGrass(t *testing.T) {
	def, err := ForageDef(1, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	def.Agents[0].Children = nil
	w, err := builder.Build(def)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	c := engine.New(w, engine.WithLogger(logging.Discard()))

	// Energy 5 and tiring 2 per tick: -1 after three ticks, removed on the fourth.
	tick(t, c, 3)
	if n := w.Snapshot().Count("grazer"); n != 2 {
		t.Fatalf("grazers after 3 ticks = %d, want 2", n)
	}
	tick(t, c, 1)
	if n := w.Snapshot().Count("grazer"); n != 0 {
		t.Errorf("grazers after 4 ticks = %d, want 0", n)
	}
}
