package scenario

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/nathoo/agentsim/engine/world"
)

// Cell is a grid coordinate.
type Cell struct{ X, Y int }

// Glider returns the five live cells of a glider with its bounding box at
// (x, y), heading toward +x, +y.
func Glider(x, y int) []Cell {
	return []Cell{{x + 1, y}, {x + 2, y + 1}, {x, y + 2}, {x + 1, y + 2}, {x + 2, y + 2}}
}

// Blinker returns a horizontal period-2 oscillator centred on (x, y).
func Blinker(x, y int) []Cell {
	return []Cell{{x - 1, y}, {x, y}, {x + 1, y}}
}

// GameOfLife builds Conway's Life on a bounded width x height grid. Live
// cells are "cell" agents under a "grid" agent whose single ability
// computes every birth and death of a generation from the snapshot.
func GameOfLife(width, height int, alive ...Cell) Source {
	return sourceFunc{
		name:  "life",
		ticks: 40,
		build: func() (*world.World, error) { return buildLife(width, height, alive) },
	}
}

func buildLife(width, height int, alive []Cell) (*world.World, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("life grid must be positive, got %dx%d", width, height)
	}
	w := world.New()
	grid := w.NewAgent("grid")
	if err := grid.SetTrait("width", world.Number(float64(width))); err != nil {
		return nil, err
	}
	if err := grid.SetTrait("height", world.Number(float64(height))); err != nil {
		return nil, err
	}
	step := &world.Ability{Effect: lifeStep}
	if err := grid.SetTrait("step", world.AbilityRef(step)); err != nil {
		return nil, err
	}

	seen := map[Cell]bool{}
	for _, c := range alive {
		if c.X < 0 || c.Y < 0 || c.X >= width || c.Y >= height {
			return nil, fmt.Errorf("cell %v outside %dx%d grid", c, width, height)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		cell := w.NewAgent("cell")
		if err := placeCell(cell, c); err != nil {
			return nil, err
		}
		if err := grid.AddChild(cell); err != nil {
			return nil, err
		}
	}
	if err := w.Root().AddChild(grid); err != nil {
		return nil, err
	}
	return w, nil
}

func placeCell(a *world.Agent, c Cell) error {
	if err := a.SetTrait("x", world.Number(float64(c.X))); err != nil {
		return err
	}
	return a.SetTrait("y", world.Number(float64(c.Y)))
}

// lifeStep records one generation: every dying cell is removed and every
// birth is spawned under the grid, births ordered by row then column.
func lifeStep(grid, _ *world.Agent, rec *world.Recorder) error {
	width, err := grid.Number("width")
	if err != nil {
		return err
	}
	height, err := grid.Number("height")
	if err != nil {
		return err
	}

	live := map[Cell]*world.Agent{}
	for _, a := range grid.Children() {
		c, err := cellOf(a)
		if err != nil {
			return err
		}
		live[c] = a
	}

	counts := map[Cell]int{}
	for c := range live {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := Cell{c.X + dx, c.Y + dy}
				if (dx == 0 && dy == 0) || n.X < 0 || n.Y < 0 || n.X >= int(width) || n.Y >= int(height) {
					continue
				}
				counts[n]++
			}
		}
	}

	for _, a := range grid.Children() {
		c, _ := cellOf(a)
		if n := counts[c]; n < 2 || n > 3 {
			rec.Remove(a.ID())
		}
	}

	var births []Cell
	for c, n := range counts {
		if n == 3 && live[c] == nil {
			births = append(births, c)
		}
	}
	slices.SortFunc(births, compareCells)
	for _, c := range births {
		if err := placeCell(rec.Spawn(grid.ID(), "cell"), c); err != nil {
			return err
		}
	}
	return nil
}

func cellOf(a *world.Agent) (Cell, error) {
	x, err := a.Number("x")
	if err != nil {
		return Cell{}, fmt.Errorf("cell %d: %w", a.ID(), err)
	}
	y, err := a.Number("y")
	if err != nil {
		return Cell{}, fmt.Errorf("cell %d: %w", a.ID(), err)
	}
	return Cell{int(x), int(y)}, nil
}

func compareCells(a, b Cell) int {
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

// LiveCells returns the live cells of a Life snapshot ordered by row then
// column.
func LiveCells(snap *world.Snapshot) []Cell {
	var out []Cell
	for a := range snap.Agents() {
		if a.Name() != "cell" {
			continue
		}
		if c, err := cellOf(a); err == nil {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, compareCells)
	return out
}
