// Package scenario builds initial worlds. A Source is either a built-in Go
// scenario or a Lua scenario file compiled by the loader.
package scenario

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/nathoo/agentsim/engine/builder"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/loader"
)

// Source builds an unsealed world. Each Build call returns a fresh world.
type Source interface {
	Name() string
	Build() (*world.World, error)
}

// Ticker is implemented by sources that suggest a run length.
type Ticker interface {
	Ticks() int
}

// sourceFunc adapts a build function to Source.
type sourceFunc struct {
	name  string
	ticks int
	build func() (*world.World, error)
}

func (s sourceFunc) Name() string                 { return s.name }
func (s sourceFunc) Ticks() int                   { return s.ticks }
func (s sourceFunc) Build() (*world.World, error) { return s.build() }

// builtins maps names to constructors taking the run seed.
var builtins = map[string]func(seed int64) Source{
	"dogs":   func(int64) Source { return DogAndApple() },
	"life":   func(int64) Source { return GameOfLife(16, 16, Glider(1, 1)...) },
	"forage": func(seed int64) Source { return Forage(seed, 12, 4) },
}

// Names lists the built-in scenarios in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Builtin returns the named built-in scenario.
func Builtin(name string, seed int64) (Source, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (built-in: %s)", name, strings.Join(Names(), ", "))
	}
	return f(seed), nil
}

// Open resolves arg as a built-in name first, then as a Lua file or
// directory path.
func Open(arg string, seed int64) (Source, error) {
	if _, ok := builtins[arg]; ok {
		return Builtin(arg, seed)
	}
	if _, err := os.Stat(arg); err != nil {
		return nil, fmt.Errorf("unknown scenario %q (built-in: %s): %w", arg, strings.Join(Names(), ", "), err)
	}
	return Lua(arg), nil
}

// LuaSource loads its scenario from disk on every Build.
type LuaSource struct {
	Path  string
	ticks int
}

// Lua returns a Source backed by a Lua scenario file or directory.
func Lua(path string) *LuaSource { return &LuaSource{Path: path} }

func (s *LuaSource) Name() string { return s.Path }

// Ticks is the Scenario.ticks value of the last Build.
func (s *LuaSource) Ticks() int { return s.ticks }

func (s *LuaSource) Build() (*world.World, error) {
	def, err := loader.Load(s.Path)
	if err != nil {
		return nil, err
	}
	s.ticks = def.Ticks
	return builder.Build(def)
}
