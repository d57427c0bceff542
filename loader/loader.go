package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nathoo/agentsim/types"
	lua "github.com/yuin/gopher-lua"
)

// collector accumulates Lua definitions during file execution.
type collector struct {
	scenario *lua.LTable
	agents   []rawAgent
	order    int
}

func (c *collector) nextSourceOrder() int {
	c.order++
	return c.order
}

// Load reads a scenario from path, which is either a single .lua file or a
// directory of them, compiles it into a ScenarioDef and validates it.
// Validation warnings are logged through slog.Default.
func Load(path string) (*types.ScenarioDef, error) {
	files, err := luaFiles(path)
	if err != nil {
		return nil, err
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openSafeLibs(L)
	sandbox(L)

	coll := &collector{}
	registerAPI(L, coll)

	for _, f := range files {
		if err := L.DoFile(f); err != nil {
			return nil, fmt.Errorf("executing %s: %w", filepath.Base(f), err)
		}
	}

	def, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling scenario: %w", err)
	}

	warnings, err := Validate(def)
	for _, w := range warnings {
		slog.Warn("scenario warning", "path", path, "msg", w)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

func luaFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening scenario: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", path, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no .lua files found in %s", path)
	}
	names = sortedLuaFiles(names)
	for i, n := range names {
		names[i] = filepath.Join(path, n)
	}
	return names, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes dangerous globals and functions.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Scenario builds must be reproducible; seeds come from the Scenario table.
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("random", lua.LNil)
		tbl.RawSetString("randomseed", lua.LNil)
	}
}
