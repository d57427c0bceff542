// Package loader loads Lua scenario files into Go definitions before the
// first tick. The Lua VM is discarded after loading; no Lua runs at tick time.
package loader

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/nathoo/agentsim/types"
	lua "github.com/yuin/gopher-lua"
)

// rawAgent holds an agent table before compilation.
type rawAgent struct {
	name  string
	table *lua.LTable
	order int
}

// reserved agent table keys that are not traits.
const childrenKey = "children"

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getNumber returns a numeric field from a Lua table, or 0 if missing.
func getNumber(tbl *lua.LTable, key string) float64 {
	if n, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	if t, ok := tbl.RawGetString(key).(*lua.LTable); ok {
		return t
	}
	return nil
}

// toGoValue converts a Lua value to a Go value recursively. Numbers stay
// float64 so trait values keep one numeric type.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if maxN := val.MaxN(); maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	default:
		return nil
	}
}

// sortedKeys returns the string keys of tbl in alphabetical order, skipping
// marker keys. Lua tables have no stable iteration order.
func sortedKeys(tbl *lua.LTable) []string {
	var keys []string
	tbl.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok && !strings.HasPrefix(string(ks), "__") {
			keys = append(keys, string(ks))
		}
	})
	sort.Strings(keys)
	return keys
}

// arrayTables returns the table elements of a Lua array in order.
func arrayTables(tbl *lua.LTable) []*lua.LTable {
	if tbl == nil {
		return nil
	}
	var out []*lua.LTable
	for i := 1; i <= tbl.MaxN(); i++ {
		if t, ok := tbl.RawGetInt(i).(*lua.LTable); ok {
			out = append(out, t)
		}
	}
	return out
}

func agentIndex(tbl *lua.LTable) (int, bool) {
	n, ok := tbl.RawGetString(agentMarker).(lua.LNumber)
	return int(n), ok
}

// compile converts all collected Lua data into a ScenarioDef. Agents that
// were nested as a child or an agent trait of another agent are placed
// there; the rest become top-level agents in source order.
func compile(coll *collector) (*types.ScenarioDef, error) {
	if coll.scenario == nil {
		return nil, fmt.Errorf("no Scenario{} definition found")
	}
	def := &types.ScenarioDef{
		Title:       getString(coll.scenario, "title"),
		Author:      getString(coll.scenario, "author"),
		Description: getString(coll.scenario, "description"),
		Seed:        int64(getNumber(coll.scenario, "seed")),
		Ticks:       int(getNumber(coll.scenario, "ticks")),
	}

	c := &compiler{coll: coll, nested: map[int]bool{}, building: map[int]bool{}}
	for i := range coll.agents {
		c.markNested(coll.agents[i].table)
	}
	for i, raw := range coll.agents {
		if c.nested[i] {
			continue
		}
		ad, err := c.agent(i)
		if err != nil {
			return nil, fmt.Errorf("compiling agent %s: %w", raw.name, err)
		}
		def.Agents = append(def.Agents, ad)
	}
	return def, nil
}

type compiler struct {
	coll     *collector
	nested   map[int]bool
	building map[int]bool
}

func (c *compiler) markNested(tbl *lua.LTable) {
	for _, key := range sortedKeys(tbl) {
		if t, ok := tbl.RawGetString(key).(*lua.LTable); ok {
			if idx, ok := agentIndex(t); ok {
				c.nested[idx] = true
			}
		}
	}
	for _, child := range arrayTables(getTable(tbl, childrenKey)) {
		if idx, ok := agentIndex(child); ok {
			c.nested[idx] = true
		}
	}
}

func (c *compiler) agent(idx int) (types.AgentDef, error) {
	if c.building[idx] {
		return types.AgentDef{}, fmt.Errorf("agent %q contains itself", c.coll.agents[idx].name)
	}
	c.building[idx] = true
	defer delete(c.building, idx)

	raw := c.coll.agents[idx]
	ad := types.AgentDef{Name: raw.name, SourceOrder: raw.order}
	for _, key := range sortedKeys(raw.table) {
		if key == childrenKey {
			continue
		}
		td, err := c.trait(key, raw.table.RawGetString(key))
		if err != nil {
			return types.AgentDef{}, fmt.Errorf("trait %s: %w", key, err)
		}
		ad.Traits = append(ad.Traits, td)
	}
	if children := getTable(raw.table, childrenKey); children != nil {
		for i := 1; i <= children.MaxN(); i++ {
			t, ok := children.RawGetInt(i).(*lua.LTable)
			if !ok {
				return types.AgentDef{}, fmt.Errorf("child %d is not an Agent", i)
			}
			ci, ok := agentIndex(t)
			if !ok {
				return types.AgentDef{}, fmt.Errorf("child %d is not an Agent", i)
			}
			child, err := c.agent(ci)
			if err != nil {
				return types.AgentDef{}, err
			}
			ad.Children = append(ad.Children, child)
		}
	}
	return ad, nil
}

func (c *compiler) trait(name string, v lua.LValue) (types.TraitDef, error) {
	td := types.TraitDef{Name: name}
	switch val := v.(type) {
	case lua.LNumber, lua.LString, lua.LBool:
		td.Value = toGoValue(val)
	case *lua.LTable:
		if idx, ok := agentIndex(val); ok {
			ad, err := c.agent(idx)
			if err != nil {
				return td, err
			}
			td.Agent = &ad
			return td, nil
		}
		if val.RawGetString(abilityMarker) != lua.LNil {
			ab := compileAbility(val)
			td.Ability = &ab
			return td, nil
		}
		return td, fmt.Errorf("tables must be built with Agent or Ability")
	default:
		return td, fmt.Errorf("unsupported value type %s", v.Type())
	}
	return td, nil
}

func compileAbility(tbl *lua.LTable) types.AbilityDef {
	ab := types.AbilityDef{SourceOrder: int(getNumber(tbl, abilityMarker))}
	if sel := getTable(tbl, "targets"); sel != nil {
		ab.Targets = types.Selector{Type: getString(sel, "type"), Params: params(sel)}
	}
	ab.Conditions = compileConditions(getTable(tbl, "when"))
	ab.Effects = compileEffects(getTable(tbl, "effects"))
	return ab
}

// params collects every non-type string key as a Go value. A From(...)
// marker is flattened into from_who, from_trait and factor.
func params(tbl *lua.LTable) map[string]any {
	out := map[string]any{}
	for _, key := range sortedKeys(tbl) {
		if key == "type" || key == "inner" {
			continue
		}
		v := tbl.RawGetString(key)
		if t, ok := v.(*lua.LTable); ok && t.RawGetString(fromMarker) != lua.LNil {
			out["from_who"] = getString(t, "who")
			out["from_trait"] = getString(t, "trait")
			if f, ok := t.RawGetString("factor").(lua.LNumber); ok {
				out["factor"] = float64(f)
			}
			continue
		}
		out[key] = toGoValue(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func compileConditions(tbl *lua.LTable) []types.Condition {
	var conds []types.Condition
	for _, t := range arrayTables(tbl) {
		conds = append(conds, compileCondition(t))
	}
	return conds
}

func compileCondition(tbl *lua.LTable) types.Condition {
	return types.Condition{
		Type:   getString(tbl, "type"),
		Params: params(tbl),
		Inner:  compileConditions(getTable(tbl, "inner")),
	}
}

func compileEffects(tbl *lua.LTable) []types.Effect {
	var effs []types.Effect
	for _, t := range arrayTables(tbl) {
		effs = append(effs, types.Effect{Type: getString(t, "type"), Params: params(t)})
	}
	return effs
}

// sortedLuaFiles returns .lua files with scenario.lua first and the rest
// sorted alphabetically.
func sortedLuaFiles(files []string) []string {
	var others []string
	first := false
	for _, f := range files {
		if f == "scenario.lua" {
			first = true
		} else {
			others = append(others, f)
		}
	}
	slices.Sort(others)
	if first {
		return append([]string{"scenario.lua"}, others...)
	}
	return others
}
