package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// Marker keys placed on tables returned by constructors so compile can tell
// them apart from plain trait values.
const (
	agentMarker   = "__agent"
	abilityMarker = "__ability"
	fromMarker    = "__from"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerSelectorHelpers(L)
	registerConditionHelpers(L)
	registerEffectHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Scenario { title = "...", ... }
	L.SetGlobal("Scenario", L.NewFunction(func(L *lua.LState) int {
		coll.scenario = L.CheckTable(1)
		return 0
	}))

	// Agent "name" { ... } is curried: Agent("name") returns a function that
	// takes the trait table and returns a marker for nesting.
	L.SetGlobal("Agent", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.OptTable(1, L.NewTable())
			idx := len(coll.agents)
			coll.agents = append(coll.agents, rawAgent{name: name, table: tbl, order: coll.nextSourceOrder()})
			tbl.RawSetString(agentMarker, lua.LNumber(idx))
			L.Push(tbl)
			return 1
		}))
		return 1
	}))

	// Ability { targets = ..., when = {...}, effects = {...} }
	L.SetGlobal("Ability", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		tbl.RawSetString(abilityMarker, lua.LNumber(coll.nextSourceOrder()))
		L.Push(tbl)
		return 1
	}))

	// From("target", "calories" [, factor]) reads a trait at evaluation time.
	L.SetGlobal("From", L.NewFunction(func(L *lua.LState) int {
		who := L.CheckString(1)
		trait := L.CheckString(2)
		tbl := L.NewTable()
		tbl.RawSetString(fromMarker, lua.LTrue)
		tbl.RawSetString("who", lua.LString(who))
		tbl.RawSetString("trait", lua.LString(trait))
		if L.GetTop() >= 3 {
			tbl.RawSetString("factor", L.CheckNumber(3))
		}
		L.Push(tbl)
		return 1
	}))
}

// helper builds a {type = typ, ...} table from positional arguments. A
// trailing string argument past the named ones is taken as "who".
func helper(L *lua.LState, typ string, names ...string) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(typ))
	for i, name := range names {
		v := L.Get(i + 1)
		if v != lua.LNil {
			tbl.RawSetString(name, v)
		}
	}
	if who, ok := L.Get(len(names) + 1).(lua.LString); ok {
		tbl.RawSetString("who", who)
	}
	return tbl
}

func register(L *lua.LState, global, typ string, names ...string) {
	L.SetGlobal(global, L.NewFunction(func(L *lua.LState) int {
		L.Push(helper(L, typ, names...))
		return 1
	}))
}

func registerSelectorHelpers(L *lua.LState) {
	register(L, "Self", "self")
	register(L, "All", "all")
	register(L, "Children", "children")
	register(L, "Siblings", "siblings")
	register(L, "Parent", "parent")

	// WithTrait("edible")
	L.SetGlobal("WithTrait", L.NewFunction(func(L *lua.LState) int {
		L.CheckString(1)
		L.Push(helper(L, "with_trait", "trait"))
		return 1
	}))

	// WithinRange(2.5)
	L.SetGlobal("WithinRange", L.NewFunction(func(L *lua.LState) int {
		L.CheckNumber(1)
		L.Push(helper(L, "within_range", "range"))
		return 1
	}))
}

func registerConditionHelpers(L *lua.LState) {
	// TraitIs("colour", "red" [, who])
	register(L, "TraitIs", "trait_is", "trait", "value")
	// TraitGt("calories", 5 [, who]) and friends.
	register(L, "TraitGt", "trait_gt", "trait", "value")
	register(L, "TraitLt", "trait_lt", "trait", "value")
	register(L, "TraitGe", "trait_ge", "trait", "value")
	register(L, "TraitLe", "trait_le", "trait", "value")
	// HasTrait("edible" [, who])
	register(L, "HasTrait", "has_trait", "trait")
	register(L, "LacksTrait", "lacks_trait", "trait")
	// NameIs("apple" [, who])
	register(L, "NameIs", "name_is", "name")
	register(L, "SameAgent", "same_agent")

	// Not(condition)
	L.SetGlobal("Not", L.NewFunction(func(L *lua.LState) int {
		inner := L.CheckTable(1)
		tbl := L.NewTable()
		tbl.RawSetString("type", lua.LString("not"))
		list := L.NewTable()
		list.Append(inner)
		tbl.RawSetString("inner", list)
		L.Push(tbl)
		return 1
	}))

	// AnyOf(cond1, cond2, ...)
	L.SetGlobal("AnyOf", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("type", lua.LString("any"))
		list := L.NewTable()
		for i := 1; i <= L.GetTop(); i++ {
			list.Append(L.CheckTable(i))
		}
		tbl.RawSetString("inner", list)
		L.Push(tbl)
		return 1
	}))
}

func registerEffectHelpers(L *lua.LState) {
	// Remove([who])
	L.SetGlobal("Remove", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		tbl.RawSetString("type", lua.LString("remove"))
		if who, ok := L.Get(1).(lua.LString); ok {
			tbl.RawSetString("who", who)
		}
		L.Push(tbl)
		return 1
	}))

	// Set("hungry", false [, who]) or Set("colour", From("target", "colour")).
	register(L, "Set", "set", "trait", "value")
	// Adjust("calories", 5 [, who]) or Adjust("calories", From("target", "calories"), "caster").
	register(L, "Adjust", "adjust", "trait", "amount")
	// Unset("hungry" [, who])
	register(L, "Unset", "unset", "trait")
	// Move("target", "caster") moves the target under the caster.
	register(L, "Move", "move", "who", "to")
	// Transfer("calories", "target", "caster" [, amount])
	register(L, "Transfer", "transfer", "trait", "from", "to", "amount")

	// Spawn { name = "rabbit", who = "caster", where = "beside", traits = {...} }
	L.SetGlobal("Spawn", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		tbl.RawSetString("type", lua.LString("spawn"))
		L.Push(tbl)
		return 1
	}))

	// Stop()
	register(L, "Stop", "stop")
}
