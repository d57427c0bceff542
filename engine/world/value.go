package world

import (
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNumber
	KindString
	KindBool
	KindAgent
	KindAbility
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindAgent:
		return "agent"
	case KindAbility:
		return "ability"
	default:
		return "invalid"
	}
}

// Value is a trait value. It is a tagged variant: primitives are held by
// value, an agent reference marks an owned child, an ability reference marks
// an executable rule.
type Value struct {
	kind    Kind
	num     float64
	str     string
	flag    bool
	agent   *Agent
	ability *Ability
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// AgentRef returns a value that owns a as a child of the trait holder.
func AgentRef(a *Agent) Value { return Value{kind: KindAgent, agent: a} }

// AbilityRef returns a value holding an ability.
func AbilityRef(ab *Ability) Value { return Value{kind: KindAbility, ability: ab} }

// FromAny converts a Go primitive into a Value. Integers become numbers.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case Value:
		return v, nil
	default:
		return Value{}, fmt.Errorf("unsupported trait value type %T", x)
	}
}

func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds any variant.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// IsPrimitive reports whether v is a number, string or bool.
func (v Value) IsPrimitive() bool {
	return v.kind == KindNumber || v.kind == KindString || v.kind == KindBool
}

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBool }

func (v Value) AsAgent() (*Agent, bool) { return v.agent, v.kind == KindAgent && v.agent != nil }

func (v Value) AsAbility() (*Ability, bool) {
	return v.ability, v.kind == KindAbility && v.ability != nil
}

// Interface returns the primitive as a plain Go value (float64, string, bool).
// Agent references yield the agent's ID; abilities yield nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.flag
	case KindAgent:
		if v.agent != nil {
			return v.agent.id
		}
	}
	return nil
}

// Equal compares two values. Agent references are equal when they refer to
// the same agent ID; abilities when they are the same rule.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.flag == o.flag
	case KindAgent:
		if v.agent == nil || o.agent == nil {
			return v.agent == o.agent
		}
		return v.agent.id == o.agent.id
	case KindAbility:
		return v.ability == o.ability
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindAgent:
		if v.agent == nil {
			return "agent#nil"
		}
		return fmt.Sprintf("agent#%d", v.agent.id)
	case KindAbility:
		return "ability"
	default:
		return "<invalid>"
	}
}
