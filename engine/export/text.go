package export

import (
	"fmt"
	"strings"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Tree renders snap as indented text lines, one per agent:
//
//	#2 dog calories=10 [eat]
//
// Agent-valued traits are shown as name=#id.
func Tree(snap *world.Snapshot) []string {
	var lines []string
	for a := range snap.Agents() {
		lines = append(lines, strings.Repeat("  ", a.Depth())+Line(a))
	}
	return lines
}

// Line renders a single agent without indentation.
func Line(a *world.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", a.ID(), a.Name())
	var abilities []string
	for name, v := range a.Traits() {
		switch v.Kind() {
		case world.KindAbility:
			abilities = append(abilities, name)
		case world.KindAgent:
			ref, _ := v.AsAgent()
			fmt.Fprintf(&b, " %s=#%d", name, ref.ID())
		default:
			fmt.Fprintf(&b, " %s=%s", name, v)
		}
	}
	if len(abilities) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(abilities, " "))
	}
	return b.String()
}

// Summary renders a tick report as a single line.
func Summary(r types.TickReport) string {
	return fmt.Sprintf("tick %d: agents=%d evaluated=%d applied=%d skipped=%d rejected=%d digest=%s",
		r.Tick, r.Agents, r.Evaluated, r.Applied, r.Skipped, r.Rejected, shortDigest(r.Digest))
}

// Diagnostic renders a diagnostic as an indented line.
func Diagnostic(d types.Diagnostic) string {
	return fmt.Sprintf("  ! %s %s on #%d by #%d: %s", d.Severity, d.Ability, d.Target, d.Caster, d.Message)
}

// OpLine renders an operation outcome as an indented line.
func OpLine(op types.OpRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %d %s #%d", op.Batch, op.Kind, op.Agent)
	if op.Trait != "" {
		fmt.Fprintf(&b, " %s", op.Trait)
	}
	fmt.Fprintf(&b, " -> %s", op.Outcome)
	if op.Reason != "" {
		fmt.Fprintf(&b, " (%s)", op.Reason)
	}
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
