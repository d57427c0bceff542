package cli

import (
	"fmt"
	"io"

	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Printer is a clock observer that writes one summary line per committed
// tick, followed by diagnostics, operations (Trace) and the tree (Tree).
type Printer struct {
	Out   io.Writer
	Trace bool
	Tree  bool
}

func (p *Printer) OnTickCommitted(_ uint64, snap *world.Snapshot) {
	if !p.Tree {
		return
	}
	for _, line := range export.Tree(snap) {
		fmt.Fprintln(p.Out, line)
	}
}

func (p *Printer) OnTickReport(r types.TickReport) {
	fmt.Fprintln(p.Out, export.Summary(r))
	for _, d := range r.Diagnostics {
		fmt.Fprintln(p.Out, export.Diagnostic(d))
	}
	if p.Trace {
		for _, op := range r.Ops {
			fmt.Fprintln(p.Out, export.OpLine(op))
		}
	}
}
