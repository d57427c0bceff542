package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nathoo/agentsim/engine"
)

// renderStatusBar produces a full-width inverted status line showing the
// scenario title, clock state and agent count, with the tick on the right.
func (m Model) renderStatusBar() string {
	state := m.clock.State()
	label := state.String()
	if m.playing && state != engine.Halted {
		label = "playing"
	}

	agents := "?"
	if snap, err := m.clock.Snapshot(); err == nil {
		agents = fmt.Sprint(snap.Len())
	}

	title := m.title
	if title == "" {
		title = "agentsim"
	}
	left := fmt.Sprintf(" %s | %s | Agents: %s", title, label, agents)
	right := fmt.Sprintf("T:%d ", m.clock.TickCount())
	if m.trace {
		right = "trace | " + right
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	bar := left + strings.Repeat(" ", gap) + right

	style := styleStatusBar
	if state == engine.Halted {
		style = styleStatusHalted
	}
	return style.Width(m.width).Render(bar)
}
