package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles used throughout the TUI.
var (
	styleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Bold(true)

	styleStatusHalted = styleStatusBar.
				Foreground(lipgloss.Color("203"))

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(lipgloss.Color("34"))

	stylePlain = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	styleAgentID = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	styleAbilities = lipgloss.NewStyle().
			Foreground(lipgloss.Color("180"))

	styleSummary = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleDiagnostic = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	styleSystem = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleUserInput = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34"))

	styleTrace = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// lineKind identifies the type of an output line for styling.
type lineKind int

const (
	kindPlain lineKind = iota
	kindTree
	kindSummary
	kindDiagnostic
	kindSystem
	kindError
	kindTrace
)

// classifyLine determines what kind of output line this is.
func classifyLine(line string) lineKind {
	trimmed := strings.TrimLeft(line, " ")
	switch {
	case strings.HasPrefix(line, "[trace]"):
		return kindTrace
	case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		return kindSystem
	case strings.HasPrefix(line, "tick ") && strings.Contains(line, "digest="):
		return kindSummary
	case strings.HasPrefix(trimmed, "! "):
		return kindDiagnostic
	case strings.HasPrefix(line, "Tick failed"),
		strings.HasPrefix(line, "No snapshot"):
		return kindError
	case strings.HasPrefix(trimmed, "#"):
		return kindTree
	default:
		return kindPlain
	}
}

func renderLineKind(line string, kind lineKind) string {
	switch kind {
	case kindTree:
		return styledTreeLine(line)
	case kindSummary:
		return styleSummary.Render(line)
	case kindDiagnostic:
		return styleDiagnostic.Render(line)
	case kindSystem:
		return styleSystem.Render(line)
	case kindError:
		return styleError.Render(line)
	case kindTrace:
		return styleTrace.Render(strings.TrimPrefix(line, "[trace]"))
	default:
		return stylePlain.Render(line)
	}
}

// styledTreeLine renders "  #2 dog calories=0 [eat]" with the id bold and
// the ability list dimmed.
func styledTreeLine(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]

	id, rest, _ := strings.Cut(trimmed, " ")
	var abilities string
	if i := strings.LastIndex(rest, " ["); i >= 0 && strings.HasSuffix(rest, "]") {
		rest, abilities = rest[:i], rest[i:]
	}
	return indent + styleAgentID.Render(id) + stylePlain.Render(" "+rest) + styleAbilities.Render(abilities)
}

// styledSystemMsg renders a system message in gray with brackets.
func styledSystemMsg(text string) string {
	return styleSystem.Render("[" + text + "]")
}
