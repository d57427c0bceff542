package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/types"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text     string
	kind     lineKind
	isInput  bool // true for echoed user input
	isSystem bool // true for system messages
}

// Model is the Bubble Tea model for the tick viewer.
type Model struct {
	clock *engine.Clock
	title string

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine // accumulated output lines (unstyled, for re-wrapping)

	width    int
	height   int
	ready    bool
	trace    bool
	playing  bool
	interval time.Duration
	quitting bool
	lastCmd  string
	saveDir  string
}

// outputMsg carries command output into the Update loop.
type outputMsg struct {
	input    string   // echoed user input (empty for the initial tree)
	lines    []string // output lines
	isSystem bool     // true for meta-command output
}

// playMsg advances the clock while playing.
type playMsg struct{}

// New creates a TUI model wired to the given clock. interval paces /play.
func New(clock *engine.Clock, title string, interval time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	home, _ := os.UserHomeDir()
	return Model{
		clock:    clock,
		title:    title,
		input:    ti,
		history:  NewHistory(100),
		interval: interval,
		saveDir:  filepath.Join(home, ".agentsim", "frames"),
	}
}

// Run starts the Bubble Tea program.
func Run(clock *engine.Clock, title string, interval time.Duration) error {
	p := tea.NewProgram(New(clock, title, interval), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init returns the initial command that shows the title and starting tree.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialOutput())
}

func (m Model) initialOutput() tea.Cmd {
	return func() tea.Msg {
		var lines []string
		if m.title != "" {
			lines = append(lines, m.title, "")
		}
		lines = append(lines, m.treeLines()...)
		return outputMsg{lines: lines}
	}
}

func (m Model) playCmd() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return playMsg{} })
}

// Update handles messages (key presses, window resize, output, playback).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := max(m.height-2, 1) // 1 status bar + 1 input line
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case playMsg:
		if !m.playing {
			return m, nil
		}
		lines, err := m.tick(1)
		m = m.appendOutput(outputMsg{lines: lines})
		if err != nil {
			m.playing = false
			return m, nil
		}
		return m, m.playCmd()

	case outputMsg:
		m = m.appendOutput(msg)
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	lower := strings.ToLower(input)
	if lower == "again" || lower == "g" {
		if m.lastCmd == "" {
			m = m.appendOutput(outputMsg{
				input: input, lines: []string{"Nothing to repeat."}, isSystem: true,
			})
			return m, nil
		}
		input = m.lastCmd
	} else {
		m.lastCmd = input
	}

	if strings.HasPrefix(input, "/") {
		wasPlaying := m.playing
		output, quit := m.handleMeta(input)
		m = m.appendOutput(outputMsg{input: input, lines: output, isSystem: true})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		if m.playing && !wasPlaying {
			return m, m.playCmd()
		}
		return m, nil
	}

	m = m.appendOutput(outputMsg{input: input, lines: m.handle(input)})
	return m, nil
}

// handle dispatches simulation commands.
func (m *Model) handle(input string) []string {
	parts := strings.Fields(input)
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case "tick", "t", "step":
		n := 1
		if arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 1 {
				return []string{fmt.Sprintf("[Not a tick count: %s]", arg)}
			}
			n = v
		}
		lines, _ := m.tick(n)
		return lines

	case "tree", "ls":
		return m.treeLines()

	case "show", "x":
		return m.show(arg)

	default:
		return []string{fmt.Sprintf("[Unknown command: %s. Type /help for available commands.]", parts[0])}
	}
}

// tick runs up to n ticks and returns their summaries followed by the tree.
func (m *Model) tick(n int) ([]string, error) {
	var lines []string
	for range n {
		report, err := m.clock.Tick()
		if err != nil {
			return append(lines, fmt.Sprintf("Tick failed: %v", err)), err
		}
		lines = append(lines, export.Summary(report))
		for _, d := range report.Diagnostics {
			lines = append(lines, export.Diagnostic(d))
		}
		if m.trace {
			for _, op := range report.Ops {
				lines = append(lines, "[trace]"+export.OpLine(op))
			}
		}
	}
	return append(lines, m.treeLines()...), nil
}

func (m *Model) treeLines() []string {
	snap, err := m.clock.Snapshot()
	if err != nil {
		return []string{fmt.Sprintf("No snapshot: %v", err)}
	}
	return export.Tree(snap)
}

func (m *Model) show(arg string) []string {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return []string{"[Usage: show <id>]"}
	}
	snap, err := m.clock.Snapshot()
	if err != nil {
		return []string{fmt.Sprintf("No snapshot: %v", err)}
	}
	a, ok := snap.Find(types.AgentID(id))
	if !ok {
		return []string{fmt.Sprintf("[No agent #%d.]", id)}
	}
	lines := []string{export.Line(a)}
	for _, ch := range a.Children() {
		lines = append(lines, "  "+export.Line(ch))
	}
	return lines
}

// appendOutput adds lines to the log and refreshes the viewport.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{text: "> " + msg.input, isInput: true})
	}
	for _, line := range msg.lines {
		rl := rawLine{text: line, isSystem: msg.isSystem}
		if !msg.isSystem {
			rl.kind = classifyLine(line)
		}
		m.rawLines = append(m.rawLines, rl)
	}
	m.rawLines = append(m.rawLines, rawLine{})
	m.refreshViewport()
	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current width
// and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	width := max(m.width, 10)

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}
		wrapped := wordWrap(rl.text, width)
		switch {
		case rl.isInput:
			styled = append(styled, styleUserInput.Render(wrapped))
		case rl.isSystem:
			styled = append(styled, styledSystemMsg(wrapped))
		default:
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap wraps text to fit within width, breaking at spaces. Leading
// indentation is kept on the first line so tree depth stays visible.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}
	indent := text[:len(text)-len(strings.TrimLeft(text, " "))]

	var result strings.Builder
	result.WriteString(indent)
	lineLen := len(indent)
	for i, word := range strings.Fields(text) {
		switch {
		case i == 0:
		case lineLen+1+len(word) > width:
			result.WriteString("\n" + indent + "  ")
			lineLen = len(indent) + 2
		default:
			result.WriteString(" ")
			lineLen++
		}
		result.WriteString(word)
		lineLen += len(word)
	}
	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// handleMeta dispatches meta-commands. Returns output lines and quit flag.
func (m *Model) handleMeta(input string) ([]string, bool) {
	parts := strings.Fields(input)
	cmd := parts[0]
	arg := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	switch cmd {
	case "/quit", "/exit":
		return []string{"Goodbye."}, true

	case "/play":
		if m.clock.State() == engine.Halted {
			return []string{"Simulation is halted."}, false
		}
		m.playing = true
		return []string{fmt.Sprintf("Playing every %s. /pause to stop.", m.interval)}, false

	case "/pause":
		m.playing = false
		return []string{"Paused."}, false

	case "/halt":
		var reason error
		if arg != "" {
			reason = errors.New(arg)
		}
		m.playing = false
		m.clock.Halt(reason)
		return []string{fmt.Sprintf("Halted: %v", m.clock.Err())}, false

	case "/save":
		return m.cmdSave(arg), false

	case "/help":
		return m.cmdHelp(), false

	case "/state":
		return m.cmdState(), false

	case "/trace":
		m.trace = !m.trace
		if m.trace {
			return []string{"Trace output enabled."}, false
		}
		return []string{"Trace output disabled."}, false

	default:
		return []string{fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)}, false
	}
}

func (m *Model) cmdSave(name string) []string {
	if name == "" {
		name = fmt.Sprintf("tick-%d", m.clock.TickCount())
	}
	snap, err := m.clock.Snapshot()
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	data, err := export.MarshalIndent(snap)
	if err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	if err := os.MkdirAll(m.saveDir, 0o755); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	path := filepath.Join(m.saveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return []string{fmt.Sprintf("Save failed: %v", err)}
	}
	return []string{fmt.Sprintf("Frame saved to %s.", path)}
}

func (m *Model) cmdHelp() []string {
	return []string{
		"System:",
		"  /play          Tick continuously",
		"  /pause         Stop playing",
		"  /halt [reason] Halt the simulation",
		"  /save [name]   Export the current frame as JSON",
		"  /state         Show clock state",
		"  /trace         Toggle per-operation output",
		"  /help          Show this help",
		"  /quit          Exit",
		"",
		"Simulation:",
		"  tick [n] (t)   Run n ticks (default 1)",
		"  tree (ls)      Show the agent tree",
		"  show <id> (x)  Show one agent and its children",
		"  again (g)      Repeat the last command",
		"",
		"Navigation: PgUp/PgDn to scroll, Up/Down for command history",
	}
}

func (m *Model) cmdState() []string {
	out := []string{
		fmt.Sprintf("State: %s", m.clock.State()),
		fmt.Sprintf("Tick: %d", m.clock.TickCount()),
	}
	if snap, err := m.clock.Snapshot(); err == nil {
		out = append(out,
			fmt.Sprintf("Agents: %d", snap.Len()),
			fmt.Sprintf("Digest: %s", snap.Digest()))
	}
	if err := m.clock.Err(); err != nil {
		out = append(out, fmt.Sprintf("Halted: %v", err))
	}
	return out
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
