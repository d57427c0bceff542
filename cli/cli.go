// Package cli provides terminal I/O, output formatting, and meta-command
// dispatch for driving a simulation clock interactively.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nathoo/agentsim/engine"
	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/types"
)

// CLI is a line-oriented REPL over a clock.
type CLI struct {
	Clock     *engine.Clock
	Title     string
	In        io.Reader
	Out       io.Writer
	SaveDir   string
	Trace     bool
	EchoInput bool   // echo each input line after the prompt (for script playback)
	lastCmd   string // for "again"/"g" repeat
}

// New creates a CLI wired to the given clock.
func New(clock *engine.Clock, title string) *CLI {
	home, _ := os.UserHomeDir()
	return &CLI{
		Clock:   clock,
		Title:   title,
		In:      os.Stdin,
		Out:     os.Stdout,
		SaveDir: filepath.Join(home, ".agentsim", "frames"),
	}
}

// Run shows the initial tree, then loops: prompt -> input -> dispatch ->
// output, until /quit or end of input.
func (c *CLI) Run() {
	if c.Title != "" {
		c.printLine(c.Title)
		c.printLine("")
	}
	c.cmdTree()

	scanner := bufio.NewScanner(c.In)
	for {
		c.print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		if c.EchoInput {
			c.printLine(input)
		}

		if strings.HasPrefix(input, "/") {
			if c.handleMeta(input) {
				return
			}
			continue
		}

		lower := strings.ToLower(input)
		if lower == "again" || lower == "g" {
			if c.lastCmd == "" {
				c.printLine("Nothing to repeat.")
				continue
			}
			input = c.lastCmd
		} else {
			c.lastCmd = input
		}
		c.handle(input)
	}
}

// handle dispatches simulation commands.
func (c *CLI) handle(input string) {
	parts := strings.Fields(input)
	var arg string
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch strings.ToLower(parts[0]) {
	case "tick", "t", "step":
		n, err := count(arg)
		if err != nil {
			c.printSystem(err.Error())
			return
		}
		c.cmdTick(n)

	case "run":
		n, err := count(arg)
		if err != nil {
			c.printSystem(err.Error())
			return
		}
		c.cmdRun(n)

	case "tree", "ls":
		c.cmdTree()

	case "show", "x":
		c.cmdShow(arg)

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", parts[0]))
	}
}

// handleMeta dispatches meta-commands. Returns true if the REPL should exit.
func (c *CLI) handleMeta(input string) bool {
	parts := strings.Fields(input)
	cmd := parts[0]
	arg := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	switch cmd {
	case "/quit", "/exit":
		c.printSystem("Goodbye.")
		return true

	case "/save":
		c.cmdSave(arg)

	case "/help":
		c.cmdHelp()

	case "/state":
		c.cmdState()

	case "/halt":
		var reason error
		if arg != "" {
			reason = errors.New(arg)
		}
		c.Clock.Halt(reason)
		c.printSystem(fmt.Sprintf("Halted: %v", c.Clock.Err()))

	case "/trace":
		c.Trace = !c.Trace
		if c.Trace {
			c.printSystem("Trace output enabled.")
		} else {
			c.printSystem("Trace output disabled.")
		}

	default:
		c.printSystem(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}
	return false
}

func count(arg string) (int, error) {
	if arg == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("Not a tick count: %s", arg)
	}
	return n, nil
}

func (c *CLI) cmdTick(n int) {
	for range n {
		report, err := c.Clock.Tick()
		if err != nil {
			c.printSystem(fmt.Sprintf("Tick failed: %v", err))
			return
		}
		c.printReport(report)
	}
	c.cmdTree()
}

func (c *CLI) cmdRun(n int) {
	remove := c.Clock.AddObserver(&Printer{Out: c.Out, Trace: c.Trace})
	defer remove()

	ran, err := c.Clock.Run(context.Background(), n)
	if err != nil {
		c.printSystem(fmt.Sprintf("Run stopped after %d tick(s): %v", ran, err))
		return
	}
	c.printSystem(fmt.Sprintf("Ran %d tick(s).", ran))
	c.cmdTree()
}

func (c *CLI) cmdTree() {
	snap, err := c.Clock.Snapshot()
	if err != nil {
		c.printSystem(fmt.Sprintf("No snapshot: %v", err))
		return
	}
	for _, line := range export.Tree(snap) {
		c.printLine(line)
	}
}

func (c *CLI) cmdShow(arg string) {
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		c.printSystem("Usage: show <id>")
		return
	}
	snap, err := c.Clock.Snapshot()
	if err != nil {
		c.printSystem(fmt.Sprintf("No snapshot: %v", err))
		return
	}
	a, ok := snap.Find(types.AgentID(id))
	if !ok {
		c.printSystem(fmt.Sprintf("No agent #%d.", id))
		return
	}
	c.printLine(export.Line(a))
	if p := a.Parent(); p != nil {
		c.printLine(fmt.Sprintf("  parent: #%d %s", p.ID(), p.Name()))
	}
	for _, ch := range a.Children() {
		c.printLine(fmt.Sprintf("  child:  #%d %s", ch.ID(), ch.Name()))
	}
}

func (c *CLI) cmdSave(name string) {
	if name == "" {
		name = fmt.Sprintf("tick-%d", c.Clock.TickCount())
	}
	snap, err := c.Clock.Snapshot()
	if err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}
	data, err := export.MarshalIndent(snap)
	if err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}
	if err := os.MkdirAll(c.SaveDir, 0o755); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}
	path := filepath.Join(c.SaveDir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.printSystem(fmt.Sprintf("Save failed: %v", err))
		return
	}
	c.printSystem(fmt.Sprintf("Frame saved to %s.", path))
}

func (c *CLI) cmdHelp() {
	help := []string{
		"System:",
		"  /save [name]   Export the current frame as JSON",
		"  /halt [reason] Halt the simulation",
		"  /state         Show clock state",
		"  /trace         Toggle per-operation output",
		"  /help          Show this help",
		"  /quit          Exit",
		"",
		"Simulation:",
		"  tick [n] (t)   Run n ticks (default 1) and show the tree",
		"  run <n>        Run n ticks, printing one line per tick",
		"  tree (ls)      Show the agent tree",
		"  show <id> (x)  Show one agent",
		"  again (g)      Repeat the last command",
	}
	for _, line := range help {
		c.printLine(line)
	}
}

func (c *CLI) cmdState() {
	c.printSystem(fmt.Sprintf("State: %s", c.Clock.State()))
	c.printSystem(fmt.Sprintf("Tick: %d", c.Clock.TickCount()))
	if snap, err := c.Clock.Snapshot(); err == nil {
		c.printSystem(fmt.Sprintf("Agents: %d", snap.Len()))
		c.printSystem(fmt.Sprintf("Digest: %s", snap.Digest()))
	}
	if err := c.Clock.Err(); err != nil {
		c.printSystem(fmt.Sprintf("Halted: %v", err))
	}
}

func (c *CLI) printReport(r types.TickReport) {
	c.printLine(export.Summary(r))
	for _, d := range r.Diagnostics {
		c.printLine(export.Diagnostic(d))
	}
	if c.Trace {
		for _, op := range r.Ops {
			c.printLine(export.OpLine(op))
		}
	}
}

func (c *CLI) printLine(text string) {
	fmt.Fprintln(c.Out, text)
}

func (c *CLI) print(text string) {
	fmt.Fprint(c.Out, text)
}

func (c *CLI) printSystem(text string) {
	fmt.Fprintf(c.Out, "[%s]\n", text)
}
