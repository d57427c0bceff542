// Package tui provides a Bubble Tea terminal viewer for a running
// simulation clock.
package tui

import "slices"

// History is a bounded command history with cursor-based navigation.
type History struct {
	entries []string
	max     int
	cursor  int // -1 = not navigating, 0..len-1 = position in entries
}

// NewHistory creates a history buffer with the given maximum size.
func NewHistory(max int) *History {
	return &History{
		entries: make([]string, 0, max),
		max:     max,
		cursor:  -1,
	}
}

// Push records a command as the most recent entry. A command already in
// the history is moved to the end rather than stored twice.
func (h *History) Push(cmd string) {
	if i := slices.Index(h.entries, cmd); i >= 0 {
		h.entries = slices.Delete(h.entries, i, i+1)
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// Entries returns the history, oldest first.
func (h *History) Entries() []string { return slices.Clone(h.entries) }

// Prev returns the previous (older) entry, or false if history is empty.
func (h *History) Prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor == -1:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Next returns the next (newer) entry. It reports false once past the
// most recent entry, which returns navigation to fresh input.
func (h *History) Next() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		h.cursor = -1
		return "", false
	}
	return h.entries[h.cursor], true
}

// ResetCursor leaves navigation mode.
func (h *History) ResetCursor() {
	h.cursor = -1
}
