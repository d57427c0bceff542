// Package journal records committed ticks as zstd-compressed JSON lines.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Entry is one journal line.
type Entry struct {
	Tick        uint64             `json:"tick"`
	Digest      string             `json:"digest"`
	Applied     int                `json:"applied"`
	Skipped     int                `json:"skipped"`
	Rejected    int                `json:"rejected"`
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
	Frame       *export.Frame      `json:"frame,omitempty"`
}

// Writer appends entries to a .jsonl.zst file. It is a clock observer:
// the snapshot arrives first and the entry is written when the report
// follows.
type Writer struct {
	logger *slog.Logger
	frames bool

	mu      sync.Mutex
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	pending *export.Frame
	err     error
}

// Option configures a Writer.
type Option func(*Writer)

// WithoutFrames writes only tick summaries.
func WithoutFrames() Option { return func(w *Writer) { w.frames = false } }

func WithLogger(l *slog.Logger) Option { return func(w *Writer) { w.logger = l } }

// Create opens path for writing, truncating any existing journal.
func Create(path string, opts ...Option) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &Writer{
		logger: slog.Default(),
		frames: true,
		f:      f,
		enc:    enc,
		w:      bufio.NewWriterSize(enc, 128*1024),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Writer) OnTickCommitted(_ uint64, snap *world.Snapshot) {
	if !w.frames {
		return
	}
	f := export.FromSnapshot(snap)
	w.mu.Lock()
	w.pending = &f
	w.mu.Unlock()
}

func (w *Writer) OnTickReport(r types.TickReport) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e := Entry{
		Tick:        r.Tick,
		Digest:      r.Digest,
		Applied:     r.Applied,
		Skipped:     r.Skipped,
		Rejected:    r.Rejected,
		Diagnostics: r.Diagnostics,
		Frame:       w.pending,
	}
	w.pending = nil
	if err := w.writeLocked(e); err != nil && w.err == nil {
		w.err = err
		w.logger.Error("journal write failed", "tick", r.Tick, "err", err)
	}
}

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(e)
}

func (w *Writer) writeLocked(e Entry) error {
	if w.w == nil {
		return errors.New("journal closed")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Err returns the first write error seen by the observer methods.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes the compressor and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		err = errors.Join(err, w.enc.Close())
		w.enc = nil
	}
	if w.f != nil {
		err = errors.Join(err, w.f.Close())
		w.f = nil
	}
	return err
}

// ReadAll decodes every entry of a journal file.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads entries from a zstd-compressed JSONL stream.
func Decode(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
