// Package history stores per-tick run statistics in SQLite.
package history

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nathoo/agentsim/engine/world"
	"github.com/nathoo/agentsim/types"
)

// Run is one row of the runs table.
type Run struct {
	ID       string `db:"id"`
	Scenario string `db:"scenario"`
	Seed     int64  `db:"seed"`
	Started  int64  `db:"started_at"` // unix nanoseconds
}

// Tick is one row of the ticks table.
type Tick struct {
	Run        string `db:"run_id"`
	Tick       int64  `db:"tick"`
	Agents     int    `db:"agents"`
	Casters    int    `db:"casters"`
	Batches    int    `db:"batches"`
	Applied    int    `db:"applied"`
	Skipped    int    `db:"skipped"`
	Rejected   int    `db:"rejected"`
	Digest     string `db:"digest"`
	DurationUS int64  `db:"duration_us"`
}

// Diagnostic is one row of the diagnostics table.
type Diagnostic struct {
	Run      string `db:"run_id"`
	Tick     int64  `db:"tick"`
	Severity string `db:"severity"`
	Caster   int64  `db:"caster"`
	Target   int64  `db:"target"`
	Ability  string `db:"ability"`
	Message  string `db:"message"`
}

// Store wraps a SQLite database. After BeginRun it acts as a clock
// observer: snapshots feed the population table and reports feed the
// ticks and diagnostics tables.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu  sync.Mutex
	run uuid.UUID
	err error
}

// Open opens or creates the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		casters INTEGER NOT NULL,
		batches INTEGER NOT NULL,
		applied INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		digest TEXT NOT NULL,
		duration_us INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS population (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		name TEXT NOT NULL,
		count INTEGER NOT NULL,
		PRIMARY KEY (run_id, tick, name)
	);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		severity TEXT NOT NULL,
		caster INTEGER NOT NULL,
		target INTEGER NOT NULL,
		ability TEXT NOT NULL,
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id, tick);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun registers a new run and makes it the target of observer writes.
func (s *Store) BeginRun(scenario string, seed int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(`INSERT INTO runs (id, scenario, seed, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), scenario, seed, time.Now().UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin run: %w", err)
	}
	s.mu.Lock()
	s.run = id
	s.mu.Unlock()
	s.logger.Info("history run started", "run", id, "scenario", scenario)
	return id, nil
}

// OnTickCommitted records the population of the snapshot by agent name.
func (s *Store) OnTickCommitted(tick uint64, snap *world.Snapshot) {
	counts := map[string]int{}
	for a := range snap.Agents() {
		counts[a.Name()]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	slices.Sort(names)

	s.write(tick, func(tx *sqlx.Tx, run string) error {
		for _, n := range names {
			if _, err := tx.Exec(`INSERT INTO population (run_id, tick, name, count) VALUES (?, ?, ?, ?)`,
				run, int64(tick), n, counts[n]); err != nil {
				return err
			}
		}
		return nil
	})
}

// OnTickReport records the tick summary and its diagnostics.
func (s *Store) OnTickReport(r types.TickReport) {
	s.write(r.Tick, func(tx *sqlx.Tx, run string) error {
		row := Tick{
			Run:        run,
			Tick:       int64(r.Tick),
			Agents:     r.Agents,
			Casters:    r.Casters,
			Batches:    r.Batches,
			Applied:    r.Applied,
			Skipped:    r.Skipped,
			Rejected:   r.Rejected,
			Digest:     r.Digest,
			DurationUS: r.Duration.Microseconds(),
		}
		if _, err := tx.NamedExec(`INSERT INTO ticks
			(run_id, tick, agents, casters, batches, applied, skipped, rejected, digest, duration_us)
			VALUES (:run_id, :tick, :agents, :casters, :batches, :applied, :skipped, :rejected, :digest, :duration_us)`, row); err != nil {
			return err
		}
		for _, d := range r.Diagnostics {
			if _, err := tx.Exec(`INSERT INTO diagnostics (run_id, tick, severity, caster, target, ability, message)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				run, int64(d.Tick), string(d.Severity), int64(d.Caster), int64(d.Target), d.Ability, d.Message); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) write(tick uint64, fn func(tx *sqlx.Tx, run string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == uuid.Nil {
		return
	}
	err := func() error {
		tx, err := s.db.Beginx()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx, s.run.String()); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		s.logger.Error("history write failed", "run", s.run, "tick", tick, "err", err)
		if s.err == nil {
			s.err = err
		}
	}
}

// Err returns the first write error seen by the observer methods.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Runs lists runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.Select(&runs, `SELECT id, scenario, seed, started_at FROM runs ORDER BY started_at DESC`)
	return runs, err
}

// Ticks returns the tick rows of a run in order.
func (s *Store) Ticks(run uuid.UUID) ([]Tick, error) {
	var ticks []Tick
	err := s.db.Select(&ticks, `SELECT run_id, tick, agents, casters, batches, applied, skipped, rejected, digest, duration_us
		FROM ticks WHERE run_id = ? ORDER BY tick`, run.String())
	return ticks, err
}

// Population returns agent counts by name for one tick of a run.
func (s *Store) Population(run uuid.UUID, tick uint64) (map[string]int, error) {
	rows, err := s.db.Queryx(`SELECT name, count FROM population WHERE run_id = ? AND tick = ?`, run.String(), int64(tick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

// Diagnostics returns the diagnostics of a run in order.
func (s *Store) Diagnostics(run uuid.UUID) ([]Diagnostic, error) {
	var ds []Diagnostic
	err := s.db.Select(&ds, `SELECT run_id, tick, severity, caster, target, ability, message
		FROM diagnostics WHERE run_id = ? ORDER BY id`, run.String())
	return ds, err
}
