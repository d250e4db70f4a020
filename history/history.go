// Package history keeps a SQLite record of sweeps: every simulation run and
// the critical head found per scenario.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/notargets/geodrive/piping"
)

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	started_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS probes (
	sweep_id   TEXT NOT NULL REFERENCES sweeps(id),
	scenario   TEXT NOT NULL,
	head       REAL NOT NULL,
	active     INTEGER NOT NULL,
	elements   INTEGER NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	error      TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_probes_sweep ON probes(sweep_id, scenario);
CREATE TABLE IF NOT EXISTS results (
	sweep_id      TEXT NOT NULL REFERENCES sweeps(id),
	scenario      TEXT NOT NULL,
	critical_head REAL,
	reason        TEXT NOT NULL,
	probes        INTEGER NOT NULL,
	PRIMARY KEY (sweep_id, scenario)
);
`

var ErrNoSweeps = errors.New("no sweep recorded")

// Store records the sweep it was started for, see BeginSweep
type Store struct {
	db      *sql.DB
	sweepID string
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	// One writer; concurrent scenarios serialize through the pool
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginSweep registers a new sweep; later records belong to it
func (s *Store) BeginSweep(ctx context.Context, title string) (id string, err error) {
	id = uuid.NewString()
	if _, err = s.db.ExecContext(ctx,
		"INSERT INTO sweeps (id, title, started_at) VALUES (?, ?, ?)",
		id, title, time.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("recording sweep: %w", err)
	}
	s.sweepID = id
	return id, nil
}

func (s *Store) SweepID() string { return s.sweepID }

var _ piping.Recorder = &Store{}

func (s *Store) RecordProbe(ctx context.Context, ev piping.ProbeEvent) error {
	if len(s.sweepID) == 0 {
		return fmt.Errorf("no sweep started")
	}
	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO probes (sweep_id, scenario, head, active, elements, elapsed_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sweepID, ev.Scenario, ev.Head, ev.Active, ev.Elements, ev.Elapsed.Milliseconds(),
		errText, time.Now().UnixMilli())
	return err
}

func (s *Store) RecordResult(ctx context.Context, res piping.CriticalHead) error {
	if len(s.sweepID) == 0 {
		return fmt.Errorf("no sweep started")
	}
	var head sql.NullFloat64
	if !math.IsNaN(res.Head) {
		head = sql.NullFloat64{Float64: res.Head, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (sweep_id, scenario, critical_head, reason, probes)
		 VALUES (?, ?, ?, ?, ?)`,
		s.sweepID, res.Scenario, head, res.Reason.String(), res.Probes)
	return err
}

// Result is a stored scenario result; Head is NaN when none was found
type Result struct {
	Scenario string
	Head     float64
	Reason   string
	Probes   int
}

func (s *Store) Results(ctx context.Context, sweepID string) (results []Result, err error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT scenario, critical_head, reason, probes FROM results WHERE sweep_id = ? ORDER BY scenario",
		sweepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r    Result
			head sql.NullFloat64
		)
		if err = rows.Scan(&r.Scenario, &head, &r.Reason, &r.Probes); err != nil {
			return nil, err
		}
		r.Head = math.NaN()
		if head.Valid {
			r.Head = head.Float64
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ProbeCount returns the number of runs recorded for a scenario of a sweep
func (s *Store) ProbeCount(ctx context.Context, sweepID, scenario string) (n int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM probes WHERE sweep_id = ? AND scenario = ?", sweepID, scenario).Scan(&n)
	return
}

// LatestSweep returns the ID of the most recently started sweep
func (s *Store) LatestSweep(ctx context.Context) (id string, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM sweeps ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSweeps
	}
	return
}
