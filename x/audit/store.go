// Package audit persists completed epochs in SQLite so they can be inspected
// after the in-memory completed history has been pruned.
package audit

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/x/target"

	_ "modernc.org/sqlite"
)

// Record is one completed epoch.
type Record struct {
	Seq          int64     `json:"seq"`
	Target       string    `json:"target"`
	TemporalID   string    `json:"temporal_id"`
	Expected     int       `json:"expected"`
	Invalid      int       `json:"invalid"`
	DispatchedAt time.Time `json:"dispatched_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Store manages the audit database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" keeps it in process.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers and keeps in-memory databases shared.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS completed_epochs (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		target        TEXT NOT NULL,
		temporal_id   TEXT NOT NULL,
		expected      INTEGER NOT NULL,
		invalid       INTEGER NOT NULL,
		dispatched_at TEXT NOT NULL,
		completed_at  TEXT NOT NULL,
		UNIQUE (target, temporal_id)
	);
	CREATE INDEX IF NOT EXISTS idx_completed_target ON completed_epochs(target, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts r. A second record for the same target and temporal id is ignored.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completed_epochs (target, temporal_id, expected, invalid, dispatched_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(target, temporal_id) DO NOTHING`,
		r.Target, r.TemporalID, r.Expected, r.Invalid,
		r.DispatchedAt.UTC().Format(time.RFC3339Nano),
		r.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record completed epoch: %w", err)
	}
	return nil
}

// List returns the most recent records of targetName, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, targetName string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, target, temporal_id, expected, invalid, dispatched_at, completed_at
		 FROM completed_epochs WHERE target = ? ORDER BY seq DESC LIMIT ?`,
		targetName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed epochs: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			r                       Record
			dispatched, completedAt string
		)
		if err := rows.Scan(&r.Seq, &r.Target, &r.TemporalID, &r.Expected, &r.Invalid, &dispatched, &completedAt); err != nil {
			return nil, err
		}
		if r.DispatchedAt, err = time.Parse(time.RFC3339Nano, dispatched); err != nil {
			return nil, fmt.Errorf("parse dispatched_at: %w", err)
		}
		if r.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of records for targetName.
func (s *Store) Count(ctx context.Context, targetName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_epochs WHERE target = ?`, targetName).Scan(&n)
	return n, err
}

// Observer adapts the store to target.Config.OnCleanedUp. Write failures are logged.
func Observer[T cmp.Ordered](s *Store, targetName string, log zerolog.Logger) func(target.CompletedEpoch[T]) {
	return func(e target.CompletedEpoch[T]) {
		err := s.Record(context.Background(), Record{
			Target:       targetName,
			TemporalID:   fmt.Sprint(e.ID),
			Expected:     e.Expected,
			Invalid:      e.Invalid,
			DispatchedAt: e.DispatchedAt,
			CompletedAt:  e.CompletedAt,
		})
		if err != nil {
			log.Error().Err(err).Str("target", targetName).Interface("temporal_id", e.ID).Msg("Failed to audit completed epoch")
		}
	}
}
