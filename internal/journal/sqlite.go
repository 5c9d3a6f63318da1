package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// schema is executed on every open; IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    ts        TEXT NOT NULL,
    kind      TEXT NOT NULL,
    component TEXT NOT NULL DEFAULT '',
    sender    TEXT NOT NULL DEFAULT '',
    detail    TEXT NOT NULL DEFAULT ''
);
`

// Store persists journal entries in a local SQLite database in WAL mode.
// It is append-only from the coordinator's point of view; reads exist for
// external inspection and tests.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath, enables WAL mode and
// a busy timeout, and creates the schema if missing.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	// One connection: SQLite has a single writer, and a lone pooled
	// connection keeps the PRAGMA setup applied everywhere.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one entry. Insert failures are logged, not returned, so
// the store satisfies Recorder.
func (s *Store) Record(e Entry) {
	if err := s.Insert(context.Background(), e); err != nil {
		log.Warn().Err(err).Str("kind", e.Kind).Msg("journal: record entry")
	}
}

// Insert writes one entry, returning any database error.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	const q = `INSERT INTO entries (ts, kind, component, sender, detail) VALUES (?, ?, ?, ?, ?)`
	ts := e.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, q, ts.UTC().Format(time.RFC3339Nano), e.Kind, e.Component, e.Sender, e.Detail); err != nil {
		return fmt.Errorf("journal: insert %s entry: %w", e.Kind, err)
	}
	return nil
}

// Entries returns every recorded entry in insertion order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	const q = `SELECT ts, kind, component, sender, detail FROM entries ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("journal: query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&ts, &e.Kind, &e.Component, &e.Sender, &e.Detail); err != nil {
			return nil, fmt.Errorf("journal: scan entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("journal: parse entry timestamp: %w", err)
		}
		e.Ts = parsed
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate entries: %w", err)
	}
	return out, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
