// Package journal is a non-authoritative, append-only SQLite record of each
// ticket-processing pass, for --watch mode operational visibility. It is
// explicitly NOT the state of record: the ticket's comment stream and status
// remain authoritative (§1 Non-goals: "no persistent state store"). This is
// a diagnostics side-table only, modeled on the teacher's pkg/persistence
// singleton-database pattern.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"useruploadagent/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ticket_key  TEXT NOT NULL,
	status      TEXT NOT NULL,
	next_state  TEXT NOT NULL,
	message     TEXT NOT NULL,
	failures    INTEGER NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_ticket_key ON runs(ticket_key);
`

// Journal is the process-wide append-only run log.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open connects to (and creates, if absent) the SQLite file at path,
// initializing the schema. Mirrors the teacher's persistence.Initialize
// connection string (WAL mode, busy timeout) since this, too, is a
// single-writer process.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: initialize schema: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Journal{db: db}, nil
}

// Close releases the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one ticket-processing outcome to the journal.
func (j *Journal) Record(ctx context.Context, result model.ProcessingResult, recordedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (ticket_key, status, next_state, message, failures, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		result.TicketKey, string(result.Status), string(result.NextState), result.Message, len(result.Failures), recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: record run: %w", err)
	}
	return nil
}

// Entry is one recorded run, for inspection/debugging tooling.
type Entry struct {
	TicketKey  string
	Status     string
	NextState  string
	Message    string
	Failures   int
	RecordedAt string
}

// RecentForTicket returns the most recent journal entries for one ticket,
// newest first, up to limit rows.
func (j *Journal) RecentForTicket(ctx context.Context, ticketKey string, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT ticket_key, status, next_state, message, failures, recorded_at FROM runs WHERE ticket_key = ? ORDER BY id DESC LIMIT ?`,
		ticketKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TicketKey, &e.Status, &e.NextState, &e.Message, &e.Failures, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
