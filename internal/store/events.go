// Package store holds the two persistence layers: the JSONL corpus written
// by the ingest pipeline and the SQLite event store backing the API.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS classification_events (
	id                   TEXT PRIMARY KEY,
	cleaned_tweet        TEXT NOT NULL,
	is_real_disaster     INTEGER NOT NULL,
	disaster_probability REAL NOT NULL,
	evaluated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_evaluated_at ON classification_events (evaluated_at);
`

// storedTimeLayout is fixed-width so lexicographic ordering of the stored
// text matches time ordering. RFC3339Nano would drop trailing zeros.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Query limits for ranged event reads.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 10000
)

// EventStore persists classification events in SQLite.
type EventStore struct {
	db *sqlx.DB
}

// OpenEventStore opens (creating if needed) the event database at path and
// ensures the schema exists. The special path ":memory:" opens a private
// in-memory database.
func OpenEventStore(path string) (*EventStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create event db directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure event schema: %w", err)
	}
	return &EventStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable, for readiness checks.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// eventRow is the database shape of a classification event. Timestamps are
// stored as RFC 3339 text so lexicographic ordering matches time ordering.
type eventRow struct {
	ID                  string  `db:"id"`
	CleanedTweet        string  `db:"cleaned_tweet"`
	IsRealDisaster      bool    `db:"is_real_disaster"`
	DisasterProbability float64 `db:"disaster_probability"`
	EvaluatedAt         string  `db:"evaluated_at"`
}

// Insert records one classification event.
func (s *EventStore) Insert(ctx context.Context, ev domain.ClassificationEvent) error {
	row := eventRow{
		ID:                  ev.ID,
		CleanedTweet:        ev.CleanedTweet,
		IsRealDisaster:      ev.IsRealDisaster,
		DisasterProbability: ev.DisasterProbability,
		EvaluatedAt:         ev.EvaluatedAt.UTC().Format(storedTimeLayout),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO classification_events
			(id, cleaned_tweet, is_real_disaster, disaster_probability, evaluated_at)
		VALUES
			(:id, :cleaned_tweet, :is_real_disaster, :disaster_probability, :evaluated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert classification event: %w", err)
	}
	return nil
}

// Between returns events with start <= evaluated_at <= end, newest first.
// The limit is clamped to [1, MaxEventLimit]; zero or negative means
// DefaultEventLimit.
func (s *EventStore) Between(ctx context.Context, start, end time.Time, limit int) ([]domain.ClassificationEvent, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, cleaned_tweet, is_real_disaster, disaster_probability, evaluated_at
		FROM classification_events
		WHERE evaluated_at >= ? AND evaluated_at <= ?
		ORDER BY evaluated_at DESC
		LIMIT ?`,
		start.UTC().Format(storedTimeLayout), end.UTC().Format(storedTimeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("query classification events: %w", err)
	}

	events := make([]domain.ClassificationEvent, 0, len(rows))
	for _, row := range rows {
		evaluatedAt, err := time.Parse(time.RFC3339Nano, row.EvaluatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse stored evaluated_at %q: %w", row.EvaluatedAt, err)
		}
		events = append(events, domain.ClassificationEvent{
			ID:                  row.ID,
			CleanedTweet:        row.CleanedTweet,
			IsRealDisaster:      row.IsRealDisaster,
			DisasterProbability: row.DisasterProbability,
			EvaluatedAt:         evaluatedAt,
		})
	}
	return events, nil
}
