// Package history journals completed insight polls in SQLite.
//
// Only the outcome of each fetch is kept (status, error class, match score).
// Projections and plot points are never written.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Event is one completed fetch.
type Event struct {
	ID         int64
	SessionID  uuid.UUID
	ContestID  int64
	PhotoID    int64
	Attempt    int
	Status     string
	ErrorKind  string
	Message    string
	MatchScore *int
	ObservedAt time.Time
}

// Store is the poll journal.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the journal at path and brings its schema
// up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Record appends ev. ObservedAt defaults to now.
func (s *Store) Record(ctx context.Context, ev Event) error {
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now()
	}
	var score sql.NullInt64
	if ev.MatchScore != nil {
		score = sql.NullInt64{Int64: int64(*ev.MatchScore), Valid: true}
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO poll_events (session_id, contest_id, photo_id, attempt, status, error_kind, message, match_score, observed_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.SessionID.String(), ev.ContestID, ev.PhotoID, ev.Attempt, ev.Status, ev.ErrorKind, ev.Message, score, ev.ObservedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert poll event: %w", err)
	}
	return nil
}

// SessionEvents returns the events of one viewer session in attempt order.
func (s *Store) SessionEvents(ctx context.Context, sessionID uuid.UUID) ([]Event, error) {
	return s.query(ctx, `
		SELECT id, session_id, contest_id, photo_id, attempt, status, error_kind, message, match_score, observed_unix_ms
		FROM poll_events
		WHERE session_id = ?
		ORDER BY attempt, id
	`, sessionID.String())
}

// RecentEvents returns up to limit events for a (contest, photo) pair,
// newest first.
func (s *Store) RecentEvents(ctx context.Context, contestID, photoID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
		SELECT id, session_id, contest_id, photo_id, attempt, status, error_kind, message, match_score, observed_unix_ms
		FROM poll_events
		WHERE contest_id = ? AND photo_id = ?
		ORDER BY observed_unix_ms DESC, id DESC
		LIMIT ?
	`, contestID, photoID, limit)
}

// StatusCounts returns how often each status was observed for a pair.
// Failed fetches are counted under their error kind prefixed with "error:".
func (s *Store) StatusCounts(ctx context.Context, contestID, photoID int64) (map[string]int, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT CASE WHEN error_kind != '' THEN 'error:' || error_kind ELSE status END AS outcome, COUNT(*)
		FROM poll_events
		WHERE contest_id = ? AND photo_id = ?
		GROUP BY outcome
	`, contestID, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to count poll events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan poll event count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Event, error) {
	rows, err := s.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			sessionID string
			score     sql.NullInt64
			observed  int64
		)
		if err := rows.Scan(&ev.ID, &sessionID, &ev.ContestID, &ev.PhotoID, &ev.Attempt, &ev.Status, &ev.ErrorKind, &ev.Message, &score, &observed); err != nil {
			return nil, fmt.Errorf("failed to scan poll event: %w", err)
		}
		if ev.SessionID, err = uuid.Parse(sessionID); err != nil {
			return nil, fmt.Errorf("poll event %d has bad session id %q: %w", ev.ID, sessionID, err)
		}
		if score.Valid {
			v := int(score.Int64)
			ev.MatchScore = &v
		}
		ev.ObservedAt = time.UnixMilli(observed)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate poll events: %w", err)
	}
	return events, nil
}
