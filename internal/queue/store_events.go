package queue

import (
	"context"
	"fmt"
	"time"

	"conveyor/internal/job"
)

// Event is one recorded state change. Events are append-only and never
// mutated; Seq is a database-assigned monotonic sequence clients use as a
// resume cursor.
type Event struct {
	Seq      int64     `json:"seq"`
	JobID    string    `json:"job_id"`
	OldState job.State `json:"old_state"`
	NewState job.State `json:"new_state"`
	Message  string    `json:"message,omitempty"`
	At       time.Time `json:"at"`
}

// EventsSince returns up to limit events with sequence numbers greater than
// after, oldest first.
func (s *Store) EventsSince(ctx context.Context, after int64, limit int) ([]Event, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, job_id, old_state, new_state, message, created_at
         FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event              Event
			oldState, newState string
			createdAt          string
		)
		if err := rows.Scan(&event.Seq, &event.JobID, &oldState, &newState, &event.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.OldState = job.State(oldState)
		event.NewState = job.State(newState)
		if event.At, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// LastEventSeq returns the highest assigned event sequence number, or zero
// when no events exist.
func (s *Store) LastEventSeq(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return seq, nil
}

// JobEvents returns every event recorded for one job, oldest first.
func (s *Store) JobEvents(ctx context.Context, jobID string) ([]Event, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, job_id, old_state, new_state, message, created_at
         FROM events WHERE job_id = ? ORDER BY seq ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("job events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event              Event
			oldState, newState string
			createdAt          string
		)
		if err := rows.Scan(&event.Seq, &event.JobID, &oldState, &newState, &event.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.OldState = job.State(oldState)
		event.NewState = job.State(newState)
		if event.At, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
