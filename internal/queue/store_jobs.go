package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"conveyor/internal/job"
	"conveyor/internal/services"
)

const timeFormat = time.RFC3339Nano

const jobColumns = `id, model_path, toolpath_path, slicer_profile, driver_profile,
    device_id, state, current_line, total_lines, error_detail, history,
    created_at, updated_at`

// Insert persists a freshly created job.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	history, err := json.Marshal(j.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ModelPath, j.ToolpathPath, j.SlicerProfile, j.DriverProfile,
		j.DeviceID, string(j.State), j.Progress.CurrentLine, j.Progress.TotalLines,
		j.ErrorDetail, string(history),
		j.CreatedAt.UTC().Format(timeFormat), j.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	return nil
}

func scanJob(scanner interface{ Scan(...any) error }) (*job.Job, error) {
	var (
		j                    job.Job
		state                string
		history              string
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&j.ID, &j.ModelPath, &j.ToolpathPath, &j.SlicerProfile, &j.DriverProfile,
		&j.DeviceID, &state, &j.Progress.CurrentLine, &j.Progress.TotalLines,
		&j.ErrorDetail, &history, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)
	if err := json.Unmarshal([]byte(history), &j.History); err != nil {
		return nil, fmt.Errorf("unmarshal history for %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", j.ID, err)
	}
	return &j, nil
}

// Get returns one job by ID.
func (s *Store) Get(ctx context.Context, id string) (*job.Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get job", id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// List returns all jobs ordered by creation time, oldest first.
func (s *Store) List(ctx context.Context) ([]*job.Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Transition moves a job to a new state, appends the transition to its
// history, and records the event, all in one transaction. Legality is
// enforced here: illegal transitions are rejected with ErrIllegalTransition
// and leave the job untouched.
func (s *Store) Transition(ctx context.Context, id string, to job.State, message string) (*job.Job, Event, error) {
	ctx = ensureContext(ctx)

	var (
		updated *job.Job
		event   Event
	)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
		current, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return services.Wrap(services.ErrNotFound, "queue", "transition", id, nil)
		}
		if err != nil {
			return fmt.Errorf("load job %s: %w", id, err)
		}

		if !job.CanTransition(current.State, to) {
			return services.Wrap(services.ErrIllegalTransition, "queue", "transition",
				fmt.Sprintf("%s: %s -> %s", id, current.State, to), nil)
		}

		now := time.Now().UTC()
		from := current.State
		current.Apply(to, message, now)
		if to.Terminal() && to != job.StateCompleted {
			current.ErrorDetail = message
		}

		history, err := json.Marshal(current.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET state = ?, error_detail = ?, history = ?, updated_at = ? WHERE id = ?`,
			string(to), current.ErrorDetail, string(history), now.Format(timeFormat), id,
		); err != nil {
			return fmt.Errorf("update job %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (job_id, old_state, new_state, message, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			id, string(from), string(to), message, now.Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("record event for %s: %w", id, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("event sequence for %s: %w", id, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transition for %s: %w", id, err)
		}

		updated = current
		event = Event{
			Seq:      seq,
			JobID:    id,
			OldState: from,
			NewState: to,
			Message:  message,
			At:       now,
		}
		return nil
	})
	if err != nil {
		return nil, Event{}, err
	}
	return updated, event, nil
}

// SetToolpath records the sliced toolpath output location for a job.
func (s *Store) SetToolpath(ctx context.Context, id, toolpathPath string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET toolpath_path = ?, updated_at = ? WHERE id = ?`,
		toolpathPath, time.Now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("set toolpath for %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return services.Wrap(services.ErrNotFound, "queue", "set toolpath", id, nil)
	}
	return nil
}

// UpdateProgress records print progress line counters for a job.
func (s *Store) UpdateProgress(ctx context.Context, id string, currentLine, totalLines int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET current_line = ?, total_lines = ?, updated_at = ? WHERE id = ?`,
		currentLine, totalLines, time.Now().UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("update progress for %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return services.Wrap(services.ErrNotFound, "queue", "update progress", id, nil)
	}
	return nil
}

// NonTerminal returns every job that has not reached a terminal state.
func (s *Store) NonTerminal(ctx context.Context) ([]*job.Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state NOT IN (?, ?, ?)
         ORDER BY created_at ASC, id ASC`,
		string(job.StateCompleted), string(job.StateFailed), string(job.StateCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("list non-terminal jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailNonTerminal marks every non-terminal job as failed with the given
// reason. Called once at daemon startup: the queue does not resume
// interrupted work across restarts, because resuming a partially-printed
// job is unsafe without operator confirmation.
func (s *Store) FailNonTerminal(ctx context.Context, reason string) (int, error) {
	jobs, err := s.NonTerminal(ctx)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		if _, _, err := s.Transition(ctx, j.ID, job.StateFailed, reason); err != nil {
			return 0, fmt.Errorf("fail job %s: %w", j.ID, err)
		}
	}
	return len(jobs), nil
}

// Stats summarizes job counts by state.
type Stats struct {
	Total   int               `json:"total"`
	ByState map[job.State]int `json:"by_state"`
}

// Stats returns job counts grouped by state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByState: make(map[job.State]int)}
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByState[job.State(state)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}
