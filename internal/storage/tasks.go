package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

func (s *Store) EnqueueTask(t Task) error {
	now := formatTime(s.now())
	runAfter := now
	if !t.RunAfter.IsZero() {
		runAfter = formatTime(t.RunAfter)
	}
	maxAttempts := t.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		t.ID, t.Type, t.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("task %s: %w", t.ID, ErrDuplicate)
	}
	return err
}

// ClaimNextTask moves the oldest runnable pending task of one of the given
// types to running and returns it. It returns nil when nothing is runnable.
func (s *Store) ClaimNextTask(types []string) (*Task, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := formatTime(s.now())
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM tasks
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var t Task
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&t.ID, &t.Type, &t.PayloadJSON, &t.Status, &t.Attempts, &t.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next task: %w", err)
	}

	res, err := tx.Exec(`UPDATE tasks SET status = 'running', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending'`, now, t.ID)
	if err != nil {
		return nil, fmt.Errorf("updating task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated task rows: %w", err)
	}
	if n != 1 {
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	t.Status = TaskRunning
	t.Attempts++
	t.LastError = lastError.String
	if t.RunAfter, err = parseTime("run_after", runAfter); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", now); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CompleteTask(id string) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = 'completed', updated_at = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// FailTask marks the task failed. Tasks are not retried.
func (s *Store) FailTask(id string, errMsg string) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = 'failed', last_error = ?, updated_at = ? WHERE id = ?`,
		errMsg, formatTime(s.now()), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// GetTask returns a task by id.
func (s *Store) GetTask(id string) (Task, error) {
	var t Task
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := s.db.QueryRow(`SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM tasks WHERE id = ?`, id).Scan(
		&t.ID, &t.Type, &t.PayloadJSON, &t.Status, &t.Attempts, &t.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.LastError = lastError.String
	if t.RunAfter, err = parseTime("run_after", runAfter); err != nil {
		return Task{}, err
	}
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Task{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Task{}, err
	}
	return t, nil
}
