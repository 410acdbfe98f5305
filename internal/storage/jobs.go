package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const jobColumns = `id, document_id, user_id, status, current_step, progress_percentage,
	total_chunks_extracted, error_message, created_at, started_at, completed_at`

func (s *Store) CreateJob(j ExtractionJob) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO extraction_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.DocumentID, j.UserID, j.Status, j.CurrentStep, j.ProgressPercentage,
		j.TotalChunksExtracted, j.ErrorMessage, formatTime(j.CreatedAt),
		formatTimePtr(j.StartedAt), formatTimePtr(j.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("extraction job %s: %w", j.ID, ErrDuplicate)
	}
	return err
}

// UpdateJob applies the non-nil fields of u to the job.
func (s *Store) UpdateJob(id string, u JobUpdate) error {
	var set updateSet
	if u.Status != nil {
		set.add("status", *u.Status)
	}
	if u.CurrentStep != nil {
		set.add("current_step", *u.CurrentStep)
	}
	if u.ProgressPercentage != nil {
		set.add("progress_percentage", *u.ProgressPercentage)
	}
	if u.TotalChunksExtracted != nil {
		set.add("total_chunks_extracted", *u.TotalChunksExtracted)
	}
	if u.ErrorMessage != nil {
		set.add("error_message", *u.ErrorMessage)
	}
	if u.StartedAt != nil {
		set.add("started_at", formatTime(*u.StartedAt))
	}
	if u.CompletedAt != nil {
		set.add("completed_at", formatTime(*u.CompletedAt))
	}
	if set.empty() {
		return nil
	}
	res, err := s.db.Exec(`UPDATE extraction_jobs SET `+set.clause()+` WHERE id = ?`, append(set.args, id)...)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func (s *Store) GetJob(id string) (ExtractionJob, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM extraction_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ExtractionJob{}, ErrNotFound
	}
	return j, err
}

// GetLatestJob returns the most recently created extraction job of a document.
func (s *Store) GetLatestJob(documentID string) (ExtractionJob, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM extraction_jobs
		WHERE document_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return ExtractionJob{}, ErrNotFound
	}
	return j, err
}

func scanJob(r scanner) (ExtractionJob, error) {
	var j ExtractionJob
	var createdAt string
	var startedAt, completedAt sql.NullString
	if err := r.Scan(&j.ID, &j.DocumentID, &j.UserID, &j.Status, &j.CurrentStep, &j.ProgressPercentage,
		&j.TotalChunksExtracted, &j.ErrorMessage, &createdAt, &startedAt, &completedAt); err != nil {
		return ExtractionJob{}, err
	}
	var err error
	if j.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return ExtractionJob{}, err
	}
	if j.StartedAt, err = parseTimePtr("started_at", startedAt); err != nil {
		return ExtractionJob{}, err
	}
	if j.CompletedAt, err = parseTimePtr("completed_at", completedAt); err != nil {
		return ExtractionJob{}, err
	}
	return j, nil
}
