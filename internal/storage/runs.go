package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = `run_id, document_id, user_id, run_name, ai_model, status, total_chunks,
	total_dimensions, total_cost_usd, total_duration_ms, error_message, started_at, completed_at`

func (s *Store) CreateRun(r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO chunk_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.DocumentID, r.UserID, r.RunName, r.Model, r.Status, r.TotalChunks,
		r.TotalDimensions, r.TotalCostUSD, r.TotalDurationMS, r.ErrorMessage,
		formatTime(r.StartedAt), formatTimePtr(r.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", r.RunID, ErrDuplicate)
	}
	return err
}

// UpdateRun applies the non-nil fields of u to the run.
func (s *Store) UpdateRun(runID string, u RunUpdate) error {
	var set updateSet
	if u.Status != nil {
		set.add("status", *u.Status)
	}
	if u.TotalChunks != nil {
		set.add("total_chunks", *u.TotalChunks)
	}
	if u.TotalDimensions != nil {
		set.add("total_dimensions", *u.TotalDimensions)
	}
	if u.TotalCostUSD != nil {
		set.add("total_cost_usd", *u.TotalCostUSD)
	}
	if u.TotalDurationMS != nil {
		set.add("total_duration_ms", *u.TotalDurationMS)
	}
	if u.ErrorMessage != nil {
		set.add("error_message", *u.ErrorMessage)
	}
	if u.CompletedAt != nil {
		set.add("completed_at", formatTime(*u.CompletedAt))
	}
	if set.empty() {
		return nil
	}
	res, err := s.db.Exec(`UPDATE chunk_runs SET `+set.clause()+` WHERE run_id = ?`, append(set.args, runID)...)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func (s *Store) GetRun(runID string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM chunk_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// GetRunsByDocument returns every run of the document, newest first.
func (s *Store) GetRunsByDocument(documentID string) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM chunk_runs
		WHERE document_id = ? ORDER BY started_at DESC, rowid DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRunsForChunk returns the runs of the chunk's document, newest first,
// flagging those that produced a dimension record for the chunk.
func (s *Store) GetRunsForChunk(chunkRef string) ([]ChunkRun, error) {
	c, err := s.GetChunk(chunkRef)
	if err != nil {
		return nil, err
	}
	runs, err := s.GetRunsByDocument(c.DocumentID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT run_id FROM chunk_dimensions WHERE chunk_ref = ?`, chunkRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	has := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		has[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ChunkRun, len(runs))
	for i, r := range runs {
		out[i] = ChunkRun{Run: r, HasData: has[r.RunID]}
	}
	return out, nil
}

func scanRun(r scanner) (Run, error) {
	var run Run
	var startedAt string
	var completedAt sql.NullString
	if err := r.Scan(&run.RunID, &run.DocumentID, &run.UserID, &run.RunName, &run.Model, &run.Status, &run.TotalChunks,
		&run.TotalDimensions, &run.TotalCostUSD, &run.TotalDurationMS, &run.ErrorMessage, &startedAt, &completedAt); err != nil {
		return Run{}, err
	}
	var err error
	if run.StartedAt, err = parseTime("started_at", startedAt); err != nil {
		return Run{}, err
	}
	if run.CompletedAt, err = parseTimePtr("completed_at", completedAt); err != nil {
		return Run{}, err
	}
	return run, nil
}
