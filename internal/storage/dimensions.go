package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/chunkdim/internal/dimension"
)

// CreateDimensions inserts a dimension record. A second record for the same
// (chunk, run) pair is rejected with ErrDuplicate; records are never updated.
func (s *Store) CreateDimensions(rec dimension.Record) error {
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = s.now()
	}
	rec.GeneratedAt = rec.GeneratedAt.UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling dimensions: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO chunk_dimensions (id, chunk_ref, run_id, data, generated_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ChunkRef, rec.RunID, string(data), formatTime(rec.GeneratedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("dimensions for chunk %s in run %s: %w", rec.ChunkRef, rec.RunID, ErrDuplicate)
	}
	return err
}

func (s *Store) GetDimensionsByChunkAndRun(chunkRef, runID string) (dimension.Record, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM chunk_dimensions WHERE chunk_ref = ? AND run_id = ?`, chunkRef, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return dimension.Record{}, ErrNotFound
	}
	if err != nil {
		return dimension.Record{}, err
	}
	return decodeRecord(data)
}

// GetDimensionsByRun returns the run's records in creation order.
func (s *Store) GetDimensionsByRun(runID string) ([]dimension.Record, error) {
	return s.queryRecords(`SELECT data FROM chunk_dimensions WHERE run_id = ? ORDER BY generated_at ASC, rowid ASC`, runID)
}

// GetDimensionsByChunk returns every record of the chunk, oldest run first.
func (s *Store) GetDimensionsByChunk(chunkRef string) ([]dimension.Record, error) {
	return s.queryRecords(`SELECT d.data FROM chunk_dimensions d
		LEFT JOIN chunk_runs r ON r.run_id = d.run_id
		WHERE d.chunk_ref = ?
		ORDER BY COALESCE(r.started_at, d.generated_at) ASC, d.rowid ASC`, chunkRef)
}

func (s *Store) queryRecords(query string, args ...any) ([]dimension.Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dimension.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decodeRecord(data string) (dimension.Record, error) {
	var rec dimension.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return dimension.Record{}, fmt.Errorf("decoding dimensions: %w", err)
	}
	return rec, nil
}
