package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const chunkColumns = `id, chunk_id, document_id, chunk_type, section_heading, char_start, char_end,
	page_start, page_end, token_count, overlap_tokens, chunk_handle, chunk_text, ai_confidence, reasoning, created_at`

func (s *Store) CreateChunk(c Chunk) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ChunkID, c.DocumentID, c.ChunkType, c.SectionHeading, c.CharStart, c.CharEnd,
		c.PageStart, c.PageEnd, c.TokenCount, c.OverlapTokens, c.ChunkHandle, c.ChunkText,
		c.AIConfidence, c.Reasoning, formatTime(c.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("chunk %s: %w", c.ID, ErrDuplicate)
	}
	return err
}

func (s *Store) GetChunk(id string) (Chunk, error) {
	c, err := scanChunk(s.db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Chunk{}, ErrNotFound
	}
	return c, err
}

// GetChunksByDocument returns the document's chunks in document order.
func (s *Store) GetChunksByDocument(documentID string) ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY char_start ASC, chunk_id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChunksByDocument removes every chunk of the document and returns how
// many were deleted. Deleting from a document with no chunks is not an error.
func (s *Store) DeleteChunksByDocument(documentID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetChunkCount(documentID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&n)
	return n, err
}

func scanChunk(r scanner) (Chunk, error) {
	var c Chunk
	var createdAt string
	if err := r.Scan(&c.ID, &c.ChunkID, &c.DocumentID, &c.ChunkType, &c.SectionHeading, &c.CharStart, &c.CharEnd,
		&c.PageStart, &c.PageEnd, &c.TokenCount, &c.OverlapTokens, &c.ChunkHandle, &c.ChunkText,
		&c.AIConfidence, &c.Reasoning, &createdAt); err != nil {
		return Chunk{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Chunk{}, err
	}
	return c, nil
}
