package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const documentColumns = `id, title, content, primary_category, author, source_type, source_url,
	doc_date, doc_version, extraction_status, created_at, updated_at`

func (s *Store) CreateDocument(d Document) error {
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.ExtractionStatus == "" {
		d.ExtractionStatus = ExtractionPending
	}
	_, err := s.db.Exec(`INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, d.PrimaryCategory, d.Author, d.SourceType, d.SourceURL,
		d.DocDate, d.DocVersion, d.ExtractionStatus, formatTime(d.CreatedAt), formatTime(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("document %s: %w", d.ID, ErrDuplicate)
	}
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// GetPrimaryCategory returns the category the document was filed under.
func (s *Store) GetPrimaryCategory(id string) (string, error) {
	var c string
	err := s.db.QueryRow(`SELECT primary_category FROM documents WHERE id = ?`, id).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return c, err
}

// SetExtractionStatus updates the document-level extraction flag.
func (s *Store) SetExtractionStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE documents SET extraction_status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(s.now()), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(r scanner) (Document, error) {
	var d Document
	var createdAt, updatedAt string
	if err := r.Scan(&d.ID, &d.Title, &d.Content, &d.PrimaryCategory, &d.Author, &d.SourceType, &d.SourceURL,
		&d.DocDate, &d.DocVersion, &d.ExtractionStatus, &createdAt, &updatedAt); err != nil {
		return Document{}, err
	}
	var err error
	if d.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Document{}, err
	}
	if d.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return Document{}, err
	}
	return d, nil
}
