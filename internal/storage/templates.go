package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const templateColumns = `id, template_name, template_type, prompt_text, applicable_chunk_types,
	version, is_active, notes, created_at, updated_at`

func (s *Store) CreateTemplate(t PromptTemplate) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.Version == 0 {
		t.Version = 1
	}
	var applicable any
	if t.ApplicableChunkTypes != nil {
		b, err := json.Marshal(t.ApplicableChunkTypes)
		if err != nil {
			return fmt.Errorf("marshaling applicable chunk types: %w", err)
		}
		applicable = string(b)
	}
	_, err := s.db.Exec(`INSERT INTO prompt_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.TemplateType, t.PromptText, applicable,
		t.Version, t.IsActive, t.Notes, formatTime(t.CreatedAt), formatTime(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("template %s v%d: %w", t.Name, t.Version, ErrDuplicate)
	}
	return err
}

func (s *Store) GetTemplate(id string) (PromptTemplate, error) {
	t, err := scanTemplate(s.db.QueryRow(`SELECT `+templateColumns+` FROM prompt_templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PromptTemplate{}, ErrNotFound
	}
	return t, err
}

// ListTemplates returns every template, newest version first within a name.
func (s *Store) ListTemplates() ([]PromptTemplate, error) {
	return s.queryTemplates(`SELECT ` + templateColumns + ` FROM prompt_templates ORDER BY template_type, template_name, version DESC`)
}

// GetActiveTemplates returns the active templates that apply to chunkType.
// An empty chunkType returns every active template.
func (s *Store) GetActiveTemplates(chunkType string) ([]PromptTemplate, error) {
	all, err := s.queryTemplates(`SELECT ` + templateColumns + ` FROM prompt_templates WHERE is_active = 1 ORDER BY created_at ASC, template_name ASC`)
	if err != nil {
		return nil, err
	}
	if chunkType == "" {
		return all, nil
	}
	var out []PromptTemplate
	for _, t := range all {
		if t.AppliesTo(chunkType) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) SetTemplateActive(id string, active bool) error {
	res, err := s.db.Exec(`UPDATE prompt_templates SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, formatTime(s.now()), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func (s *Store) queryTemplates(query string, args ...any) ([]PromptTemplate, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PromptTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(r scanner) (PromptTemplate, error) {
	var t PromptTemplate
	var applicable sql.NullString
	var createdAt, updatedAt string
	if err := r.Scan(&t.ID, &t.Name, &t.TemplateType, &t.PromptText, &applicable,
		&t.Version, &t.IsActive, &t.Notes, &createdAt, &updatedAt); err != nil {
		return PromptTemplate{}, err
	}
	if applicable.Valid {
		if err := json.Unmarshal([]byte(applicable.String), &t.ApplicableChunkTypes); err != nil {
			return PromptTemplate{}, fmt.Errorf("parsing applicable_chunk_types for %s: %w", t.ID, err)
		}
	}
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return PromptTemplate{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return PromptTemplate{}, err
	}
	return t, nil
}
