package api

import (
	"time"
	"unicode/utf8"

	"github.com/kalambet/chunkdim/internal/storage"
)

type documentView struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	PrimaryCategory  string    `json:"primary_category,omitempty"`
	Author           string    `json:"author,omitempty"`
	SourceType       string    `json:"source_type,omitempty"`
	SourceURL        string    `json:"source_url,omitempty"`
	DocDate          string    `json:"doc_date,omitempty"`
	DocVersion       string    `json:"doc_version,omitempty"`
	ExtractionStatus string    `json:"extraction_status"`
	ContentLength    int       `json:"content_length"`
	Content          string    `json:"content,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newDocumentView(d storage.Document, withContent bool) documentView {
	v := documentView{
		ID:               d.ID,
		Title:            d.Title,
		PrimaryCategory:  d.PrimaryCategory,
		Author:           d.Author,
		SourceType:       d.SourceType,
		SourceURL:        d.SourceURL,
		DocDate:          d.DocDate,
		DocVersion:       d.DocVersion,
		ExtractionStatus: d.ExtractionStatus,
		ContentLength:    utf8.RuneCountInString(d.Content),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if withContent {
		v.Content = d.Content
	}
	return v
}

type chunkView struct {
	ID             string    `json:"id"`
	ChunkID        string    `json:"chunk_id"`
	DocumentID     string    `json:"document_id"`
	ChunkType      string    `json:"chunk_type"`
	SectionHeading string    `json:"section_heading,omitempty"`
	CharStart      int       `json:"char_start"`
	CharEnd        int       `json:"char_end"`
	PageStart      int       `json:"page_start"`
	PageEnd        int       `json:"page_end"`
	TokenCount     int       `json:"token_count"`
	OverlapTokens  int       `json:"overlap_tokens"`
	ChunkHandle    string    `json:"chunk_handle"`
	ChunkText      string    `json:"chunk_text"`
	AIConfidence   float64   `json:"ai_confidence"`
	Reasoning      string    `json:"reasoning,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func newChunkView(c storage.Chunk) chunkView {
	return chunkView{
		ID:             c.ID,
		ChunkID:        c.ChunkID,
		DocumentID:     c.DocumentID,
		ChunkType:      c.ChunkType,
		SectionHeading: c.SectionHeading,
		CharStart:      c.CharStart,
		CharEnd:        c.CharEnd,
		PageStart:      c.PageStart,
		PageEnd:        c.PageEnd,
		TokenCount:     c.TokenCount,
		OverlapTokens:  c.OverlapTokens,
		ChunkHandle:    c.ChunkHandle,
		ChunkText:      c.ChunkText,
		AIConfidence:   c.AIConfidence,
		Reasoning:      c.Reasoning,
		CreatedAt:      c.CreatedAt,
	}
}

type jobView struct {
	ID                   string     `json:"id"`
	DocumentID           string     `json:"document_id"`
	UserID               string     `json:"user_id,omitempty"`
	Status               string     `json:"status"`
	CurrentStep          string     `json:"current_step,omitempty"`
	ProgressPercentage   int        `json:"progress_percentage"`
	TotalChunksExtracted int        `json:"total_chunks_extracted"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func newJobView(j storage.ExtractionJob) jobView {
	return jobView{
		ID:                   j.ID,
		DocumentID:           j.DocumentID,
		UserID:               j.UserID,
		Status:               j.Status,
		CurrentStep:          j.CurrentStep,
		ProgressPercentage:   j.ProgressPercentage,
		TotalChunksExtracted: j.TotalChunksExtracted,
		ErrorMessage:         j.ErrorMessage,
		CreatedAt:            j.CreatedAt,
		StartedAt:            j.StartedAt,
		CompletedAt:          j.CompletedAt,
	}
}

type runView struct {
	RunID           string     `json:"run_id"`
	DocumentID      string     `json:"document_id"`
	UserID          string     `json:"user_id,omitempty"`
	RunName         string     `json:"run_name"`
	Model           string     `json:"model"`
	Status          string     `json:"status"`
	TotalChunks     int        `json:"total_chunks"`
	TotalDimensions int        `json:"total_dimensions"`
	TotalCostUSD    float64    `json:"total_cost_usd"`
	TotalDurationMS int64      `json:"total_duration_ms"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	HasData         *bool      `json:"has_data,omitempty"`
}

func newRunView(r storage.Run) runView {
	return runView{
		RunID:           r.RunID,
		DocumentID:      r.DocumentID,
		UserID:          r.UserID,
		RunName:         r.RunName,
		Model:           r.Model,
		Status:          r.Status,
		TotalChunks:     r.TotalChunks,
		TotalDimensions: r.TotalDimensions,
		TotalCostUSD:    r.TotalCostUSD,
		TotalDurationMS: r.TotalDurationMS,
		ErrorMessage:    r.ErrorMessage,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func newChunkRunView(r storage.ChunkRun) runView {
	v := newRunView(r.Run)
	v.HasData = &r.HasData
	return v
}

type templateView struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"template_name"`
	TemplateType         string    `json:"template_type"`
	PromptText           string    `json:"prompt_text"`
	ApplicableChunkTypes []string  `json:"applicable_chunk_types"`
	Version              int       `json:"version"`
	IsActive             bool      `json:"is_active"`
	Notes                string    `json:"notes,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func newTemplateView(t storage.PromptTemplate) templateView {
	return templateView{
		ID:                   t.ID,
		Name:                 t.Name,
		TemplateType:         t.TemplateType,
		PromptText:           t.PromptText,
		ApplicableChunkTypes: t.ApplicableChunkTypes,
		Version:              t.Version,
		IsActive:             t.IsActive,
		Notes:                t.Notes,
		CreatedAt:            t.CreatedAt,
	}
}

type logView struct {
	ID           string    `json:"id"`
	ChunkRef     string    `json:"chunk_ref"`
	TemplateType string    `json:"template_type"`
	TemplateName string    `json:"template_name"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	ParsedJSON   string    `json:"parsed_json,omitempty"`
	ParseError   string    `json:"parse_error,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

func newLogView(l storage.APIResponseLog) logView {
	return logView{
		ID:           l.ID,
		ChunkRef:     l.ChunkRef,
		TemplateType: l.TemplateType,
		TemplateName: l.TemplateName,
		Model:        l.Model,
		Temperature:  l.Temperature,
		Prompt:       l.Prompt,
		Response:     l.Response,
		ParsedJSON:   l.ParsedJSON,
		ParseError:   l.ParseError,
		InputTokens:  l.InputTokens,
		OutputTokens: l.OutputTokens,
		CostUSD:      l.CostUSD,
		CreatedAt:    l.CreatedAt,
	}
}

func mapViews[T, V any](items []T, f func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, it := range items {
		out = append(out, f(it))
	}
	return out
}
