package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("already exists")

// Document extraction statuses.
const (
	ExtractionPending    = "pending"
	ExtractionExtracting = "extracting"
	ExtractionCompleted  = "completed"
	ExtractionFailed     = "failed"
)

type Document struct {
	ID               string
	Title            string
	Content          string
	PrimaryCategory  string
	Author           string
	SourceType       string
	SourceURL        string
	DocDate          string
	DocVersion       string
	ExtractionStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Chunk struct {
	ID             string // row id, a UUID
	ChunkID        string // <documentID>#C<seq>
	DocumentID     string
	ChunkType      string
	SectionHeading string
	CharStart      int
	CharEnd        int
	PageStart      int
	PageEnd        int
	TokenCount     int
	OverlapTokens  int
	ChunkHandle    string
	ChunkText      string
	AIConfidence   float64
	Reasoning      string
	CreatedAt      time.Time
}

type PromptTemplate struct {
	ID           string
	Name         string
	TemplateType string
	PromptText   string
	// ApplicableChunkTypes is nil when the template applies to every type.
	ApplicableChunkTypes []string
	Version              int
	IsActive             bool
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AppliesTo reports whether the template serves chunkType.
func (t PromptTemplate) AppliesTo(chunkType string) bool {
	if t.ApplicableChunkTypes == nil {
		return true
	}
	for _, ct := range t.ApplicableChunkTypes {
		if ct == chunkType {
			return true
		}
	}
	return false
}

type ExtractionJob struct {
	ID                   string
	DocumentID           string
	UserID               string
	Status               string
	CurrentStep          string
	ProgressPercentage   int
	TotalChunksExtracted int
	ErrorMessage         string
	CreatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
}

// JobUpdate carries the fields of an ExtractionJob to change. Nil fields are
// left untouched.
type JobUpdate struct {
	Status               *string
	CurrentStep          *string
	ProgressPercentage   *int
	TotalChunksExtracted *int
	ErrorMessage         *string
	StartedAt            *time.Time
	CompletedAt          *time.Time
}

type Run struct {
	RunID           string
	DocumentID      string
	UserID          string
	RunName         string
	Model           string
	Status          string
	TotalChunks     int
	TotalDimensions int
	TotalCostUSD    float64
	TotalDurationMS int64
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// RunUpdate carries the fields of a Run to change. Nil fields are left untouched.
type RunUpdate struct {
	Status          *string
	TotalChunks     *int
	TotalDimensions *int
	TotalCostUSD    *float64
	TotalDurationMS *int64
	ErrorMessage    *string
	CompletedAt     *time.Time
}

// ChunkRun is a run as seen from one chunk.
type ChunkRun struct {
	Run
	HasData bool
}

// APIResponseLog is the audit record of one model call.
type APIResponseLog struct {
	ID           string
	ChunkRef     string
	RunID        string
	TemplateID   string
	TemplateType string
	TemplateName string
	Model        string
	Temperature  float64
	Prompt       string
	Response     string
	ParsedJSON   string
	ParseError   string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	CreatedAt    time.Time
}

// Task is a unit of background work in the queue.
type Task struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
