// Package extraction drives a document through chunk extraction as an
// observable job: load, identify candidates, persist chunks, and optionally
// generate dimensions.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/chunkdim/internal/chunker"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/storage"
	"github.com/kalambet/chunkdim/internal/textstat"
)

// TaskType is the queue task type of a background extraction.
const TaskType = "extract_document"

const unknownCategory = "Unknown"

// Store is the persistence the orchestrator needs.
type Store interface {
	GetDocument(id string) (storage.Document, error)
	GetPrimaryCategory(id string) (string, error)
	SetExtractionStatus(id, status string) error
	DeleteChunksByDocument(documentID string) (int64, error)
	CreateChunk(c storage.Chunk) error
	CreateJob(j storage.ExtractionJob) error
	UpdateJob(id string, u storage.JobUpdate) error
}

// Identifier finds chunk candidates in a document.
type Identifier interface {
	ExtractCandidates(ctx context.Context, title, content, category string) ([]chunker.Candidate, error)
}

// Generator produces dimensions for a document's chunks.
type Generator interface {
	GenerateForDocument(ctx context.Context, req generation.Request) (string, error)
}

// Enqueuer puts work on the background task queue.
type Enqueuer interface {
	EnqueueTask(t storage.Task) error
}

// Observer is told about jobs reaching a terminal status.
type Observer interface {
	JobFinished(status string)
}

// Options configures an Orchestrator.
type Options struct {
	// Generator, when set, runs dimension generation after chunks are saved.
	Generator Generator
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// Orchestrator runs extraction jobs.
type Orchestrator struct {
	store     Store
	finder    Identifier
	generator Generator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func New(store Store, finder Identifier, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Orchestrator{
		store:     store,
		finder:    finder,
		generator: opts.Generator,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Extract creates a job for the document and runs it to completion.
func (o *Orchestrator) Extract(ctx context.Context, documentID, userID string) ([]storage.Chunk, error) {
	job, err := o.createJob(documentID, userID)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job.ID, documentID, userID)
}

// Start creates a pending job and queues it, returning without waiting.
func (o *Orchestrator) Start(q Enqueuer, documentID, userID string) (storage.ExtractionJob, error) {
	job, err := o.createJob(documentID, userID)
	if err != nil {
		return storage.ExtractionJob{}, err
	}
	payload, err := json.Marshal(taskPayload{JobID: job.ID, DocumentID: documentID, UserID: userID})
	if err != nil {
		return storage.ExtractionJob{}, fmt.Errorf("encoding extraction task: %w", err)
	}
	if err := q.EnqueueTask(storage.Task{ID: o.newID(), Type: TaskType, PayloadJSON: string(payload)}); err != nil {
		t := &tracker{o: o, id: job.ID, status: StatusPending}
		t.fail(fmt.Errorf("queueing extraction: %w", err))
		return storage.ExtractionJob{}, fmt.Errorf("queueing extraction job: %w", err)
	}
	o.logger.Info("extraction job queued", "job_id", job.ID, "document_id", documentID)
	return job, nil
}

type taskPayload struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id,omitempty"`
}

// HandleTask runs a queued extraction job.
func (o *Orchestrator) HandleTask(ctx context.Context, payload string) error {
	var p taskPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("decoding extraction task: %w", err)
	}
	_, err := o.Run(ctx, p.JobID, p.DocumentID, p.UserID)
	return err
}

func (o *Orchestrator) createJob(documentID, userID string) (storage.ExtractionJob, error) {
	if documentID == "" {
		return storage.ExtractionJob{}, errors.New("document id is required")
	}
	job := storage.ExtractionJob{
		ID:         o.newID(),
		DocumentID: documentID,
		UserID:     userID,
		Status:     StatusPending,
		CreatedAt:  o.now(),
	}
	if err := o.store.CreateJob(job); err != nil {
		return storage.ExtractionJob{}, fmt.Errorf("creating extraction job: %w", err)
	}
	return job, nil
}

// Run executes a pending job. Any failure marks the job and the document
// failed and is returned; chunks saved before the failure are kept.
func (o *Orchestrator) Run(ctx context.Context, jobID, documentID, userID string) ([]storage.Chunk, error) {
	t := &tracker{o: o, id: jobID, status: StatusPending}
	log := o.logger.With("job_id", jobID, "document_id", documentID)

	chunks, err := o.run(ctx, t, documentID, userID, log)
	if err != nil {
		t.fail(err)
		if serr := o.store.SetExtractionStatus(documentID, storage.ExtractionFailed); serr != nil && !errors.Is(serr, storage.ErrNotFound) {
			log.Warn("failed to flag document extraction failure", "error", serr)
		}
		log.Error("extraction job failed", "step", t.step, "error", err)
		return chunks, err
	}
	return chunks, nil
}

func (o *Orchestrator) run(ctx context.Context, t *tracker, documentID, userID string, log *slog.Logger) ([]storage.Chunk, error) {
	started := o.now()
	if err := t.advance(StatusExtracting, progressLoading, "Loading document", func(u *storage.JobUpdate) { u.StartedAt = &started }); err != nil {
		return nil, err
	}
	doc, err := o.store.GetDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", documentID, err)
	}
	if err := o.store.SetExtractionStatus(documentID, storage.ExtractionExtracting); err != nil {
		return nil, fmt.Errorf("flagging document: %w", err)
	}

	if err := t.advance(StatusExtracting, progressPreparing, "Preparing document", nil); err != nil {
		return nil, err
	}
	category, err := o.store.GetPrimaryCategory(documentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("resolving primary category: %w", err)
	}
	if category == "" {
		category = unknownCategory
	}
	removed, err := o.store.DeleteChunksByDocument(documentID)
	if err != nil {
		return nil, fmt.Errorf("deleting existing chunks: %w", err)
	}
	if removed > 0 {
		log.Info("removed previous chunks", "count", removed)
	}

	if err := t.advance(StatusExtracting, progressIdentify, "Identifying chunk candidates", nil); err != nil {
		return nil, err
	}
	candidates, err := o.finder.ExtractCandidates(ctx, doc.Title, doc.Content, category)
	if err != nil {
		return nil, err
	}

	if err := t.advance(StatusExtracting, progressSaving, fmt.Sprintf("Saving %d chunks", len(candidates)), nil); err != nil {
		return nil, err
	}
	chunks, err := o.saveChunks(doc, candidates)
	if err != nil {
		return chunks, err
	}
	log.Info("chunks extracted", "count", len(chunks))

	if o.generator != nil {
		if err := t.advance(StatusGenerating, progressGenerating, "Generating dimensions", nil); err != nil {
			return chunks, err
		}
		runID, err := o.generator.GenerateForDocument(ctx, generation.Request{DocumentID: documentID, UserID: userID})
		if err != nil {
			return chunks, fmt.Errorf("generating dimensions (run %s): %w", runID, err)
		}
		log.Info("dimensions generated", "run_id", runID)
	}

	done := o.now()
	n := len(chunks)
	if err := t.advance(StatusCompleted, progressDone, "Completed", func(u *storage.JobUpdate) {
		u.TotalChunksExtracted = &n
		u.CompletedAt = &done
	}); err != nil {
		return chunks, err
	}
	if err := o.store.SetExtractionStatus(documentID, storage.ExtractionCompleted); err != nil {
		log.Warn("failed to flag document extraction completed", "error", err)
	}
	if o.observer != nil {
		o.observer.JobFinished(StatusCompleted)
	}
	return chunks, nil
}

// saveChunks persists candidates in document order. It stops at the first
// failed insert and returns the chunks saved so far.
func (o *Orchestrator) saveChunks(doc storage.Document, candidates []chunker.Candidate) ([]storage.Chunk, error) {
	saved := make([]storage.Chunk, 0, len(candidates))
	prevStart, prevEnd := 0, 0
	for i, cand := range candidates {
		seq := i + 1
		text := doc.Content[cand.Start:cand.End]
		pageStart, pageEnd := textstat.PageRange(cand.Start, cand.End)
		overlap := 0
		if i > 0 {
			overlap = textstat.OverlapTokens(doc.Content, prevStart, prevEnd, cand.Start, cand.End)
		}
		c := storage.Chunk{
			ID:             o.newID(),
			ChunkID:        fmt.Sprintf("%s#C%03d", doc.ID, seq),
			DocumentID:     doc.ID,
			ChunkType:      string(cand.Type),
			SectionHeading: cand.SectionHeading,
			CharStart:      cand.Start,
			CharEnd:        cand.End,
			PageStart:      pageStart,
			PageEnd:        pageEnd,
			TokenCount:     textstat.EstimateTokens(text),
			OverlapTokens:  overlap,
			ChunkHandle:    textstat.Handle(cand.SectionHeading, string(cand.Type), seq),
			ChunkText:      text,
			AIConfidence:   cand.Confidence,
			Reasoning:      cand.Reasoning,
			CreatedAt:      o.now(),
		}
		if err := o.store.CreateChunk(c); err != nil {
			return saved, fmt.Errorf("saving chunk %s: %w", c.ChunkID, err)
		}
		saved = append(saved, c)
		prevStart, prevEnd = cand.Start, cand.End
	}
	return saved, nil
}

// tracker applies validated status and progress changes to one job.
type tracker struct {
	o        *Orchestrator
	id       string
	status   string
	progress int
	step     string
}

func (t *tracker) advance(status string, progress int, step string, extra func(*storage.JobUpdate)) error {
	if status != t.status {
		if err := ValidateTransition(t.status, status); err != nil {
			return err
		}
	}
	progress = max(progress, t.progress)
	u := storage.JobUpdate{Status: &status, CurrentStep: &step, ProgressPercentage: &progress}
	if extra != nil {
		extra(&u)
	}
	if err := t.o.store.UpdateJob(t.id, u); err != nil {
		return fmt.Errorf("updating job %s: %w", t.id, err)
	}
	t.status, t.progress, t.step = status, progress, step
	return nil
}

func (t *tracker) fail(cause error) {
	if Terminal(t.status) {
		return
	}
	status := StatusFailed
	msg := cause.Error()
	now := t.o.now()
	if err := t.o.store.UpdateJob(t.id, storage.JobUpdate{Status: &status, ErrorMessage: &msg, CompletedAt: &now}); err != nil {
		t.o.logger.Error("failed to mark job failed", "job_id", t.id, "error", err)
		return
	}
	t.status = StatusFailed
	if t.o.observer != nil {
		t.o.observer.JobFinished(StatusFailed)
	}
}
