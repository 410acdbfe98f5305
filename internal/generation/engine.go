// Package generation runs prompt templates over a document's chunks and
// records one versioned dimension record per chunk and run.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/storage"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

const (
	unknownCategory = "Unknown"
	untitled        = "Untitled Document"
)

type DocumentStore interface {
	GetDocument(id string) (storage.Document, error)
	GetPrimaryCategory(id string) (string, error)
}

type ChunkStore interface {
	GetChunksByDocument(documentID string) ([]storage.Chunk, error)
}

type TemplateStore interface {
	GetActiveTemplates(chunkType string) ([]storage.PromptTemplate, error)
}

type RunStore interface {
	CreateRun(r storage.Run) error
	UpdateRun(runID string, u storage.RunUpdate) error
}

type DimensionStore interface {
	CreateDimensions(rec dimension.Record) error
}

// Store is everything the engine reads and writes.
type Store interface {
	DocumentStore
	ChunkStore
	TemplateStore
	RunStore
	DimensionStore
}

// Completer is the model call the engine depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// AuditSink receives a record of every model call. It must not block.
type AuditSink interface {
	Record(l storage.APIResponseLog)
}

// Observer is notified of model calls, costs and finished runs.
type Observer interface {
	ObserveModelCall(operation string, c llm.Completion, d time.Duration, err error)
	AddCost(usd float64)
	RunFinished(status string)
}

// Config holds the engine's tunables.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BatchSize   int
	// InputPrice and OutputPrice are USD per estimated token.
	InputPrice  float64
	OutputPrice float64
	// Variance returns a uniform draw in [0,1) for the accuracy offset.
	Variance func() float64
	Now      func() time.Time
	NewID    func() string
}

// DefaultConfig returns the production defaults for model.
func DefaultConfig(model string) Config {
	return Config{
		Model:       model,
		Temperature: 0.5,
		MaxTokens:   2048,
		BatchSize:   3,
		InputPrice:  0.000003,
		OutputPrice: 0.000015,
	}
}

// Params overrides the model settings for one run.
type Params struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Request describes a generation run. Empty ChunkIDs or TemplateIDs mean all.
type Request struct {
	DocumentID  string   `json:"document_id"`
	UserID      string   `json:"user_id,omitempty"`
	ChunkIDs    []string `json:"chunk_ids,omitempty"`
	TemplateIDs []string `json:"template_ids,omitempty"`
	Params      *Params  `json:"params,omitempty"`
}

// Options carries the engine's optional collaborators.
type Options struct {
	Logger   *slog.Logger
	Audit    AuditSink
	Observer Observer
}

// Engine generates dimension records.
type Engine struct {
	store    Store
	client   Completer
	cfg      Config
	logger   *slog.Logger
	audit    AuditSink
	observer Observer
}

// New creates an Engine. Zero batch size, token budget, clock, id source and
// variance source fall back to defaults; prices and temperature are used as given.
func New(store Store, client Completer, cfg Config, opts Options) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Variance == nil {
		cfg.Variance = rand.Float64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:    store,
		client:   client,
		cfg:      cfg,
		logger:   opts.Logger,
		audit:    opts.Audit,
		observer: opts.Observer,
	}
}

// GenerateForDocument creates a run and executes it synchronously. The run
// id is returned even when the run fails.
func (e *Engine) GenerateForDocument(ctx context.Context, req Request) (string, error) {
	run, err := e.StartRun(req)
	if err != nil {
		return "", err
	}
	return run.RunID, e.ExecuteRun(ctx, run.RunID, req)
}

// StartRun records a new run in the running state.
func (e *Engine) StartRun(req Request) (storage.Run, error) {
	if req.DocumentID == "" {
		return storage.Run{}, errors.New("document id is required")
	}
	now := e.cfg.Now().UTC()
	run := storage.Run{
		RunID:      e.cfg.NewID(),
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
		RunName:    "Dimension Generation - " + now.Format(time.RFC3339),
		Model:      e.model(req.Params),
		Status:     RunRunning,
		StartedAt:  now,
	}
	if err := e.store.CreateRun(run); err != nil {
		return storage.Run{}, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// ExecuteRun processes the requested chunks in batches and finalizes the run.
// Any error marks the run failed; records already written are kept.
func (e *Engine) ExecuteRun(ctx context.Context, runID string, req Request) error {
	start := e.cfg.Now()
	log := e.logger.With("run_id", runID, "document_id", req.DocumentID)

	count, cost, err := e.execute(ctx, runID, req, log)
	if err != nil {
		now := e.cfg.Now()
		msg := err.Error()
		status := RunFailed
		if uerr := e.store.UpdateRun(runID, storage.RunUpdate{Status: &status, ErrorMessage: &msg, TotalCostUSD: &cost, CompletedAt: &now}); uerr != nil {
			log.Error("failed to mark run failed", "error", uerr)
		}
		e.finished(RunFailed)
		log.Error("dimension generation failed", "error", err)
		return err
	}

	now := e.cfg.Now()
	status := RunCompleted
	duration := now.Sub(start).Milliseconds()
	total := count * dimension.Total
	if err := e.store.UpdateRun(runID, storage.RunUpdate{
		Status:          &status,
		TotalDimensions: &total,
		TotalCostUSD:    &cost,
		TotalDurationMS: &duration,
		CompletedAt:     &now,
	}); err != nil {
		e.finished(RunFailed)
		return fmt.Errorf("completing run: %w", err)
	}
	e.finished(RunCompleted)
	log.Info("dimension generation completed", "chunks", count, "cost_usd", cost, "duration_ms", duration)
	return nil
}

func (e *Engine) execute(ctx context.Context, runID string, req Request, log *slog.Logger) (int, float64, error) {
	chunks, err := e.store.GetChunksByDocument(req.DocumentID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading chunks: %w", err)
	}
	if len(req.ChunkIDs) > 0 {
		chunks = slices.DeleteFunc(chunks, func(c storage.Chunk) bool {
			return !slices.Contains(req.ChunkIDs, c.ID) && !slices.Contains(req.ChunkIDs, c.ChunkID)
		})
	}
	total := len(chunks)
	if err := e.store.UpdateRun(runID, storage.RunUpdate{TotalChunks: &total}); err != nil {
		return 0, 0, fmt.Errorf("updating run: %w", err)
	}

	meta, err := e.documentMeta(req.DocumentID)
	if err != nil {
		return 0, 0, err
	}

	var (
		mu   sync.Mutex
		cost float64
	)
	for i := 0; i < len(chunks); i += e.cfg.BatchSize {
		batch := chunks[i:min(i+e.cfg.BatchSize, len(chunks))]
		log.Debug("processing batch", "from", i, "size", len(batch))

		// Every pipeline in the batch settles before the first error is returned.
		var g errgroup.Group
		for _, c := range batch {
			g.Go(func() error {
				spent, err := e.GenerateForChunk(ctx, c, meta, runID, req)
				mu.Lock()
				cost += spent
				mu.Unlock()
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return total, cost, err
		}
	}
	return total, cost, nil
}

// DocumentMeta is the document-level data inherited by every chunk record.
type DocumentMeta struct {
	DocumentID      string
	Title           string
	Version         string
	SourceType      string
	SourceURL       string
	Author          string
	Date            string
	PrimaryCategory string
}

func (e *Engine) documentMeta(documentID string) (DocumentMeta, error) {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return DocumentMeta{}, fmt.Errorf("loading document %s: %w", documentID, err)
	}
	category, err := e.store.GetPrimaryCategory(documentID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return DocumentMeta{}, fmt.Errorf("resolving primary category: %w", err)
	}
	if category == "" {
		category = unknownCategory
	}
	m := DocumentMeta{
		DocumentID:      doc.ID,
		Title:           doc.Title,
		Version:         doc.DocVersion,
		SourceType:      doc.SourceType,
		SourceURL:       doc.SourceURL,
		Author:          doc.Author,
		Date:            doc.DocDate,
		PrimaryCategory: category,
	}
	if m.Title == "" {
		m.Title = untitled
	}
	if m.Date == "" && !doc.CreatedAt.IsZero() {
		m.Date = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	return m, nil
}

// GenerateForChunk builds and stores the dimension record of one chunk in
// the run. Templates run sequentially; later templates overwrite earlier
// values field by field. It returns the estimated cost spent on the chunk.
func (e *Engine) GenerateForChunk(ctx context.Context, c storage.Chunk, meta DocumentMeta, runID string, req Request) (float64, error) {
	start := e.cfg.Now()
	rec := e.seed(c, meta, runID, req.Params)

	templates, err := e.store.GetActiveTemplates(c.ChunkType)
	if err != nil {
		return 0, fmt.Errorf("loading templates for %s: %w", c.ChunkType, err)
	}
	if len(req.TemplateIDs) > 0 {
		templates = slices.DeleteFunc(templates, func(t storage.PromptTemplate) bool {
			return !slices.Contains(req.TemplateIDs, t.ID)
		})
	}

	var cost float64
	for _, tpl := range templates {
		subset, spent, err := e.executeTemplate(ctx, tpl, c, meta, runID, req.Params)
		cost += spent
		if err != nil {
			return cost, err
		}
		if subset != nil {
			subset.ApplyTo(&rec)
		}
	}

	precision := dimension.PrecisionScore(dimension.ChunkType(c.ChunkType), rec)
	accuracy := dimension.AccuracyScore(precision, e.cfg.Variance())
	rec.PrecisionConfidence = &precision
	rec.AccuracyConfidence = &accuracy
	rec.CostUSD = dimension.Ptr(cost)
	rec.DurationMS = dimension.Ptr(e.cfg.Now().Sub(start).Milliseconds())
	rec.GeneratedAt = e.cfg.Now().UTC()

	if err := e.store.CreateDimensions(rec); err != nil {
		return cost, fmt.Errorf("saving dimensions for chunk %s: %w", c.ID, err)
	}
	return cost, nil
}

// seed fills the inherited, mechanical and default fields of a new record.
func (e *Engine) seed(c storage.Chunk, meta DocumentMeta, runID string, params *Params) dimension.Record {
	now := e.cfg.Now().UTC()
	return dimension.Record{
		ID:       e.cfg.NewID(),
		ChunkRef: c.ID,
		RunID:    runID,

		DocID:           dimension.Ptr(meta.DocumentID),
		DocTitle:        dimension.Ptr(meta.Title),
		DocVersion:      optional(meta.Version),
		SourceType:      optional(meta.SourceType),
		SourceURL:       optional(meta.SourceURL),
		Author:          optional(meta.Author),
		DocDate:         optional(meta.Date),
		PrimaryCategory: dimension.Ptr(meta.PrimaryCategory),

		ChunkID:        dimension.Ptr(c.ChunkID),
		SectionHeading: optional(c.SectionHeading),
		PageStart:      dimension.Ptr(c.PageStart),
		PageEnd:        dimension.Ptr(c.PageEnd),
		CharStart:      dimension.Ptr(c.CharStart),
		CharEnd:        dimension.Ptr(c.CharEnd),
		TokenCount:     dimension.Ptr(c.TokenCount),
		OverlapTokens:  dimension.Ptr(c.OverlapTokens),
		ChunkHandle:    optional(c.ChunkHandle),
		ChunkType:      dimension.Ptr(c.ChunkType),

		LabelSource:    dimension.Ptr("auto"),
		LabelModel:     dimension.Ptr(e.model(params)),
		LabeledBy:      dimension.Ptr("system"),
		LabelTimestamp: dimension.Ptr(now.Format(time.RFC3339)),
		ReviewStatus:   dimension.Ptr("unreviewed"),
		DataSplit:      dimension.Ptr(dimension.SplitFor(c.ID)),

		PIIFlag:           dimension.Ptr(false),
		IncludeInTraining: dimension.Ptr(true),
	}
}

func (e *Engine) executeTemplate(ctx context.Context, tpl storage.PromptTemplate, c storage.Chunk, meta DocumentMeta, runID string, params *Params) (dimension.Subset, float64, error) {
	prompt := RenderPrompt(tpl.PromptText, Placeholders{
		ChunkType:       c.ChunkType,
		DocTitle:        meta.Title,
		PrimaryCategory: meta.PrimaryCategory,
		ChunkText:       c.ChunkText,
	})
	model := e.model(params)
	temperature := e.cfg.Temperature
	if params != nil && params.Temperature != nil {
		temperature = *params.Temperature
	}

	entry := storage.APIResponseLog{
		ID:           e.cfg.NewID(),
		ChunkRef:     c.ID,
		RunID:        runID,
		TemplateID:   tpl.ID,
		TemplateType: tpl.TemplateType,
		TemplateName: tpl.Name,
		Model:        model,
		Temperature:  temperature,
		Prompt:       prompt,
	}

	callStart := time.Now()
	out, err := e.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if e.observer != nil {
		e.observer.ObserveModelCall("generate_dimensions", out, time.Since(callStart), err)
	}
	if err != nil {
		entry.ParseError = "model call failed: " + err.Error()
		e.record(entry)
		return nil, 0, fmt.Errorf("template %s on chunk %s: %w", tpl.Name, c.ID, err)
	}

	text := StripFence(out.Text)
	subset, perr := ParseSubset(tpl.TemplateType, text)
	if perr != nil {
		e.logger.Warn("unparseable template response", "template", tpl.Name, "chunk_id", c.ID, "error", perr, "response", preview(text, 200))
		entry.ParseError = perr.Error()
		subset = nil
	}

	entry.Response = text
	entry.ParsedJSON = extracted(subset)
	entry.InputTokens = EstimateTokens(prompt)
	entry.OutputTokens = EstimateTokens(text)
	entry.CostUSD = float64(entry.InputTokens)*e.cfg.InputPrice + float64(entry.OutputTokens)*e.cfg.OutputPrice
	e.record(entry)
	if e.observer != nil {
		e.observer.AddCost(entry.CostUSD)
	}
	return subset, entry.CostUSD, nil
}

func (e *Engine) record(l storage.APIResponseLog) {
	if e.audit == nil {
		return
	}
	l.CreatedAt = e.cfg.Now()
	e.audit.Record(l)
}

func (e *Engine) finished(status string) {
	if e.observer != nil {
		e.observer.RunFinished(status)
	}
}

func (e *Engine) model(p *Params) string {
	if p != nil && p.Model != "" {
		return p.Model
	}
	return e.cfg.Model
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
