package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/extraction"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/storage"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxDocumentBodySize = 20 << 20 // 20MB

// Store is the read side of persistence plus the task queue.
type Store interface {
	CreateDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	ListDocuments(limit int) ([]storage.Document, error)
	GetChunk(id string) (storage.Chunk, error)
	GetChunksByDocument(documentID string) ([]storage.Chunk, error)
	GetJob(id string) (storage.ExtractionJob, error)
	GetLatestJob(documentID string) (storage.ExtractionJob, error)
	GetRun(runID string) (storage.Run, error)
	GetRunsByDocument(documentID string) ([]storage.Run, error)
	GetRunsForChunk(chunkRef string) ([]storage.ChunkRun, error)
	GetDimensionsByChunk(chunkRef string) ([]dimension.Record, error)
	GetDimensionsByChunkAndRun(chunkRef, runID string) (dimension.Record, error)
	GetDimensionsByRun(runID string) ([]dimension.Record, error)
	ListTemplates() ([]storage.PromptTemplate, error)
	ListAPIResponseLogs(runID string) ([]storage.APIResponseLog, error)
	EnqueueTask(t storage.Task) error
}

// Extractor queues extraction jobs.
type Extractor interface {
	Start(q extraction.Enqueuer, documentID, userID string) (storage.ExtractionJob, error)
}

// Generator queues dimension generation runs.
type Generator interface {
	Start(q generation.Enqueuer, req generation.Request) (storage.Run, error)
}

// ModelLister lists the models the model service offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

type Deps struct {
	Store     Store
	Extractor Extractor
	Generator Generator
	Models    ModelLister  // optional; /models answers 503 without it
	Metrics   http.Handler // optional; mounted at /metrics
	Logger    *slog.Logger
	NewID     func() string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Get("/models", handleModels(deps))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", handleCreateDocument(deps))
		r.Get("/", handleListDocuments(deps))
		r.Get("/{id}", handleGetDocument(deps))
		r.Get("/{id}/chunks", handleListChunks(deps))
		r.Post("/{id}/extract", handleStartExtraction(deps))
		r.Get("/{id}/job", handleLatestJob(deps))
		r.Post("/{id}/generate", handleGenerate(deps))
		r.Get("/{id}/runs", handleListRuns(deps))
	})
	r.Get("/jobs/{id}", handleGetJob(deps))

	r.Get("/runs/{id}", handleGetRun(deps))
	r.Get("/runs/{id}/dimensions", handleRunDimensions(deps))
	r.Get("/runs/{id}/logs", handleRunLogs(deps))

	r.Get("/chunks/{id}", handleGetChunk(deps))
	r.Get("/chunks/{id}/runs", handleChunkRuns(deps))
	r.Get("/chunks/{id}/dimensions", handleChunkDimensions(deps))
	r.Get("/chunks/{id}/validation", handleValidate(deps))
	r.Get("/chunks/{id}/compare", handleCompare(deps))

	r.Get("/templates", handleListTemplates(deps))
	r.Get("/fields", handleListFields)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Models == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "model service not configured")
			return
		}
		models, err := deps.Models.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, llm.ModelList{Object: "list", Data: models})
	}
}

func handleListFields(w http.ResponseWriter, r *http.Request) {
	if c := r.URL.Query().Get("category"); c != "" {
		writeJSON(w, http.StatusOK, emptyIfNil(dimension.FieldsByCategory(dimension.Category(c))))
		return
	}
	writeJSON(w, http.StatusOK, dimension.Fields())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// storeError answers 404 for storage.ErrNotFound and 500 otherwise.
func storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "failed to load %s: %v", what, err)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
