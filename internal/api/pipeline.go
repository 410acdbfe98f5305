package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/chunkdim/internal/compare"
	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/storage"
)

type startExtractionRequest struct {
	UserID string `json:"user_id"`
}

// GenerateRequest selects what a generation run covers. Empty lists mean
// every chunk and every applicable template.
type GenerateRequest struct {
	UserID      string             `json:"user_id"`
	ChunkIDs    []string           `json:"chunk_ids"`
	TemplateIDs []string           `json:"template_ids"`
	Params      *generation.Params `json:"params"`
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func handleStartExtraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req startExtractionRequest
		if err := decodeOptional(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if _, err := deps.Store.GetDocument(id); err != nil {
			storeError(w, err, "document")
			return
		}
		job, err := deps.Extractor.Start(deps.Store, id, req.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start extraction: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, newJobView(job))
	}
}

func handleLatestJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetLatestJob(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "extraction job")
			return
		}
		writeJSON(w, http.StatusOK, newJobView(job))
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "extraction job")
			return
		}
		writeJSON(w, http.StatusOK, newJobView(job))
	}
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req GenerateRequest
		if err := decodeOptional(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if p := req.Params; p != nil && p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "temperature must be between 0 and 2")
			return
		}
		if _, err := deps.Store.GetDocument(id); err != nil {
			storeError(w, err, "document")
			return
		}
		run, err := deps.Generator.Start(deps.Store, generation.Request{
			DocumentID:  id,
			UserID:      req.UserID,
			ChunkIDs:    req.ChunkIDs,
			TemplateIDs: req.TemplateIDs,
			Params:      req.Params,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start generation: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, newRunView(run))
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Store.GetRunsByDocument(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapViews(runs, newRunView))
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := deps.Store.GetRun(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "run")
			return
		}
		writeJSON(w, http.StatusOK, newRunView(run))
	}
}

func handleRunDimensions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetRun(id); err != nil {
			storeError(w, err, "run")
			return
		}
		recs, err := deps.Store.GetDimensionsByRun(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load dimensions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, emptyIfNil(recs))
	}
}

func handleRunLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := deps.Store.ListAPIResponseLogs(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list logs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapViews(logs, newLogView))
	}
}

func handleChunkRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := deps.Store.GetRunsForChunk(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err, "chunk")
			return
		}
		writeJSON(w, http.StatusOK, mapViews(runs, newChunkRunView))
	}
}

// handleChunkDimensions returns the record of one run when run_id is given,
// otherwise the chunk's history oldest first.
func handleChunkDimensions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if runID := r.URL.Query().Get("run_id"); runID != "" {
			rec, err := deps.Store.GetDimensionsByChunkAndRun(id, runID)
			if err != nil {
				storeError(w, err, "dimensions")
				return
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}
		recs, err := deps.Store.GetDimensionsByChunk(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load dimensions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, emptyIfNil(recs))
	}
}

// handleValidate returns the per-field view of the run_id record, or of the
// chunk's latest record.
func handleValidate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := selectRecord(deps.Store, chi.URLParam(r, "id"), r.URL.Query().Get("run_id"))
		if err != nil {
			storeError(w, err, "dimensions")
			return
		}
		v, err := dimension.Validate(rec)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to validate: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func selectRecord(s Store, chunkRef, runID string) (dimension.Record, error) {
	if runID != "" {
		return s.GetDimensionsByChunkAndRun(chunkRef, runID)
	}
	recs, err := s.GetDimensionsByChunk(chunkRef)
	if err != nil {
		return dimension.Record{}, err
	}
	if len(recs) == 0 {
		return dimension.Record{}, storage.ErrNotFound
	}
	return recs[len(recs)-1], nil
}

// handleCompare diffs the chunk's records across runs. Repeated run_id
// parameters restrict the comparison to those runs.
func handleCompare(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.GetDimensionsByChunk(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load dimensions: %v", err)
			return
		}
		recs = filterRuns(recs, r.URL.Query()["run_id"])
		cmp, err := compare.Compare(recs)
		if errors.Is(err, compare.ErrTooFewRuns) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compare: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, cmp)
	}
}

func filterRuns(recs []dimension.Record, runIDs []string) []dimension.Record {
	if len(runIDs) == 0 {
		return recs
	}
	var out []dimension.Record
	for _, rec := range recs {
		if slices.Contains(runIDs, rec.RunID) {
			out = append(out, rec)
		}
	}
	return out
}
