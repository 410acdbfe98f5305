package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/extraction"
	"github.com/kalambet/chunkdim/internal/generation"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/storage"
)

// --- fakes ---

type fakeExtractor struct {
	store *storage.Store
	calls []string
	err   error
}

func (f *fakeExtractor) Start(q extraction.Enqueuer, documentID, userID string) (storage.ExtractionJob, error) {
	f.calls = append(f.calls, documentID+"/"+userID)
	if f.err != nil {
		return storage.ExtractionJob{}, f.err
	}
	job := storage.ExtractionJob{ID: "job-" + documentID, DocumentID: documentID, UserID: userID, Status: extraction.StatusPending}
	if err := f.store.CreateJob(job); err != nil {
		return storage.ExtractionJob{}, err
	}
	return job, nil
}

type fakeGenerator struct {
	store *storage.Store
	reqs  []generation.Request
}

func (f *fakeGenerator) Start(q generation.Enqueuer, req generation.Request) (storage.Run, error) {
	f.reqs = append(f.reqs, req)
	run := storage.Run{RunID: "run-new", DocumentID: req.DocumentID, RunName: "r", Model: "m", Status: generation.RunRunning}
	if err := f.store.CreateRun(run); err != nil {
		return storage.Run{}, err
	}
	return run, nil
}

type fakeModels struct {
	models []llm.Model
	err    error
}

func (f fakeModels) ListModels(context.Context) ([]llm.Model, error) { return f.models, f.err }

// --- helpers ---

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	extractor *fakeExtractor
	generator *fakeGenerator
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:     store,
		extractor: &fakeExtractor{store: store},
		generator: &fakeGenerator{store: store},
	}
	env.handler = NewHandler(Deps{
		Store:     store,
		Extractor: env.extractor,
		Generator: env.generator,
		Models:    fakeModels{models: []llm.Model{{ID: "test/model", Object: "model"}}},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "chunkdim_jobs_total 0\n")
		}),
		NewID: func() string { return "doc-new" },
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, httptest.NewRequest(method, url, reader))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]map[string]string](t, rr)
	return body["error"]["type"]
}

func seedPipeline(t *testing.T, s *storage.Store) {
	t.Helper()
	if err := s.CreateDocument(storage.Document{ID: "doc-1", Title: "Guide", Content: "text"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateChunk(storage.Chunk{
		ID: "chunk-1", ChunkID: "doc-1#C001", DocumentID: "doc-1", ChunkType: "CER",
		CharStart: 0, CharEnd: 4, ChunkText: "text",
	}); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		if err := s.CreateRun(storage.Run{RunID: id, DocumentID: "doc-1", RunName: id, Model: "m",
			Status: generation.RunCompleted, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	records := []dimension.Record{
		{ID: "dim-1", ChunkRef: "chunk-1", RunID: "run-1", PrecisionConfidence: dimension.Ptr(4)},
		{ID: "dim-2", ChunkRef: "chunk-1", RunID: "run-2", Claim: dimension.Ptr("water boils"), PrecisionConfidence: dimension.Ptr(7)},
	}
	for _, r := range records {
		if err := s.CreateDimensions(r); err != nil {
			t.Fatal(err)
		}
	}
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetricsAndModels(t *testing.T) {
	env := setup(t)
	if rr := env.do(t, http.MethodGet, "/metrics", ""); !strings.Contains(rr.Body.String(), "chunkdim_jobs_total") {
		t.Errorf("metrics body = %q", rr.Body.String())
	}
	rr := env.do(t, http.MethodGet, "/models", "")
	list := decode[llm.ModelList](t, rr)
	if len(list.Data) != 1 || list.Data[0].ID != "test/model" {
		t.Errorf("models = %+v", list)
	}
}

func TestModelsWithoutService(t *testing.T) {
	h := NewHandler(Deps{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/models", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestCreateDocument_Text(t *testing.T) {
	env := setup(t)
	rr := env.do(t, http.MethodPost, "/documents", `{"title":"Guide","content":"Body text","primary_category":"Manuals"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	v := decode[documentView](t, rr)
	if v.ID != "doc-new" || v.ExtractionStatus != storage.ExtractionPending || v.ContentLength != 9 {
		t.Errorf("view = %+v", v)
	}

	doc, err := env.store.GetDocument("doc-new")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content != "Body text" || doc.PrimaryCategory != "Manuals" {
		t.Errorf("stored = %+v", doc)
	}
}

func TestCreateDocument_File(t *testing.T) {
	env := setup(t)
	page := base64.StdEncoding.EncodeToString([]byte(`<html><head><title>Runbook</title></head><body><p>Restart the node.</p></body></html>`))
	rr := env.do(t, http.MethodPost, "/documents", `{"file_name":"runbook.html","file_base64":"`+page+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	doc, _ := env.store.GetDocument("doc-new")
	if doc.Title != "Runbook" || doc.SourceType != "html" || doc.Content != "Restart the node." {
		t.Errorf("stored = %+v", doc)
	}
}

func TestCreateDocument_Invalid(t *testing.T) {
	env := setup(t)
	cases := map[string]struct {
		body string
		code int
	}{
		"no content":     {`{"title":"x"}`, http.StatusBadRequest},
		"bad json":       {`{`, http.StatusBadRequest},
		"bad base64":     {`{"file_name":"a.txt","file_base64":"%%%"}`, http.StatusBadRequest},
		"no file name":   {`{"file_base64":"aGk="}`, http.StatusBadRequest},
		"unreadable pdf": {`{"file_name":"a.pdf","file_base64":"aGk="}`, http.StatusUnprocessableEntity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/documents", tc.body)
			if rr.Code != tc.code {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tc.code, rr.Body.String())
			}
			if got := errorType(t, rr); got != "invalid_request_error" {
				t.Errorf("error type = %q", got)
			}
		})
	}
}

func TestStartExtraction(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)

	rr := env.do(t, http.MethodPost, "/documents/missing/extract", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing doc status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/documents/doc-1/extract", `{"user_id":"u1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if len(env.extractor.calls) != 1 || env.extractor.calls[0] != "doc-1/u1" {
		t.Errorf("calls = %v", env.extractor.calls)
	}

	job := decode[jobView](t, env.do(t, http.MethodGet, "/jobs/job-doc-1", ""))
	if job.Status != extraction.StatusPending || job.DocumentID != "doc-1" {
		t.Errorf("job = %+v", job)
	}
	latest := decode[jobView](t, env.do(t, http.MethodGet, "/documents/doc-1/job", ""))
	if latest.ID != "job-doc-1" {
		t.Errorf("latest = %+v", latest)
	}
	if rr := env.do(t, http.MethodGet, "/jobs/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d", rr.Code)
	}
}

func TestStartExtraction_Failure(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)
	env.extractor.err = errors.New("queue full")

	rr := env.do(t, http.MethodPost, "/documents/doc-1/extract", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "queue full") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestGenerate(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)

	rr := env.do(t, http.MethodPost, "/documents/doc-1/generate", `{"params":{"temperature":3}}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad temperature status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/documents/doc-1/generate",
		`{"user_id":"u1","chunk_ids":["chunk-1"],"template_ids":["t1"],"params":{"model":"x/y","temperature":0.1}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	run := decode[runView](t, rr)
	if run.RunID != "run-new" {
		t.Errorf("run = %+v", run)
	}

	req := env.generator.reqs[0]
	if req.DocumentID != "doc-1" || req.UserID != "u1" || len(req.ChunkIDs) != 1 || req.TemplateIDs[0] != "t1" {
		t.Errorf("request = %+v", req)
	}
	if req.Params == nil || req.Params.Model != "x/y" || *req.Params.Temperature != 0.1 {
		t.Errorf("params = %+v", req.Params)
	}

	if rr := env.do(t, http.MethodPost, "/documents/missing/generate", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing doc status = %d", rr.Code)
	}
}

func TestRunsAndDimensions(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)

	runs := decode[[]runView](t, env.do(t, http.MethodGet, "/documents/doc-1/runs", ""))
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Errorf("runs = %+v", runs)
	}

	chunkRuns := decode[[]runView](t, env.do(t, http.MethodGet, "/chunks/chunk-1/runs", ""))
	if len(chunkRuns) != 2 || chunkRuns[0].HasData == nil || !*chunkRuns[0].HasData {
		t.Errorf("chunk runs = %+v", chunkRuns)
	}

	history := decode[[]dimension.Record](t, env.do(t, http.MethodGet, "/chunks/chunk-1/dimensions", ""))
	if len(history) != 2 || history[0].RunID != "run-1" {
		t.Errorf("history = %+v", history)
	}

	rec := decode[dimension.Record](t, env.do(t, http.MethodGet, "/chunks/chunk-1/dimensions?run_id=run-2", ""))
	if rec.Claim == nil || *rec.Claim != "water boils" {
		t.Errorf("record = %+v", rec)
	}
	if rr := env.do(t, http.MethodGet, "/chunks/chunk-1/dimensions?run_id=nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rr.Code)
	}

	byRun := decode[[]dimension.Record](t, env.do(t, http.MethodGet, "/runs/run-1/dimensions", ""))
	if len(byRun) != 1 || byRun[0].ID != "dim-1" {
		t.Errorf("by run = %+v", byRun)
	}
	if rr := env.do(t, http.MethodGet, "/runs/nope/dimensions", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rr.Code)
	}

	chunks := decode[[]chunkView](t, env.do(t, http.MethodGet, "/documents/doc-1/chunks", ""))
	if len(chunks) != 1 || chunks[0].ChunkID != "doc-1#C001" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestValidateAndCompare(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)

	v := decode[dimension.Validation](t, env.do(t, http.MethodGet, "/chunks/chunk-1/validation", ""))
	if v.RecordID != "dim-2" || len(v.Rows) != dimension.Total {
		t.Errorf("validation = record %s rows %d", v.RecordID, len(v.Rows))
	}
	v = decode[dimension.Validation](t, env.do(t, http.MethodGet, "/chunks/chunk-1/validation?run_id=run-1", ""))
	if v.RecordID != "dim-1" {
		t.Errorf("validation record = %s", v.RecordID)
	}
	if rr := env.do(t, http.MethodGet, "/chunks/none/validation", ""); rr.Code != http.StatusNotFound {
		t.Errorf("no records status = %d", rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/chunks/chunk-1/compare", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("compare status = %d; body = %s", rr.Code, rr.Body.String())
	}
	body := decode[struct {
		Stats struct {
			Changed  int `json:"changed_fields"`
			Improved int `json:"improved_fields"`
		} `json:"stats"`
	}](t, rr)
	if body.Stats.Changed != 2 || body.Stats.Improved != 2 {
		t.Errorf("stats = %+v", body.Stats)
	}

	rr = env.do(t, http.MethodGet, "/chunks/chunk-1/compare?run_id=run-1", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("single run compare status = %d", rr.Code)
	}
}

func TestTemplatesAndFields(t *testing.T) {
	env := setup(t)
	if err := env.store.CreateTemplate(storage.PromptTemplate{
		ID: "t1", Name: "Risk", TemplateType: generation.RiskAssessment, PromptText: "{chunk_text}", IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	tpls := decode[[]templateView](t, env.do(t, http.MethodGet, "/templates", ""))
	if len(tpls) != 1 || tpls[0].Version != 1 || tpls[0].ApplicableChunkTypes != nil {
		t.Errorf("templates = %+v", tpls)
	}

	fields := decode[[]dimension.Field](t, env.do(t, http.MethodGet, "/fields", ""))
	if len(fields) != dimension.Total {
		t.Errorf("fields = %d, want %d", len(fields), dimension.Total)
	}
	none := decode[[]dimension.Field](t, env.do(t, http.MethodGet, "/fields?category=bogus", ""))
	if len(none) != 0 {
		t.Errorf("bogus category = %d fields", len(none))
	}
}

func TestRunLogs(t *testing.T) {
	env := setup(t)
	seedPipeline(t, env.store)
	if err := env.store.SaveAPIResponseLog(storage.APIResponseLog{
		ID: "log-1", ChunkRef: "chunk-1", RunID: "run-1", TemplateType: generation.CERAnalysis,
		Model: "m", Prompt: "p", Response: "{}",
	}); err != nil {
		t.Fatal(err)
	}
	logs := decode[[]logView](t, env.do(t, http.MethodGet, "/runs/run-1/logs", ""))
	if len(logs) != 1 || logs[0].TemplateType != generation.CERAnalysis {
		t.Errorf("logs = %+v", logs)
	}
}
