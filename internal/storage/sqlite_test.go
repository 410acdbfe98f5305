package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/kalambet/chunkdim/internal/dimension"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// clockStore returns a store whose clock advances one second per call.
func clockStore(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func seedDocument(t *testing.T, s *Store, id string) Document {
	t.Helper()
	d := Document{ID: id, Title: "Field Guide", Content: "Chapter 1\nbody", PrimaryCategory: "manual"}
	if err := s.CreateDocument(d); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return d
}

func seedChunk(t *testing.T, s *Store, id, docID string, start int) Chunk {
	t.Helper()
	c := Chunk{
		ID: id, ChunkID: docID + "#C001", DocumentID: docID, ChunkType: "CER",
		CharStart: start, CharEnd: start + 200, PageStart: 1, PageEnd: 1, TokenCount: 50,
		ChunkText: "some text", AIConfidence: 0.8,
	}
	if err := s.CreateChunk(c); err != nil {
		t.Fatalf("CreateChunk: %v", err)
	}
	return c
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_chunks_document", "idx_extraction_jobs_document", "idx_chunk_runs_document",
		"idx_chunk_dimensions_run", "idx_api_response_logs_run", "idx_tasks_status_run_after"}
	for _, idx := range indexes {
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count); err != nil {
			t.Fatalf("querying index %s: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %s not found", idx)
		}
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	seedDocument(t, s, "doc-1")

	got, err := s.GetDocument("doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Field Guide" || got.ExtractionStatus != ExtractionPending {
		t.Errorf("unexpected document: %+v", got)
	}

	cat, err := s.GetPrimaryCategory("doc-1")
	if err != nil {
		t.Fatalf("GetPrimaryCategory: %v", err)
	}
	if cat != "manual" {
		t.Errorf("category = %q, want manual", cat)
	}

	if err := s.SetExtractionStatus("doc-1", ExtractionCompleted); err != nil {
		t.Fatalf("SetExtractionStatus: %v", err)
	}
	got, _ = s.GetDocument("doc-1")
	if got.ExtractionStatus != ExtractionCompleted {
		t.Errorf("status = %q, want completed", got.ExtractionStatus)
	}
}

func TestDocumentNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetDocument("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument err = %v, want ErrNotFound", err)
	}
	if err := s.SetExtractionStatus("missing", ExtractionFailed); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetExtractionStatus err = %v, want ErrNotFound", err)
	}
}

func TestDocumentDuplicate(t *testing.T) {
	s := openTestStore(t)
	seedDocument(t, s, "doc-1")

	err := s.CreateDocument(Document{ID: "doc-1", Title: "x", Content: "y"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestChunksOrderedAndDeleted(t *testing.T) {
	s := openTestStore(t)
	seedDocument(t, s, "doc-1")
	seedDocument(t, s, "doc-2")
	seedChunk(t, s, "c-late", "doc-1", 900)
	seedChunk(t, s, "c-early", "doc-1", 10)
	seedChunk(t, s, "c-other", "doc-2", 0)

	chunks, err := s.GetChunksByDocument("doc-1")
	if err != nil {
		t.Fatalf("GetChunksByDocument: %v", err)
	}
	if len(chunks) != 2 || chunks[0].ID != "c-early" || chunks[1].ID != "c-late" {
		t.Fatalf("unexpected order: %+v", chunks)
	}

	n, err := s.DeleteChunksByDocument("doc-1")
	if err != nil {
		t.Fatalf("DeleteChunksByDocument: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if count, _ := s.GetChunkCount("doc-2"); count != 1 {
		t.Errorf("doc-2 chunk count = %d, want 1", count)
	}

	n, err = s.DeleteChunksByDocument("doc-1")
	if err != nil || n != 0 {
		t.Errorf("second delete = (%d, %v), want (0, nil)", n, err)
	}
}

func TestChunkRejectsEmptySpan(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateChunk(Chunk{ID: "c", ChunkID: "d#C001", DocumentID: "d", ChunkType: "CER", CharStart: 10, CharEnd: 10, ChunkText: "x"})
	if err == nil {
		t.Fatal("expected CHECK constraint error")
	}
}

func TestActiveTemplatesFilterByChunkType(t *testing.T) {
	s := clockStore(t)

	templates := []PromptTemplate{
		{ID: "t-all", Name: "content", TemplateType: "content_analysis", PromptText: "p", IsActive: true},
		{ID: "t-cer", Name: "cer", TemplateType: "cer_analysis", PromptText: "p", IsActive: true, ApplicableChunkTypes: []string{"CER"}},
		{ID: "t-off", Name: "risk", TemplateType: "risk_assessment", PromptText: "p", IsActive: false},
		{ID: "t-none", Name: "nothing", TemplateType: "task_extraction", PromptText: "p", IsActive: true, ApplicableChunkTypes: []string{}},
	}
	for _, tpl := range templates {
		if err := s.CreateTemplate(tpl); err != nil {
			t.Fatalf("CreateTemplate %s: %v", tpl.ID, err)
		}
	}

	cer, err := s.GetActiveTemplates("CER")
	if err != nil {
		t.Fatalf("GetActiveTemplates: %v", err)
	}
	if len(cer) != 2 || cer[0].ID != "t-all" || cer[1].ID != "t-cer" {
		t.Errorf("CER templates = %+v", cer)
	}

	scenario, _ := s.GetActiveTemplates("Example_Scenario")
	if len(scenario) != 1 || scenario[0].ID != "t-all" {
		t.Errorf("Example_Scenario templates = %+v", scenario)
	}

	all, _ := s.GetActiveTemplates("")
	if len(all) != 3 {
		t.Errorf("all active = %d, want 3", len(all))
	}

	got, err := s.GetTemplate("t-all")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.ApplicableChunkTypes != nil || got.Version != 1 {
		t.Errorf("unexpected template: %+v", got)
	}
}

func TestTemplateVersionUnique(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateTemplate(PromptTemplate{ID: "a", Name: "content", TemplateType: "content_analysis", PromptText: "p"}); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	err := s.CreateTemplate(PromptTemplate{ID: "b", Name: "content", TemplateType: "content_analysis", PromptText: "p"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
	if err := s.CreateTemplate(PromptTemplate{ID: "c", Name: "content", TemplateType: "content_analysis", PromptText: "p", Version: 2}); err != nil {
		t.Errorf("second version: %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := clockStore(t)

	if err := s.CreateJob(ExtractionJob{ID: "job-1", DocumentID: "doc-1", Status: "pending"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ExtractionJob{ID: "job-2", DocumentID: "doc-1", Status: "pending"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	status, step, progress := "analyzing", "Analyzing document", 30
	started := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if err := s.UpdateJob("job-2", JobUpdate{Status: &status, CurrentStep: &step, ProgressPercentage: &progress, StartedAt: &started}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := s.GetLatestJob("doc-1")
	if err != nil {
		t.Fatalf("GetLatestJob: %v", err)
	}
	if got.ID != "job-2" || got.Status != "analyzing" || got.ProgressPercentage != 30 {
		t.Errorf("unexpected job: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}

	if err := s.UpdateJob("missing", JobUpdate{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateJob missing err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetLatestJob("doc-none"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLatestJob err = %v, want ErrNotFound", err)
	}
}

func TestRunsAndDimensions(t *testing.T) {
	s := clockStore(t)
	seedDocument(t, s, "doc-1")
	seedChunk(t, s, "chunk-a", "doc-1", 0)
	seedChunk(t, s, "chunk-b", "doc-1", 500)

	for _, id := range []string{"run-1", "run-2"} {
		if err := s.CreateRun(Run{RunID: id, DocumentID: "doc-1", RunName: id, Model: "m", Status: "running"}); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}

	rec := dimension.Record{ID: "dim-1", ChunkRef: "chunk-a", RunID: "run-1", ChunkSummary: dimension.Ptr("summary"), KeyTerms: []string{"a", "b"}}
	if err := s.CreateDimensions(rec); err != nil {
		t.Fatalf("CreateDimensions: %v", err)
	}
	if err := s.CreateDimensions(dimension.Record{ID: "dim-2", ChunkRef: "chunk-a", RunID: "run-1"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate err = %v, want ErrDuplicate", err)
	}
	if err := s.CreateDimensions(dimension.Record{ID: "dim-3", ChunkRef: "chunk-a", RunID: "run-2"}); err != nil {
		t.Fatalf("CreateDimensions run-2: %v", err)
	}

	got, err := s.GetDimensionsByChunkAndRun("chunk-a", "run-1")
	if err != nil {
		t.Fatalf("GetDimensionsByChunkAndRun: %v", err)
	}
	if got.ChunkSummary == nil || *got.ChunkSummary != "summary" || len(got.KeyTerms) != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}

	history, err := s.GetDimensionsByChunk("chunk-a")
	if err != nil {
		t.Fatalf("GetDimensionsByChunk: %v", err)
	}
	if len(history) != 2 || history[0].RunID != "run-1" || history[1].RunID != "run-2" {
		t.Errorf("history = %+v", history)
	}

	runs, err := s.GetRunsForChunk("chunk-b")
	if err != nil {
		t.Fatalf("GetRunsForChunk: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.HasData {
			t.Errorf("run %s should have no data for chunk-b", r.RunID)
		}
	}

	runs, _ = s.GetRunsForChunk("chunk-a")
	if runs[0].RunID != "run-2" || !runs[0].HasData || !runs[1].HasData {
		t.Errorf("chunk-a runs = %+v", runs)
	}

	if _, err := s.GetDimensionsByChunkAndRun("chunk-b", "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRun(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateRun(Run{RunID: "run-1", DocumentID: "doc-1", RunName: "r", Model: "m", Status: "running"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	status := "completed"
	total := 4
	cost := 0.0125
	dur := int64(1800)
	done := time.Now()
	if err := s.UpdateRun("run-1", RunUpdate{Status: &status, TotalDimensions: &total, TotalCostUSD: &cost, TotalDurationMS: &dur, CompletedAt: &done}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != "completed" || got.TotalDimensions != 4 || got.TotalCostUSD != 0.0125 || got.TotalDurationMS != 1800 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if err := s.UpdateRun("run-1", RunUpdate{}); err != nil {
		t.Errorf("empty update: %v", err)
	}
}

func TestAPIResponseLogs(t *testing.T) {
	s := clockStore(t)

	for _, id := range []string{"log-1", "log-2"} {
		if err := s.SaveAPIResponseLog(APIResponseLog{ID: id, RunID: "run-1", ChunkRef: "c", Prompt: "p", Response: "r", InputTokens: 10}); err != nil {
			t.Fatalf("SaveAPIResponseLog: %v", err)
		}
	}
	logs, err := s.ListAPIResponseLogs("run-1")
	if err != nil {
		t.Fatalf("ListAPIResponseLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "log-1" || logs[1].InputTokens != 10 {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEnqueueAndClaimTask(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueTask(Task{ID: "task-1", Type: "extract_document", PayloadJSON: `{"document_id":"d"}`}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	got, err := s.ClaimNextTask([]string{"extract_document"})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextTask returned nil")
	}
	if got.Status != TaskRunning || got.Attempts != 1 || got.MaxAttempts != 1 {
		t.Errorf("unexpected task: %+v", got)
	}

	again, err := s.ClaimNextTask([]string{"extract_document"})
	if err != nil {
		t.Fatalf("second ClaimNextTask: %v", err)
	}
	if again != nil {
		t.Errorf("claimed running task twice: %+v", again)
	}
}

func TestClaimNextTask_RespectRunAfterAndType(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueTask(Task{ID: "later", Type: "extract_document", PayloadJSON: `{}`, RunAfter: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if err := s.EnqueueTask(Task{ID: "gen", Type: "generate_dimensions", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	got, err := s.ClaimNextTask([]string{"extract_document"})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if got != nil {
		t.Errorf("claimed future task %s", got.ID)
	}
	if got, _ := s.ClaimNextTask(nil); got != nil {
		t.Errorf("claimed with no types: %+v", got)
	}
}

func TestFailTaskDoesNotRetry(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueTask(Task{ID: "task-1", Type: "generate_dimensions", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if _, err := s.ClaimNextTask([]string{"generate_dimensions"}); err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if err := s.FailTask("task-1", "model unavailable"); err != nil {
		t.Fatalf("FailTask: %v", err)
	}

	task, err := s.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != TaskFailed || task.LastError != "model unavailable" {
		t.Errorf("unexpected task: %+v", task)
	}
	if got, _ := s.ClaimNextTask([]string{"generate_dimensions"}); got != nil {
		t.Errorf("failed task was claimable again")
	}
	if err := s.CompleteTask("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteTask err = %v, want ErrNotFound", err)
	}
}
