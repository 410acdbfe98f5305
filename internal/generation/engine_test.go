package generation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/storage"
)

const contentReply = "```json\n" + `{"chunk_summary_1s":"Explains the setup.","key_terms":"setup, install | config","audience":"operators","intent":"instruct","tone_voice_tags":["plain"],"brand_persona_tags":[],"domain_tags":["ops"]}` + "\n```"

const cerReply = `{"claim":"Backups prevent loss.","evidence_snippets":["nightly copies"],"reasoning_sketch":"cause then effect","citations":"[\"ref-1\",\"ref-2\"]","factual_confidence_0_1":0.8}`

func seededStore() *fakeStore {
	s := newFakeStore()
	s.docs["doc-1"] = storage.Document{ID: "doc-1", Title: "Ops Handbook", Author: "R. Lee", DocVersion: "2", CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	s.categories["doc-1"] = "Operations"
	s.chunks = []storage.Chunk{
		testChunk("c1", "doc-1", "CER", 1),
		testChunk("c2", "doc-1", "Chapter_Sequential", 2),
		testChunk("c3", "doc-1", "CER", 3),
		testChunk("c4", "doc-1", "Instructional_Unit", 4),
	}
	s.templates = []storage.PromptTemplate{
		testTemplate("tpl-content", ContentAnalysis),
		testTemplate("tpl-cer", CERAnalysis, "CER"),
	}
	return s
}

func TestGenerateForDocument(t *testing.T) {
	store := seededStore()
	client := &scriptedCompleter{replies: map[string]string{ContentAnalysis: contentReply, CERAnalysis: cerReply}}
	sink := &recordingSink{}
	e := New(store, client, testConfig(), Options{Audit: sink})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1", UserID: "u-1"})
	require.NoError(t, err)

	run := store.run(runID)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 4, run.TotalChunks)
	assert.Equal(t, 4*dimension.Total, run.TotalDimensions)
	assert.True(t, strings.HasPrefix(run.RunName, "Dimension Generation - "))
	assert.Equal(t, "test-model", run.Model)
	assert.NotNil(t, run.CompletedAt)
	assert.Greater(t, run.TotalCostUSD, 0.0)

	recs := store.recordsFor(runID)
	require.Len(t, recs, 4)

	rec, ok := store.record("c1", runID)
	require.True(t, ok)
	assert.Equal(t, "doc-1", *rec.DocID)
	assert.Equal(t, "Ops Handbook", *rec.DocTitle)
	assert.Equal(t, "Operations", *rec.PrimaryCategory)
	assert.Equal(t, "R. Lee", *rec.Author)
	assert.Nil(t, rec.SourceURL)
	assert.Equal(t, "2026-01-02T00:00:00Z", *rec.DocDate)
	assert.Equal(t, "doc-1#C001", *rec.ChunkID)
	assert.Equal(t, "CER", *rec.ChunkType)
	assert.Equal(t, 1000, *rec.CharStart)
	assert.Equal(t, dimension.SplitFor("c1"), *rec.DataSplit)
	assert.Equal(t, "unreviewed", *rec.ReviewStatus)
	assert.False(t, *rec.PIIFlag)
	assert.True(t, *rec.IncludeInTraining)
	assert.Equal(t, "auto", *rec.LabelSource)
	assert.Equal(t, "test-model", *rec.LabelModel)

	assert.Equal(t, "Explains the setup.", *rec.ChunkSummary)
	assert.Equal(t, []string{"setup", "install", "config"}, rec.KeyTerms)
	assert.Equal(t, "Backups prevent loss.", *rec.Claim)
	assert.Equal(t, []string{"ref-1", "ref-2"}, rec.Citations)
	assert.InDelta(t, 0.8, *rec.FactualConfidence, 1e-9)

	// CER expects 10 fields; summary, claim, evidence, reasoning, citations,
	// factual confidence and audience are populated.
	require.NotNil(t, rec.PrecisionConfidence)
	assert.Equal(t, 7, *rec.PrecisionConfidence)
	assert.Equal(t, *rec.PrecisionConfidence, *rec.AccuracyConfidence)
	assert.Greater(t, *rec.CostUSD, 0.0)

	// The chapter chunk only gets the content template.
	chapter, _ := store.record("c2", runID)
	assert.Nil(t, chapter.Claim)
	assert.Equal(t, "Explains the setup.", *chapter.ChunkSummary)

	// 4 content calls + 2 CER calls, all audited.
	assert.Len(t, client.requests, 6)
	assert.Len(t, sink.logs, 6)
	for _, l := range sink.logs {
		assert.Equal(t, runID, l.RunID)
		assert.Empty(t, l.ParseError)
		assert.NotEqual(t, "{}", l.ParsedJSON)
	}
}

func TestPromptPlaceholdersAndDefaults(t *testing.T) {
	store := seededStore()
	store.chunks = store.chunks[:1]
	client := &scriptedCompleter{}
	e := New(store, client, testConfig(), Options{})

	_, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1", TemplateIDs: []string{"tpl-content"}})
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "TYPE:content_analysis doc=Ops Handbook cat=Operations type=CER\nchunk body 1", req.Prompt)
	assert.Equal(t, 0.5, req.Temperature)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.Equal(t, "test-model", req.Model)
}

func TestParamsOverride(t *testing.T) {
	store := seededStore()
	store.chunks = store.chunks[:1]
	client := &scriptedCompleter{}
	e := New(store, client, testConfig(), Options{})

	temp := 0.1
	runID, err := e.GenerateForDocument(context.Background(), Request{
		DocumentID: "doc-1",
		Params:     &Params{Model: "other-model", Temperature: &temp},
	})
	require.NoError(t, err)

	for _, req := range client.requests {
		assert.Equal(t, "other-model", req.Model)
		assert.Equal(t, 0.1, req.Temperature)
	}
	assert.Equal(t, "other-model", store.run(runID).Model)
}

func TestParseFailureYieldsEmptyContribution(t *testing.T) {
	store := seededStore()
	store.chunks = store.chunks[:1]
	client := &scriptedCompleter{replies: map[string]string{ContentAnalysis: "I cannot comply.", CERAnalysis: cerReply}}
	sink := &recordingSink{}
	e := New(store, client, testConfig(), Options{Audit: sink})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.NoError(t, err)

	rec, ok := store.record("c1", runID)
	require.True(t, ok)
	assert.Nil(t, rec.ChunkSummary)
	assert.Equal(t, "Backups prevent loss.", *rec.Claim)

	require.Len(t, sink.logs, 2)
	assert.NotEmpty(t, sink.logs[0].ParseError)
	assert.Equal(t, "I cannot comply.", sink.logs[0].Response)
	assert.Empty(t, sink.logs[1].ParseError)
}

func TestModelFailureFailsRun(t *testing.T) {
	store := seededStore()
	client := &scriptedCompleter{failOn: "chunk body 3"}
	sink := &recordingSink{}
	e := New(store, client, testConfig(), Options{Audit: sink})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.Error(t, err)
	require.NotEmpty(t, runID)

	run := store.run(runID)
	assert.Equal(t, RunFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "upstream timeout")
	assert.NotNil(t, run.CompletedAt)

	// Chunks 1 and 2 of the failing batch still settle; batch two never starts.
	recs := store.recordsFor(runID)
	assert.Len(t, recs, 2)
	_, ok := store.record("c4", runID)
	assert.False(t, ok)

	var failed int
	for _, l := range sink.logs {
		if strings.HasPrefix(l.ParseError, "model call failed") {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestPersistenceFailureFailsRun(t *testing.T) {
	store := seededStore()
	store.saveErr = assert.AnError
	e := New(store, &scriptedCompleter{}, testConfig(), Options{})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, RunFailed, store.run(runID).Status)
}

func TestMissingDocumentFailsRun(t *testing.T) {
	store := seededStore()
	e := New(store, &scriptedCompleter{}, testConfig(), Options{})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "nope"})
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, RunFailed, store.run(runID).Status)
}

func TestTargetedRegeneration(t *testing.T) {
	store := seededStore()
	client := &scriptedCompleter{replies: map[string]string{ContentAnalysis: contentReply, CERAnalysis: cerReply}}
	e := New(store, client, testConfig(), Options{})

	first, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.NoError(t, err)
	before, _ := store.record("c3", first)
	beforeJSON, _ := json.Marshal(before)

	second, err := e.GenerateForDocument(context.Background(), Request{
		DocumentID:  "doc-1",
		ChunkIDs:    []string{"c3"},
		TemplateIDs: []string{"tpl-cer"},
	})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	recs := store.recordsFor(second)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "c3", rec.ChunkRef)
	assert.Equal(t, "Backups prevent loss.", *rec.Claim)
	assert.Nil(t, rec.ChunkSummary)
	assert.Nil(t, rec.KeyTerms)
	assert.Equal(t, "Ops Handbook", *rec.DocTitle)
	assert.Equal(t, "unreviewed", *rec.ReviewStatus)
	assert.Equal(t, *before.DataSplit, *rec.DataSplit)

	after, _ := store.record("c3", first)
	afterJSON, _ := json.Marshal(after)
	assert.JSONEq(t, string(beforeJSON), string(afterJSON))
	assert.Equal(t, 1, store.run(second).TotalChunks)
	assert.Equal(t, dimension.Total, store.run(second).TotalDimensions)
}

func TestChunkFilterAcceptsChunkID(t *testing.T) {
	store := seededStore()
	e := New(store, &scriptedCompleter{}, testConfig(), Options{})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1", ChunkIDs: []string{"doc-1#C002"}})
	require.NoError(t, err)

	recs := store.recordsFor(runID)
	require.Len(t, recs, 1)
	assert.Equal(t, "c2", recs[0].ChunkRef)
}

func TestBatchBoundary(t *testing.T) {
	store := seededStore()
	store.templates = store.templates[:1]
	client := &scriptedCompleter{
		delay: 30 * time.Millisecond,
		chunkMark: func(prompt string) string {
			return prompt[strings.LastIndex(prompt, "\n")+1:]
		},
	}
	e := New(store, client, testConfig(), Options{})

	_, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.NoError(t, err)

	require.Len(t, client.spans, 4)
	fourth := client.spans["chunk body 4"]
	for _, body := range []string{"chunk body 1", "chunk body 2", "chunk body 3"} {
		assert.False(t, fourth[0].Before(client.spans[body][1]), "batch two started before %s finished", body)
	}
}

func TestAccuracyVarianceIsClamped(t *testing.T) {
	store := seededStore()
	store.chunks = store.chunks[:1]
	store.templates = nil
	cfg := testConfig()
	cfg.Variance = func() float64 { return 0.05 }
	e := New(store, &scriptedCompleter{}, cfg, Options{})

	runID, err := e.GenerateForDocument(context.Background(), Request{DocumentID: "doc-1"})
	require.NoError(t, err)

	rec, _ := store.record("c1", runID)
	assert.Equal(t, 1, *rec.PrecisionConfidence)
	assert.Equal(t, 1, *rec.AccuracyConfidence)
	assert.Equal(t, 0.0, *rec.CostUSD)
}

func TestStartQueuesRun(t *testing.T) {
	store := seededStore()
	client := &scriptedCompleter{}
	e := New(store, client, testConfig(), Options{})

	run, err := e.Start(store, Request{DocumentID: "doc-1", ChunkIDs: []string{"c1"}})
	require.NoError(t, err)
	assert.Equal(t, RunRunning, store.run(run.RunID).Status)
	assert.Empty(t, client.requests)

	require.Len(t, store.tasks, 1)
	task := store.tasks[0]
	assert.Equal(t, TaskType, task.Type)

	require.NoError(t, e.HandleTask(context.Background(), task.PayloadJSON))
	assert.Equal(t, RunCompleted, store.run(run.RunID).Status)
	assert.Len(t, store.recordsFor(run.RunID), 1)
}

func TestStartRequiresDocument(t *testing.T) {
	e := New(newFakeStore(), &scriptedCompleter{}, testConfig(), Options{})
	_, err := e.Start(newFakeStore(), Request{})
	assert.Error(t, err)
}
