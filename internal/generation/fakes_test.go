package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/storage"
)

type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]storage.Document
	categories map[string]string
	chunks     []storage.Chunk
	templates  []storage.PromptTemplate
	runs       map[string]storage.Run
	records    []dimension.Record
	tasks      []storage.Task
	saveErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:       make(map[string]storage.Document),
		categories: make(map[string]string),
		runs:       make(map[string]storage.Run),
	}
}

func (f *fakeStore) GetDocument(id string) (storage.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return storage.Document{}, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetPrimaryCategory(id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories[id], nil
}

func (f *fakeStore) GetChunksByDocument(documentID string) ([]storage.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Chunk
	for _, c := range f.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetActiveTemplates(chunkType string) ([]storage.PromptTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.PromptTemplate
	for _, t := range f.templates {
		if t.IsActive && t.AppliesTo(chunkType) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRun(r storage.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[r.RunID] = r
	return nil
}

func (f *fakeStore) UpdateRun(runID string, u storage.RunUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.TotalChunks != nil {
		r.TotalChunks = *u.TotalChunks
	}
	if u.TotalDimensions != nil {
		r.TotalDimensions = *u.TotalDimensions
	}
	if u.TotalCostUSD != nil {
		r.TotalCostUSD = *u.TotalCostUSD
	}
	if u.TotalDurationMS != nil {
		r.TotalDurationMS = *u.TotalDurationMS
	}
	if u.ErrorMessage != nil {
		r.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		r.CompletedAt = u.CompletedAt
	}
	f.runs[runID] = r
	return nil
}

func (f *fakeStore) CreateDimensions(rec dimension.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, r := range f.records {
		if r.ChunkRef == rec.ChunkRef && r.RunID == rec.RunID {
			return storage.ErrDuplicate
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) EnqueueTask(t storage.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeStore) run(id string) storage.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func (f *fakeStore) recordsFor(runID string) []dimension.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dimension.Record
	for _, r := range f.records {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) record(chunkRef, runID string) (dimension.Record, bool) {
	for _, r := range f.recordsFor(runID) {
		if r.ChunkRef == chunkRef {
			return r, true
		}
	}
	return dimension.Record{}, false
}

// scriptedCompleter answers by the "TYPE:<template type>" marker each test
// template carries in its prompt.
type scriptedCompleter struct {
	mu        sync.Mutex
	replies   map[string]string
	failOn    string
	delay     time.Duration
	requests  []llm.Request
	spans     map[string][2]time.Time
	chunkMark func(prompt string) string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	start := time.Now()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.chunkMark != nil {
		if s.spans == nil {
			s.spans = make(map[string][2]time.Time)
		}
		s.spans[s.chunkMark(req.Prompt)] = [2]time.Time{start, time.Now()}
	}
	if s.failOn != "" && strings.Contains(req.Prompt, s.failOn) {
		return llm.Completion{}, errors.New("upstream timeout")
	}
	for marker, reply := range s.replies {
		if strings.Contains(req.Prompt, "TYPE:"+marker) {
			return llm.Completion{Text: reply, Model: req.Model, InputTokens: 10, OutputTokens: 5}, nil
		}
	}
	return llm.Completion{Text: "{}", Model: req.Model}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	logs []storage.APIResponseLog
}

func (r *recordingSink) Record(l storage.APIResponseLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}

func testTemplate(id, templateType string, types ...string) storage.PromptTemplate {
	t := storage.PromptTemplate{
		ID:           id,
		Name:         id,
		TemplateType: templateType,
		PromptText:   fmt.Sprintf("TYPE:%s doc={doc_title} cat={primary_category} type={chunk_type}\n{chunk_text}", templateType),
		IsActive:     true,
	}
	if len(types) > 0 {
		t.ApplicableChunkTypes = types
	}
	return t
}

func testChunk(id, docID, chunkType string, seq int) storage.Chunk {
	return storage.Chunk{
		ID:             id,
		ChunkID:        fmt.Sprintf("%s#C%03d", docID, seq),
		DocumentID:     docID,
		ChunkType:      chunkType,
		SectionHeading: "Section 1",
		CharStart:      seq * 1000,
		CharEnd:        seq*1000 + 600,
		PageStart:      1,
		PageEnd:        1,
		TokenCount:     150,
		ChunkHandle:    fmt.Sprintf("section-1-%d", seq),
		ChunkText:      fmt.Sprintf("chunk body %d", seq),
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func testConfig() Config {
	cfg := DefaultConfig("test-model")
	cfg.Variance = func() float64 { return 0.5 }
	cfg.NewID = sequentialIDs()
	return cfg
}
