// Package chunker identifies typed chunk candidates in a document with one
// language model call.
package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/llm"
	"github.com/kalambet/chunkdim/internal/textstat"
)

const (
	// MinChunkChars is the smallest span kept as a chunk.
	MinChunkChars = 100
	// ExpandedChunkChars is the window a too-small span is widened to.
	ExpandedChunkChars = 500

	defaultTemperature = 0.3
	defaultTimeout     = 240 * time.Second
	defaultConfidence  = 0.5
	defaultReasoning   = "No reasoning provided"
)

// Caps is the maximum number of surviving candidates per chunk type.
var Caps = map[dimension.ChunkType]int{
	dimension.ChapterSequential: 15,
	dimension.InstructionalUnit: 8,
	dimension.CER:               12,
	dimension.ExampleScenario:   8,
}

// Completer is the model call the identifier depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Candidate is a typed span of the document. Start and End are half-open
// byte offsets into the content.
type Candidate struct {
	Type           dimension.ChunkType `json:"type"`
	Confidence     float64             `json:"confidence"`
	Start          int                 `json:"start_index"`
	End            int                 `json:"end_index"`
	SectionHeading string              `json:"section_heading,omitempty"`
	Reasoning      string              `json:"reasoning"`
}

// Observer is notified after each model call.
type Observer interface {
	ObserveModelCall(operation string, c llm.Completion, d time.Duration, err error)
}

// Options configures an Identifier.
type Options struct {
	Model     string
	MaxTokens int
	// Timeout is the hard deadline of the model call.
	Timeout  time.Duration
	Logger   *slog.Logger
	Observer Observer
}

// Identifier turns raw document text into chunk candidates.
type Identifier struct {
	client    Completer
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
	observer  Observer
}

// New creates an Identifier using the given model client.
func New(client Completer, opts Options) *Identifier {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Identifier{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		observer:  opts.Observer,
	}
}

// ExtractCandidates asks the model for chunk boundaries and returns the
// validated, capped candidates ordered by position. A model failure is
// returned as an error; an unusable reply yields an empty result.
func (id *Identifier) ExtractCandidates(ctx context.Context, title, content, category string) ([]Candidate, error) {
	stats := textstat.Analyze(content)
	prompt, truncated := id.prompt(title, content, category, stats)
	if truncated {
		id.logger.Warn("document truncated for candidate extraction", "title", title, "chars", stats.Chars, "limit", MaxPromptChars)
	}

	ctx, cancel := context.WithTimeout(ctx, id.timeout)
	defer cancel()

	start := time.Now()
	out, err := id.client.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Model:       id.model,
		Temperature: defaultTemperature,
		MaxTokens:   id.maxTokens,
	})
	if id.observer != nil {
		id.observer.ObserveModelCall("extract_candidates", out, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("candidate extraction failed: %w", err)
	}

	items, err := parseResponse(out.Text)
	if err != nil {
		id.logger.Warn("unusable candidate extraction response", "title", title, "error", err, "response", preview(out.Text, 500))
		return []Candidate{}, nil
	}

	candidates := toCandidates(items, content, stats)
	capped := applyCaps(candidates)
	id.logger.Info("chunk candidates identified", "title", title, "parsed", len(items), "valid", len(candidates), "kept", len(capped))
	return capped, nil
}

func (id *Identifier) prompt(title, content, category string, stats textstat.Stats) (string, bool) {
	body, truncated := Truncate(content)
	return BuildPrompt(PromptInput{
		Title:     title,
		Category:  category,
		Content:   body,
		Truncated: truncated,
		Lines:     stats.Lines,
		Stats:     stats,
	}), truncated
}

type rawCandidate struct {
	ChunkType      string   `json:"chunk_type"`
	Confidence     *float64 `json:"confidence"`
	StartLine      int      `json:"start_line"`
	EndLine        int      `json:"end_line"`
	SectionHeading string   `json:"section_heading"`
	Reasoning      string   `json:"reasoning"`
}

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	arrayRe = regexp.MustCompile(`(?s)\[.*\]`)
)

// parseResponse pulls the JSON array out of a reply that may be wrapped in a
// markdown fence or surrounded by prose.
func parseResponse(text string) ([]rawCandidate, error) {
	body := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		body = strings.TrimSpace(m[1])
	}
	arr := arrayRe.FindString(body)
	if arr == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var items []rawCandidate
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("decoding candidates: %w", err)
	}
	return items, nil
}

// toCandidates converts 1-indexed inclusive line ranges into byte offsets.
// Lines are split on "\n" only.
func toCandidates(items []rawCandidate, content string, stats textstat.Stats) []Candidate {
	lines := strings.Split(content, "\n")
	// offsets[i] is the byte offset at which line i starts.
	offsets := make([]int, len(lines)+1)
	for i, l := range lines {
		offsets[i+1] = offsets[i] + len(l) + 1
	}

	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		ct := dimension.ChunkType(it.ChunkType)
		if !ct.Valid() {
			continue
		}

		startLine := max(0, it.StartLine-1)
		endLine := it.EndLine - 1
		if it.EndLine == 0 {
			endLine = startLine
		}
		startLine = min(startLine, len(lines)-1)
		endLine = min(endLine, len(lines)-1)

		start := offsets[startLine]
		end := start
		if endLine >= startLine {
			end = offsets[endLine+1]
		}
		if end-start < MinChunkChars {
			end = start + ExpandedChunkChars
		}
		start = max(0, min(start, len(content)))
		end = textstat.SnapToRune(content, min(end, len(content)))

		if end <= start || end-start < MinChunkChars {
			continue
		}

		c := Candidate{
			Type:           ct,
			Confidence:     defaultConfidence,
			Start:          start,
			End:            end,
			SectionHeading: strings.TrimSpace(it.SectionHeading),
			Reasoning:      strings.TrimSpace(it.Reasoning),
		}
		if it.Confidence != nil && *it.Confidence > 0 {
			c.Confidence = min(1, *it.Confidence)
		}
		if c.Reasoning == "" {
			c.Reasoning = defaultReasoning
		}
		if c.SectionHeading == "" {
			if h, ok := stats.NearestHeading(startLine + 1); ok {
				c.SectionHeading = h.Text
			}
		}
		out = append(out, c)
	}
	return out
}

// applyCaps keeps the most confident candidates of each type and returns
// them ordered by start offset.
func applyCaps(candidates []Candidate) []Candidate {
	byType := make(map[dimension.ChunkType][]Candidate)
	for _, c := range candidates {
		byType[c.Type] = append(byType[c.Type], c)
	}

	var out []Candidate
	for _, ct := range dimension.ChunkTypes {
		group := byType[ct]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		if limit := Caps[ct]; len(group) > limit {
			group = group[:limit]
		}
		out = append(out, group...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
