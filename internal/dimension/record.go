package dimension

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChunkType is the structural role assigned to a chunk.
type ChunkType string

const (
	ChapterSequential ChunkType = "Chapter_Sequential"
	InstructionalUnit ChunkType = "Instructional_Unit"
	CER               ChunkType = "CER"
	ExampleScenario   ChunkType = "Example_Scenario"
)

// ChunkTypes lists the supported chunk types.
var ChunkTypes = []ChunkType{ChapterSequential, InstructionalUnit, CER, ExampleScenario}

// Valid reports whether t is one of the supported chunk types.
func (t ChunkType) Valid() bool {
	for _, c := range ChunkTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Record is the dimension matrix of one chunk within one run. Nil fields are
// unpopulated and serialize as null.
type Record struct {
	ID          string    `json:"id"`
	ChunkRef    string    `json:"chunk_ref"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	DocID           *string `json:"doc_id"`
	DocTitle        *string `json:"doc_title"`
	DocVersion      *string `json:"doc_version"`
	SourceType      *string `json:"source_type"`
	SourceURL       *string `json:"source_url"`
	Author          *string `json:"author"`
	DocDate         *string `json:"doc_date"`
	PrimaryCategory *string `json:"primary_category"`

	ChunkID        *string `json:"chunk_id"`
	SectionHeading *string `json:"section_heading"`
	PageStart      *int    `json:"page_start"`
	PageEnd        *int    `json:"page_end"`
	CharStart      *int    `json:"char_start"`
	CharEnd        *int    `json:"char_end"`
	TokenCount     *int    `json:"token_count"`
	OverlapTokens  *int    `json:"overlap_tokens"`
	ChunkHandle    *string `json:"chunk_handle"`
	EmbeddingID    *string `json:"embedding_id"`
	VectorChecksum *string `json:"vector_checksum"`
	LabelSource    *string `json:"label_source_auto_manual_mixed"`
	LabelModel     *string `json:"label_model"`
	LabeledBy      *string `json:"labeled_by"`
	LabelTimestamp *string `json:"label_timestamp_iso"`
	ReviewStatus   *string `json:"review_status"`
	DataSplit      *string `json:"data_split_train_dev_test"`

	ChunkType        *string  `json:"chunk_type"`
	ChunkSummary     *string  `json:"chunk_summary_1s"`
	KeyTerms         []string `json:"key_terms"`
	Audience         *string  `json:"audience"`
	Intent           *string  `json:"intent"`
	ToneVoiceTags    []string `json:"tone_voice_tags"`
	BrandPersonaTags []string `json:"brand_persona_tags"`
	DomainTags       []string `json:"domain_tags"`

	TaskName             *string         `json:"task_name"`
	Preconditions        *string         `json:"preconditions"`
	Inputs               *string         `json:"inputs"`
	StepsJSON            json.RawMessage `json:"steps_json"`
	ExpectedOutput       *string         `json:"expected_output"`
	WarningsFailureModes *string         `json:"warnings_failure_modes"`

	Claim             *string  `json:"claim"`
	EvidenceSnippets  []string `json:"evidence_snippets"`
	ReasoningSketch   *string  `json:"reasoning_sketch"`
	Citations         []string `json:"citations"`
	FactualConfidence *float64 `json:"factual_confidence_0_1"`

	ScenarioType   *string `json:"scenario_type"`
	ProblemContext *string `json:"problem_context"`
	SolutionAction *string `json:"solution_action"`
	OutcomeMetrics *string `json:"outcome_metrics"`
	StyleNotes     *string `json:"style_notes"`

	PromptCandidate *string `json:"prompt_candidate"`
	TargetAnswer    *string `json:"target_answer"`
	StyleDirectives *string `json:"style_directives"`

	SafetyTags      []string `json:"safety_tags"`
	CoverageTag     *string  `json:"coverage_tag"`
	NoveltyTag      *string  `json:"novelty_tag"`
	IPSensitivity   *string  `json:"ip_sensitivity"`
	PIIFlag         *bool    `json:"pii_flag"`
	ComplianceFlags []string `json:"compliance_flags"`

	IncludeInTraining *bool   `json:"include_in_training_yn"`
	AugmentationNotes *string `json:"augmentation_notes"`

	PrecisionConfidence *int     `json:"generation_confidence_precision"`
	AccuracyConfidence  *int     `json:"generation_confidence_accuracy"`
	CostUSD             *float64 `json:"generation_cost_usd"`
	DurationMS          *int64   `json:"generation_duration_ms"`
}

// Values returns the record as a field-name keyed map, the same shape it has
// on the wire. Numbers decode as float64.
func (r Record) Values() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling dimensions: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling dimensions: %w", err)
	}
	return m, nil
}

// Value returns one named value from the record, or nil when absent.
func (r Record) Value(name string) any {
	m, err := r.Values()
	if err != nil {
		return nil
	}
	return m[name]
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
