package dimension

import (
	"math"
	"strings"
)

const (
	// MinConfidence and MaxConfidence bound both meta-confidence scores.
	MinConfidence = 1
	MaxConfidence = 10

	// KnownThreshold separates well-understood fields from ones that need review.
	KnownThreshold = 8
)

// ExpectedFields lists, per chunk type, the ten fields a complete generation
// is expected to populate. Precision is scored against this table.
var ExpectedFields = map[ChunkType][]string{
	ChapterSequential: {
		"chunk_summary_1s", "key_terms", "audience", "intent", "tone_voice_tags",
		"brand_persona_tags", "domain_tags", "coverage_tag", "novelty_tag", "ip_sensitivity",
	},
	InstructionalUnit: {
		"chunk_summary_1s", "key_terms", "task_name", "preconditions", "inputs",
		"steps_json", "expected_output", "warnings_failure_modes", "audience", "coverage_tag",
	},
	CER: {
		"chunk_summary_1s", "claim", "evidence_snippets", "reasoning_sketch", "citations",
		"factual_confidence_0_1", "audience", "coverage_tag", "novelty_tag", "ip_sensitivity",
	},
	ExampleScenario: {
		"chunk_summary_1s", "scenario_type", "problem_context", "solution_action", "outcome_metrics",
		"style_notes", "audience", "key_terms", "coverage_tag", "novelty_tag",
	},
}

// Populated reports whether v counts as a meaningful value. Nil, blank
// strings, empty arrays and empty objects do not.
func Populated(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// ConfidenceFor returns the precision and accuracy confidence of one field.
// Prior and mechanical fields are always (10, 10). AI fields report the
// record's stored scores, or 0 when the record has none. Unknown field names
// report (0, 0).
func ConfidenceFor(name string, rec Record) (precision, accuracy int) {
	f, ok := Lookup(name)
	if !ok {
		return 0, 0
	}
	if f.Category != AIGenerated {
		return MaxConfidence, MaxConfidence
	}
	if rec.PrecisionConfidence != nil {
		precision = *rec.PrecisionConfidence
	}
	if rec.AccuracyConfidence != nil {
		accuracy = *rec.AccuracyConfidence
	}
	return precision, accuracy
}

// PopulatedCount counts registry fields with a meaningful value.
func PopulatedCount(rec Record) int {
	values, err := rec.Values()
	if err != nil {
		return 0
	}
	n := 0
	for _, f := range registry {
		if Populated(values[f.Name]) {
			n++
		}
	}
	return n
}

// PopulatedPercentage is the rounded share of all 60 fields that are populated.
func PopulatedPercentage(rec Record) int {
	return int(math.Round(float64(PopulatedCount(rec)) / Total * 100))
}

// AverageConfidence averages ConfidenceFor over the AI-generated fields only,
// rounded to one decimal.
func AverageConfidence(rec Record) (precision, accuracy float64) {
	var sumP, sumA, n int
	for _, f := range registry {
		if f.Category != AIGenerated {
			continue
		}
		p, a := ConfidenceFor(f.Name, rec)
		sumP += p
		sumA += a
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return round1(float64(sumP) / float64(n)), round1(float64(sumA) / float64(n))
}

// PrecisionScore scores how many of the chunk type's expected fields are
// populated, on a 1..10 scale.
func PrecisionScore(t ChunkType, rec Record) int {
	expected := ExpectedFields[t]
	if len(expected) == 0 {
		return MinConfidence
	}
	values, err := rec.Values()
	if err != nil {
		return MinConfidence
	}
	n := 0
	for _, name := range expected {
		if Populated(values[name]) {
			n++
		}
	}
	return clamp(int(math.Round(float64(n)/float64(len(expected))*10)), MinConfidence, MaxConfidence)
}

// Variance maps a uniform draw in [0,1) onto the provisional accuracy offset:
// -2 (10%), -1 (15%), 0 (40%), +1 (25%), +2 (10%).
func Variance(r float64) int {
	switch {
	case r < 0.1:
		return -2
	case r < 0.25:
		return -1
	case r < 0.65:
		return 0
	case r < 0.9:
		return 1
	default:
		return 2
	}
}

// AccuracyScore offsets precision by the variance drawn from r, clamped to 1..10.
func AccuracyScore(precision int, r float64) int {
	return clamp(precision+Variance(r), MinConfidence, MaxConfidence)
}

// Row is one field of a validation view.
type Row struct {
	Field
	Value     any  `json:"value"`
	Populated bool `json:"populated"`
	Precision int  `json:"precision_confidence"`
	Accuracy  int  `json:"accuracy_confidence"`
}

// Validation is the per-field breakdown of a record with its aggregates.
type Validation struct {
	RecordID            string  `json:"record_id"`
	RunID               string  `json:"run_id"`
	Rows                []Row   `json:"rows"`
	PopulatedCount      int     `json:"populated_count"`
	PopulatedPercentage int     `json:"populated_percentage"`
	AveragePrecision    float64 `json:"average_precision"`
	AverageAccuracy     float64 `json:"average_accuracy"`
}

// Validate builds the validation view of rec.
func Validate(rec Record) (Validation, error) {
	values, err := rec.Values()
	if err != nil {
		return Validation{}, err
	}
	v := Validation{RecordID: rec.ID, RunID: rec.RunID}
	for _, f := range Fields() {
		p, a := ConfidenceFor(f.Name, rec)
		row := Row{Field: f, Value: values[f.Name], Populated: Populated(values[f.Name]), Precision: p, Accuracy: a}
		if row.Populated {
			v.PopulatedCount++
		}
		v.Rows = append(v.Rows, row)
	}
	v.PopulatedPercentage = int(math.Round(float64(v.PopulatedCount) / Total * 100))
	v.AveragePrecision, v.AverageAccuracy = AverageConfidence(rec)
	return v, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
