// Package compare diffs the dimension records of one chunk across runs.
package compare

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/kalambet/chunkdim/internal/dimension"
)

// ErrTooFewRuns is returned when fewer than two records are compared.
var ErrTooFewRuns = errors.New("at least two runs are required for comparison")

// Change classifies one field transition between adjacent runs.
type Change string

const (
	Unchanged Change = "unchanged"
	Improved  Change = "improved"
	Degraded  Change = "degraded"
	Neutral   Change = "neutral"
)

// Fields is the comparison set, in display order.
var Fields = []string{
	"chunk_summary_1s", "key_terms", "audience", "intent",
	"tone_voice_tags", "brand_persona_tags", "domain_tags",
	"task_name", "preconditions", "expected_output",
	"claim", "evidence_snippets", "reasoning_sketch", "citations", "factual_confidence_0_1",
	"scenario_type", "problem_context", "solution_action",
	"safety_tags", "coverage_tag", "novelty_tag", "ip_sensitivity", "pii_flag",
	"generation_confidence_precision", "generation_confidence_accuracy",
	"generation_cost_usd", "generation_duration_ms",
	"review_status",
}

// Difference is the value of a field in one run and how it moved from the
// previous run. The first run is always Unchanged.
type Difference struct {
	RunIndex   int    `json:"run_index"`
	RunID      string `json:"run_id"`
	Value      any    `json:"value"`
	Change     Change `json:"change_type"`
	ComparedTo any    `json:"compared_to,omitempty"`
}

// Stats aggregates field changes. Improved, Degraded and Neutral count the
// last transition of each changed field.
type Stats struct {
	TotalFields    int `json:"total_fields"`
	ChangedFields  int `json:"changed_fields"`
	ImprovedFields int `json:"improved_fields"`
	DegradedFields int `json:"degraded_fields"`
	NeutralChanges int `json:"neutral_changes"`
}

// Comparison is the result of Compare.
type Comparison struct {
	Fields      []string                `json:"fields"`
	Stats       Stats                   `json:"stats"`
	Differences map[string][]Difference `json:"differences"`
}

// Compare classifies every comparison field across runs, which must be in
// chronological order and belong to the same chunk.
func Compare(runs []dimension.Record) (Comparison, error) {
	if len(runs) < 2 {
		return Comparison{}, ErrTooFewRuns
	}

	values := make([]map[string]any, len(runs))
	for i, r := range runs {
		v, err := r.Values()
		if err != nil {
			return Comparison{}, fmt.Errorf("reading run %d: %w", i, err)
		}
		values[i] = v
	}

	out := Comparison{
		Fields:      append([]string(nil), Fields...),
		Differences: make(map[string][]Difference, len(Fields)),
	}
	out.Stats.TotalFields = len(Fields)

	for _, field := range Fields {
		diffs := make([]Difference, len(runs))
		changed := false
		for i := range runs {
			d := Difference{RunIndex: i, RunID: runs[i].RunID, Value: values[i][field], Change: Unchanged}
			if i > 0 {
				d.ComparedTo = values[i-1][field]
				d.Change = Classify(field, d.ComparedTo, d.Value)
				if d.Change != Unchanged {
					changed = true
				}
			}
			diffs[i] = d
		}
		out.Differences[field] = diffs

		if !changed {
			continue
		}
		out.Stats.ChangedFields++
		switch diffs[len(diffs)-1].Change {
		case Improved:
			out.Stats.ImprovedFields++
		case Degraded:
			out.Stats.DegradedFields++
		case Neutral:
			out.Stats.NeutralChanges++
		}
	}
	return out, nil
}

// Classify decides how a field moved from oldV to newV.
func Classify(field string, oldV, newV any) Change {
	if reflect.DeepEqual(oldV, newV) {
		return Unchanged
	}
	if oldV == nil {
		return Improved
	}
	if newV == nil {
		return Degraded
	}

	switch {
	case strings.Contains(field, "confidence"):
		return numeric(oldV, newV, true)
	case strings.Contains(field, "cost"), strings.Contains(field, "duration"):
		return numeric(oldV, newV, false)
	}
	return Neutral
}

func numeric(oldV, newV any, higherIsBetter bool) Change {
	o, n := toNumber(oldV), toNumber(newV)
	switch {
	case n == o:
		return Unchanged
	case (n > o) == higherIsBetter:
		return Improved
	default:
		return Degraded
	}
}

func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
