package generation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/chunkdim/internal/dimension"
)

// Template types understood by the response mapper.
const (
	ContentAnalysis        = "content_analysis"
	TaskExtraction         = "task_extraction"
	CERAnalysis            = "cer_analysis"
	ScenarioExtraction     = "scenario_extraction"
	TrainingPairGeneration = "training_pair_generation"
	RiskAssessment         = "risk_assessment"
)

// TemplateTypes lists the template types in their canonical order.
var TemplateTypes = []string{
	ContentAnalysis, TaskExtraction, CERAnalysis,
	ScenarioExtraction, TrainingPairGeneration, RiskAssessment,
}

// Placeholders are the values substituted into a template's prompt text.
type Placeholders struct {
	ChunkType       string
	DocTitle        string
	PrimaryCategory string
	ChunkText       string
}

// RenderPrompt substitutes {chunk_type}, {doc_title}, {primary_category} and
// {chunk_text}. Substituted values are not rescanned for placeholders.
func RenderPrompt(text string, p Placeholders) string {
	return strings.NewReplacer(
		"{chunk_type}", p.ChunkType,
		"{doc_title}", p.DocTitle,
		"{primary_category}", p.PrimaryCategory,
		"{chunk_text}", p.ChunkText,
	).Replace(text)
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\\n?")
	fenceClose = regexp.MustCompile("\\n?```\\s*$")
)

// StripFence removes a markdown code fence wrapped around a reply.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseSubset decodes a template reply and maps it onto the subset for the
// template type. An unknown template type maps to nil without error.
func ParseSubset(templateType, text string) (dimension.Subset, error) {
	var resp map[string]any
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", templateType, err)
	}
	return MapResponse(templateType, resp), nil
}

// MapResponse picks the fields of one template type out of a decoded reply.
// List fields are coerced with dimension.CoerceToStringList.
func MapResponse(templateType string, resp map[string]any) dimension.Subset {
	switch templateType {
	case ContentAnalysis:
		return dimension.ContentFields{
			ChunkSummary:     dimension.CoerceString(resp["chunk_summary_1s"]),
			KeyTerms:         dimension.CoerceToStringList(resp["key_terms"]),
			Audience:         dimension.CoerceString(resp["audience"]),
			Intent:           dimension.CoerceString(resp["intent"]),
			ToneVoiceTags:    dimension.CoerceToStringList(resp["tone_voice_tags"]),
			BrandPersonaTags: dimension.CoerceToStringList(resp["brand_persona_tags"]),
			DomainTags:       dimension.CoerceToStringList(resp["domain_tags"]),
		}
	case TaskExtraction:
		return dimension.TaskFields{
			TaskName:             dimension.CoerceString(resp["task_name"]),
			Preconditions:        dimension.CoerceString(resp["preconditions"]),
			Inputs:               dimension.CoerceString(resp["inputs"]),
			StepsJSON:            dimension.CoerceJSON(resp["steps_json"]),
			ExpectedOutput:       dimension.CoerceString(resp["expected_output"]),
			WarningsFailureModes: dimension.CoerceString(resp["warnings_failure_modes"]),
		}
	case CERAnalysis:
		return dimension.CERFields{
			Claim:             dimension.CoerceString(resp["claim"]),
			EvidenceSnippets:  dimension.CoerceToStringList(resp["evidence_snippets"]),
			ReasoningSketch:   dimension.CoerceString(resp["reasoning_sketch"]),
			Citations:         dimension.CoerceToStringList(resp["citations"]),
			FactualConfidence: dimension.CoerceFloat(resp["factual_confidence_0_1"]),
		}
	case ScenarioExtraction:
		return dimension.ScenarioFields{
			ScenarioType:   dimension.CoerceString(resp["scenario_type"]),
			ProblemContext: dimension.CoerceString(resp["problem_context"]),
			SolutionAction: dimension.CoerceString(resp["solution_action"]),
			OutcomeMetrics: dimension.CoerceString(resp["outcome_metrics"]),
			StyleNotes:     dimension.CoerceString(resp["style_notes"]),
		}
	case TrainingPairGeneration:
		return dimension.TrainingFields{
			PromptCandidate: dimension.CoerceString(resp["prompt_candidate"]),
			TargetAnswer:    dimension.CoerceString(resp["target_answer"]),
			StyleDirectives: dimension.CoerceString(resp["style_directives"]),
		}
	case RiskAssessment:
		return dimension.RiskFields{
			SafetyTags:      dimension.CoerceToStringList(resp["safety_tags"]),
			CoverageTag:     dimension.CoerceString(resp["coverage_tag"]),
			NoveltyTag:      dimension.CoerceString(resp["novelty_tag"]),
			IPSensitivity:   dimension.CoerceString(resp["ip_sensitivity"]),
			PIIFlag:         dimension.CoerceBool(resp["pii_flag"]),
			ComplianceFlags: dimension.CoerceToStringList(resp["compliance_flags"]),
		}
	}
	return nil
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(s string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(s)) / 4))
}

// extracted returns the registry fields a subset populates, for auditing.
func extracted(s dimension.Subset) string {
	if s == nil {
		return "{}"
	}
	var r dimension.Record
	s.ApplyTo(&r)
	values, err := r.Values()
	if err != nil {
		return "{}"
	}
	out := make(map[string]any)
	for _, name := range dimension.Names() {
		if dimension.Populated(values[name]) {
			out[name] = values[name]
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(b)
}
