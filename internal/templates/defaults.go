// Package templates provides the built-in prompt templates and loads
// additional ones from YAML.
package templates

import (
	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/generation"
)

const preamble = `You are analyzing a {chunk_type} chunk from the document "{doc_title}" ({primary_category}).

Chunk:
"""
{chunk_text}
"""

`

const jsonOnly = "\nRespond with a single JSON object and nothing else."

// Defaults returns the built-in templates, one per template type.
func Defaults() []Spec {
	return []Spec{
		{
			Name: "Content Analysis",
			Type: generation.ContentAnalysis,
			Prompt: preamble + `Describe the chunk. Return these keys:
- "chunk_summary_1s": one sentence summary
- "key_terms": array of important terms
- "audience": who the text is written for
- "intent": what the text tries to achieve
- "tone_voice_tags": array of tone descriptors
- "brand_persona_tags": array of persona descriptors
- "domain_tags": array of subject domains` + jsonOnly,
		},
		{
			Name:       "Task Extraction",
			Type:       generation.TaskExtraction,
			ChunkTypes: []string{string(dimension.InstructionalUnit), string(dimension.ChapterSequential)},
			Prompt: preamble + `Extract the procedure the chunk teaches. Return these keys:
- "task_name"
- "preconditions"
- "inputs"
- "steps_json": array of step strings in order
- "expected_output"
- "warnings_failure_modes"
Use null for anything the text does not state.` + jsonOnly,
		},
		{
			Name:       "Claim Evidence Reasoning",
			Type:       generation.CERAnalysis,
			ChunkTypes: []string{string(dimension.CER)},
			Prompt: preamble + `Identify the argument. Return these keys:
- "claim": the main claim
- "evidence_snippets": array of quoted supporting passages
- "reasoning_sketch": how the evidence supports the claim
- "citations": array of cited sources
- "factual_confidence_0_1": number between 0 and 1` + jsonOnly,
		},
		{
			Name:       "Scenario Extraction",
			Type:       generation.ScenarioExtraction,
			ChunkTypes: []string{string(dimension.ExampleScenario)},
			Prompt: preamble + `Describe the example. Return these keys:
- "scenario_type"
- "problem_context"
- "solution_action"
- "outcome_metrics"
- "style_notes"` + jsonOnly,
		},
		{
			Name: "Training Pair Generation",
			Type: generation.TrainingPairGeneration,
			Prompt: preamble + `Write one instruction tuning pair grounded in the chunk. Return these keys:
- "prompt_candidate": a question a user might ask
- "target_answer": the answer, using only the chunk
- "style_directives": how the answer should be written` + jsonOnly,
		},
		{
			Name: "Risk Assessment",
			Type: generation.RiskAssessment,
			Prompt: preamble + `Assess publishing risk. Return these keys:
- "safety_tags": array
- "coverage_tag": one of "core", "supplementary", "edge"
- "novelty_tag": one of "common", "uncommon", "novel"
- "ip_sensitivity": one of "low", "medium", "high"
- "pii_flag": boolean
- "compliance_flags": array` + jsonOnly,
		},
	}
}
