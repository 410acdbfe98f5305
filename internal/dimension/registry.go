package dimension

import "sort"

// Category is the origin of a dimension value.
type Category string

const (
	PriorGenerated        Category = "Prior Generated"
	MechanicallyGenerated Category = "Mechanically Generated"
	AIGenerated           Category = "AI Generated"
)

// DataType is the declared storage shape of a dimension.
type DataType string

const (
	TypeString   DataType = "string"
	TypeEnum     DataType = "enum"
	TypeList     DataType = "list[string]"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeBoolean  DataType = "boolean"
	TypeJSON     DataType = "json"
	TypeDatetime DataType = "datetime"
)

// Field describes one of the 60 dimensions.
type Field struct {
	Name          string   `json:"field_name"`
	Description   string   `json:"description"`
	DataType      DataType `json:"data_type"`
	AllowedValues string   `json:"allowed_values_format,omitempty"`
	Category      Category `json:"generation_type"`
	Example       string   `json:"example_value,omitempty"`
	Required      bool     `json:"is_required"`
	DisplayOrder  int      `json:"display_order"`
	Group         string   `json:"category"`
}

// Total is the number of dimensions in the registry.
const Total = 60

const (
	groupDocument = "Document Metadata"
	groupMetadata = "Metadata"
	groupContent  = "Content"
	groupTask     = "Task"
	groupCER      = "CER"
	groupScenario = "Scenario"
	groupTraining = "Training"
	groupRisk     = "Risk"
)

var registry = []Field{
	{"doc_id", "Unique identifier for the source document.", TypeString, "", PriorGenerated, "DOC_2025_001", true, 1, groupDocument},
	{"doc_title", "Human-readable title of the document.", TypeString, "", PriorGenerated, "Bright Run Playbook v2", true, 2, groupDocument},
	{"doc_version", "Document version tag or semver.", TypeString, "", PriorGenerated, "v1.3.0", false, 3, groupDocument},
	{"source_type", "Ingest source format.", TypeEnum, "pdf | docx | html | markdown | email | transcript | notion | spreadsheet | image+OCR", PriorGenerated, "pdf", true, 4, groupDocument},
	{"source_url", "Canonical URL or file path for provenance.", TypeString, "url|uri", PriorGenerated, "https://example.com/playbook.pdf", false, 5, groupDocument},
	{"author", "Document author or organization.", TypeString, "", PriorGenerated, "BRAND Team", false, 6, groupDocument},
	{"doc_date", "Date of original authorship or publication.", TypeDatetime, "YYYY-MM-DD", PriorGenerated, "2025-07-15", false, 7, groupDocument},
	{"primary_category", "User-centric category (pick one) for business meaning.", TypeEnum, "", PriorGenerated, "Operational Playbook / Step-by-Step (Author: BRAND)", true, 8, groupDocument},

	{"chunk_id", "Stable unique ID for this chunk.", TypeString, "", MechanicallyGenerated, "DOC_2025_001#C032", true, 9, groupMetadata},
	{"section_heading", "Nearest section or heading title.", TypeString, "", MechanicallyGenerated, "Stage 2: Categorize Documents", false, 10, groupMetadata},
	{"page_start", "First page number covered by the chunk.", TypeInteger, ">=1", MechanicallyGenerated, "12", false, 11, groupMetadata},
	{"page_end", "Last page number covered by the chunk.", TypeInteger, ">=Page_Start", MechanicallyGenerated, "13", false, 12, groupMetadata},
	{"char_start", "Character index start in the document (0-based).", TypeInteger, ">=0", MechanicallyGenerated, "8450", true, 13, groupMetadata},
	{"char_end", "Character index end (exclusive).", TypeInteger, ">Char_Start", MechanicallyGenerated, "9875", true, 14, groupMetadata},
	{"token_count", "Model token count for the chunk text.", TypeInteger, ">=1", MechanicallyGenerated, "512", true, 15, groupMetadata},
	{"overlap_tokens", "Number of tokens overlapped with previous chunk.", TypeInteger, ">=0", MechanicallyGenerated, "64", false, 16, groupMetadata},
	{"chunk_handle", "Short slug/handle for referencing the chunk.", TypeString, "", MechanicallyGenerated, "stage2-categorize-overview", false, 17, groupMetadata},

	{"chunk_type", "Structural role of the chunk.", TypeEnum, "Chapter_Sequential | Instructional_Unit | CER | Example_Scenario", AIGenerated, "Instructional_Unit", true, 18, groupContent},
	{"chunk_summary_1s", "One-sentence summary (<= 30 words).", TypeString, "<= 240 chars", AIGenerated, "Explains how to label document chunks for LoRA training and compliance.", false, 19, groupContent},
	{"key_terms", "Pipe- or comma-separated salient terms.", TypeList, "comma or pipe delimited", AIGenerated, "LoRA|brand voice|categorization|instruction-tuning", false, 20, groupContent},
	{"audience", "Intended reader/user persona.", TypeString, "", AIGenerated, "SMB Owners; Ops Managers", false, 21, groupContent},
	{"intent", "Author's primary intent for this chunk.", TypeEnum, "educate | instruct | persuade | inform | narrate | summarize | compare | evaluate", AIGenerated, "instruct", false, 22, groupContent},
	{"tone_voice_tags", "Style/voice descriptors.", TypeList, "comma or pipe delimited", AIGenerated, "authoritative, pragmatic, clear", false, 23, groupContent},
	{"brand_persona_tags", "Brand identity traits relevant to voice.", TypeList, "comma or pipe delimited", AIGenerated, "trusted advisor, data-driven", false, 24, groupContent},
	{"domain_tags", "Topic/domain taxonomy labels.", TypeList, "comma or pipe delimited", AIGenerated, "B2B Marketing, AI Ops", false, 25, groupContent},

	{"task_name", "Primary task/procedure name captured by the chunk.", TypeString, "", AIGenerated, "Create Document Categories", false, 26, groupTask},
	{"preconditions", "Requirements before executing the task.", TypeString, "", AIGenerated, "Access to the Categorization module; documents uploaded", false, 27, groupTask},
	{"inputs", "Inputs/resources needed to perform the task.", TypeString, "", AIGenerated, "Uploaded PDFs; taxonomy definitions", false, 28, groupTask},
	{"steps_json", "Canonical steps in minimal JSON.", TypeJSON, `[{"step":"...", "details":"..."}]`, AIGenerated, `[{"step":"Open Categorizer"},{"step":"Assign Primary Category"}]`, false, 29, groupTask},
	{"expected_output", "What success looks like if steps are followed.", TypeString, "", AIGenerated, "Each chunk labeled with Primary Category and Chunk Type", false, 30, groupTask},
	{"warnings_failure_modes", "Known pitfalls and failure conditions.", TypeString, "", AIGenerated, "Mislabeling CER as Example; missing citations", false, 31, groupTask},

	{"claim", "Main assertion stated in this chunk.", TypeString, "", AIGenerated, "Structured chunk labels improve model faithfulness.", false, 32, groupCER},
	{"evidence_snippets", "Quoted or paraphrased evidence supporting the claim.", TypeList, "comma/pipe delimited or JSON array", AIGenerated, `"A/B tests showed 9% fewer hallucinations"`, false, 33, groupCER},
	{"reasoning_sketch", "High-level rationale (concise; no verbose chain-of-thought).", TypeString, "", AIGenerated, "Labels constrain retrieval and guide selection, giving more faithful answers.", false, 34, groupCER},
	{"citations", "Sources/links/DOIs supporting evidence.", TypeList, "comma/pipe delimited", AIGenerated, "https://example.com/whitepaper", false, 35, groupCER},
	{"factual_confidence_0_1", "Confidence score for factuality (0-1).", TypeFloat, "0.0-1.0", AIGenerated, "0.85", false, 36, groupCER},

	{"scenario_type", "Type of example or application.", TypeEnum, "case_study | dialogue | Q&A | walkthrough | anecdote", AIGenerated, "case_study", false, 37, groupScenario},
	{"problem_context", "Real-world context of the example.", TypeString, "", AIGenerated, "Local HVAC company launching a maintenance plan", false, 38, groupScenario},
	{"solution_action", "Action taken in the example.", TypeString, "", AIGenerated, "Applied categorizer; built instruction-tuning pairs", false, 39, groupScenario},
	{"outcome_metrics", "Measured results or KPIs.", TypeString, "", AIGenerated, "+18% response rate; 2x faster drafting", false, 40, groupScenario},
	{"style_notes", "Narrative/style attributes to mimic.", TypeString, "", AIGenerated, "Conversational, concrete, with numbers", false, 41, groupScenario},

	{"prompt_candidate", "Potential user prompt distilled from the chunk.", TypeString, "", AIGenerated, "Draft a step-by-step checklist to categorize documents.", false, 42, groupTraining},
	{"target_answer", "Ideal answer (concise, brand-aligned).", TypeString, "", AIGenerated, "A numbered checklist with compliance notes.", false, 43, groupTraining},
	{"style_directives", "Formatting/voice directives for answers.", TypeString, "", AIGenerated, "Use numbered steps; avoid jargon; keep to 150-250 words.", false, 44, groupTraining},

	{"safety_tags", "Sensitive-topic flags for filtering/guardrails.", TypeList, "comma or pipe delimited", AIGenerated, "medical_advice, legal_disclaimer", false, 45, groupRisk},
	{"coverage_tag", "How central this chunk is to the domain.", TypeString, "core | supporting | edge", AIGenerated, "core", false, 46, groupRisk},
	{"novelty_tag", "Whether content is common or unique IP.", TypeString, "novel | common | disputed", AIGenerated, "novel", false, 47, groupRisk},
	{"ip_sensitivity", "Confidentiality level for IP handling.", TypeEnum, "Public | Internal | Confidential | Trade_Secret", AIGenerated, "Confidential", false, 48, groupRisk},
	{"pii_flag", "Indicates presence of personal data.", TypeBoolean, "true | false", AIGenerated, "false", false, 49, groupRisk},
	{"compliance_flags", "Regulatory or policy flags.", TypeList, "comma or pipe delimited", AIGenerated, "copyright_third_party, trademark", false, 50, groupRisk},

	{"embedding_id", "Identifier for stored vector embedding.", TypeString, "", MechanicallyGenerated, "embed_3f9ac2", false, 51, groupMetadata},
	{"vector_checksum", "Checksum/hash for the vector payload.", TypeString, "", MechanicallyGenerated, "sha256:7b9...", false, 52, groupMetadata},
	{"label_source_auto_manual_mixed", "Provenance of labels.", TypeEnum, "auto | manual | mixed", MechanicallyGenerated, "mixed", false, 53, groupMetadata},
	{"label_model", "Model name/version used for auto-labels.", TypeString, "", MechanicallyGenerated, "gpt-5-large-2025-09", false, 54, groupMetadata},
	{"labeled_by", "Human labeler (name/initials) or 'auto'.", TypeString, "", MechanicallyGenerated, "auto", false, 55, groupMetadata},
	{"label_timestamp_iso", "Timestamp when labels were created.", TypeDatetime, "YYYY-MM-DDThh:mm:ssZ", MechanicallyGenerated, "2025-09-28T15:20:11Z", false, 56, groupMetadata},
	{"review_status", "Human QA review status.", TypeEnum, "unreviewed | approved | needs_changes | rejected", MechanicallyGenerated, "unreviewed", false, 57, groupMetadata},
	{"include_in_training_yn", "Whether to use this chunk in training.", TypeBoolean, "Y | N | true | false", AIGenerated, "true", false, 58, groupTraining},
	{"data_split_train_dev_test", "Dataset split allocation.", TypeEnum, "train | dev | test", MechanicallyGenerated, "train", false, 59, groupMetadata},
	{"augmentation_notes", "Notes on paraphrase/style/noise augmentation.", TypeString, "", AIGenerated, "Paraphrase x2; style-transfer to 'friendly'", false, 60, groupTraining},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(registry))
	for _, f := range registry {
		m[f.Name] = f
	}
	return m
}()

// Lookup returns the registry entry for name.
func Lookup(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Fields returns all registry entries ordered by display order.
func Fields() []Field {
	out := make([]Field, len(registry))
	copy(out, registry)
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// FieldsByCategory returns the entries of one generation category, in display order.
func FieldsByCategory(c Category) []Field {
	var out []Field
	for _, f := range Fields() {
		if f.Category == c {
			out = append(out, f)
		}
	}
	return out
}

// FieldsByGroup returns the entries of one display group, in display order.
func FieldsByGroup(group string) []Field {
	var out []Field
	for _, f := range Fields() {
		if f.Group == group {
			out = append(out, f)
		}
	}
	return out
}

// Names returns every dimension name in display order.
func Names() []string {
	fs := Fields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}
