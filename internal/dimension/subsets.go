package dimension

import "encoding/json"

// Subset is the typed slice of a Record one template type produces.
// ApplyTo copies every non-nil field onto r; later subsets win.
type Subset interface {
	ApplyTo(r *Record)
}

type ContentFields struct {
	ChunkSummary     *string
	KeyTerms         []string
	Audience         *string
	Intent           *string
	ToneVoiceTags    []string
	BrandPersonaTags []string
	DomainTags       []string
}

func (f ContentFields) ApplyTo(r *Record) {
	setString(&r.ChunkSummary, f.ChunkSummary)
	setList(&r.KeyTerms, f.KeyTerms)
	setString(&r.Audience, f.Audience)
	setString(&r.Intent, f.Intent)
	setList(&r.ToneVoiceTags, f.ToneVoiceTags)
	setList(&r.BrandPersonaTags, f.BrandPersonaTags)
	setList(&r.DomainTags, f.DomainTags)
}

type TaskFields struct {
	TaskName             *string
	Preconditions        *string
	Inputs               *string
	StepsJSON            json.RawMessage
	ExpectedOutput       *string
	WarningsFailureModes *string
}

func (f TaskFields) ApplyTo(r *Record) {
	setString(&r.TaskName, f.TaskName)
	setString(&r.Preconditions, f.Preconditions)
	setString(&r.Inputs, f.Inputs)
	if f.StepsJSON != nil {
		r.StepsJSON = f.StepsJSON
	}
	setString(&r.ExpectedOutput, f.ExpectedOutput)
	setString(&r.WarningsFailureModes, f.WarningsFailureModes)
}

type CERFields struct {
	Claim             *string
	EvidenceSnippets  []string
	ReasoningSketch   *string
	Citations         []string
	FactualConfidence *float64
}

func (f CERFields) ApplyTo(r *Record) {
	setString(&r.Claim, f.Claim)
	setList(&r.EvidenceSnippets, f.EvidenceSnippets)
	setString(&r.ReasoningSketch, f.ReasoningSketch)
	setList(&r.Citations, f.Citations)
	if f.FactualConfidence != nil {
		r.FactualConfidence = f.FactualConfidence
	}
}

type ScenarioFields struct {
	ScenarioType   *string
	ProblemContext *string
	SolutionAction *string
	OutcomeMetrics *string
	StyleNotes     *string
}

func (f ScenarioFields) ApplyTo(r *Record) {
	setString(&r.ScenarioType, f.ScenarioType)
	setString(&r.ProblemContext, f.ProblemContext)
	setString(&r.SolutionAction, f.SolutionAction)
	setString(&r.OutcomeMetrics, f.OutcomeMetrics)
	setString(&r.StyleNotes, f.StyleNotes)
}

type TrainingFields struct {
	PromptCandidate *string
	TargetAnswer    *string
	StyleDirectives *string
}

func (f TrainingFields) ApplyTo(r *Record) {
	setString(&r.PromptCandidate, f.PromptCandidate)
	setString(&r.TargetAnswer, f.TargetAnswer)
	setString(&r.StyleDirectives, f.StyleDirectives)
}

type RiskFields struct {
	SafetyTags      []string
	CoverageTag     *string
	NoveltyTag      *string
	IPSensitivity   *string
	PIIFlag         *bool
	ComplianceFlags []string
}

func (f RiskFields) ApplyTo(r *Record) {
	setList(&r.SafetyTags, f.SafetyTags)
	setString(&r.CoverageTag, f.CoverageTag)
	setString(&r.NoveltyTag, f.NoveltyTag)
	setString(&r.IPSensitivity, f.IPSensitivity)
	if f.PIIFlag != nil {
		r.PIIFlag = f.PIIFlag
	}
	setList(&r.ComplianceFlags, f.ComplianceFlags)
}

func setString(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}
