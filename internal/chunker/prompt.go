package chunker

import (
	"fmt"
	"strings"

	"github.com/kalambet/chunkdim/internal/dimension"
	"github.com/kalambet/chunkdim/internal/textstat"
)

var typeHints = map[dimension.ChunkType]string{
	dimension.ChapterSequential: "chapters and major sections.",
	dimension.InstructionalUnit: "procedures, numbered steps, checklists.",
	dimension.CER:               "claims backed by evidence and reasoning.",
	dimension.ExampleScenario:   "case studies, stories, worked examples, dialogues.",
}

const (
	// MaxPromptChars is the largest amount of document text sent to the model.
	MaxPromptChars = 80000

	// TruncationMarker is appended to content cut at MaxPromptChars.
	TruncationMarker = "\n\n[... Document truncated due to size limits ...]"
)

// Truncate cuts content to MaxPromptChars runes and appends TruncationMarker.
// The boolean reports whether anything was cut.
func Truncate(content string) (string, bool) {
	cut := textstat.RuneOffset(content, MaxPromptChars)
	if cut == len(content) {
		return content, false
	}
	return content[:cut] + TruncationMarker, true
}

// PromptInput is everything BuildPrompt needs.
type PromptInput struct {
	Title     string
	Category  string
	Content   string
	Truncated bool
	Lines     int
	Stats     textstat.Stats
}

// BuildPrompt renders the candidate extraction prompt. Content must already
// be truncated.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	b.WriteString("You analyze documents and split them into distinct chunks used to build training data.\n\n")
	fmt.Fprintf(&b, "DOCUMENT TITLE: %s\n", in.Title)
	fmt.Fprintf(&b, "DOCUMENT CATEGORY: %s\n", in.Category)
	fmt.Fprintf(&b, "DOCUMENT SIZE: %d characters, about %d tokens, %d lines\n", in.Stats.Chars, in.Stats.EstimatedTokens, in.Lines)
	fmt.Fprintf(&b, "HEADINGS DETECTED: %d\n", in.Stats.SectionCount())
	if in.Truncated {
		b.WriteString("NOTE: The document was truncated for analysis. Only use the visible content.\n")
	}

	b.WriteString("\nCHUNK TYPES:\n")
	for _, ct := range dimension.ChunkTypes {
		fmt.Fprintf(&b, "- %s: %s Return at most %d.\n", ct, typeHints[ct], Caps[ct])
	}

	fmt.Fprintf(&b, "\nThe document has %d lines. Address chunks by LINE NUMBER, not by character offset.\n", in.Lines)
	b.WriteString("\nDOCUMENT CONTENT:\n---\n")
	b.WriteString(in.Content)
	b.WriteString("\n---\n\n")

	b.WriteString(`Return a JSON array. Each element has:
  "chunk_type": one of Chapter_Sequential, Instructional_Unit, CER, Example_Scenario
  "confidence": number between 0.0 and 1.0
  "start_line": first line of the chunk, 1-indexed
  "end_line": last line of the chunk, inclusive
  "section_heading": heading of the chunk, if any
  "reasoning": one sentence on why the chunk has this type

Example:
[
  {"chunk_type": "Instructional_Unit", "confidence": 0.92, "start_line": 5, "end_line": 12,
   "section_heading": "Step 1: Discovery Mapping", "reasoning": "Numbered procedure for discovery"}
]

Cover the whole document. Keep each section, procedure, claim and example as its own chunk.
Return only the JSON array.`)

	return b.String()
}
