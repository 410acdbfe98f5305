// Package textstat holds the mechanical text measurements used when turning
// chunk candidates into persisted chunks.
package textstat

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CharsPerPage is the fixed page size used to derive page ranges.
const CharsPerPage = 3000

// MaxHandleLength caps the length of a chunk handle.
const MaxHandleLength = 50

// HeadingKind names the pattern a heading matched.
type HeadingKind string

const (
	KindChapter    HeadingKind = "chapter"
	KindSection    HeadingKind = "section"
	KindMarkdown   HeadingKind = "markdown"
	KindUnderlined HeadingKind = "underlined"
	KindNumbered   HeadingKind = "numbered"
)

// Heading is a detected structural heading. Line is 1-indexed.
type Heading struct {
	Line int         `json:"line"`
	Text string      `json:"text"`
	Kind HeadingKind `json:"kind"`
}

// Stats summarizes a document for prompt context. Chars counts runes.
type Stats struct {
	Chars           int       `json:"chars"`
	Lines           int       `json:"lines"`
	EstimatedTokens int       `json:"estimated_tokens"`
	Headings        []Heading `json:"headings"`
}

// SectionCount is the number of detected headings.
func (s Stats) SectionCount() int { return len(s.Headings) }

var (
	chapterRe   = regexp.MustCompile(`(?i)^chapter\s+(\d+|[ivxlcdm]+)\b`)
	sectionRe   = regexp.MustCompile(`(?i)^section\s+\d+(\.\d+)*\b`)
	markdownRe  = regexp.MustCompile(`^#{1,6}\s+\S`)
	underlineRe = regexp.MustCompile(`^(={3,}|-{3,})\s*$`)
	numberedRe  = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\p{Lu}`)
)

// Analyze detects headings and measures content.
func Analyze(content string) Stats {
	lines := strings.Split(content, "\n")
	st := Stats{
		Chars:           utf8.RuneCountInString(content),
		Lines:           len(lines),
		EstimatedTokens: EstimateTokens(content),
	}
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		var kind HeadingKind
		switch {
		case chapterRe.MatchString(line):
			kind = KindChapter
		case sectionRe.MatchString(line):
			kind = KindSection
		case markdownRe.MatchString(line):
			kind = KindMarkdown
			line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		case i+1 < len(lines) && underlineRe.MatchString(strings.TrimSpace(lines[i+1])):
			kind = KindUnderlined
		case numberedRe.MatchString(line) && len(line) <= 100:
			kind = KindNumbered
		default:
			continue
		}
		st.Headings = append(st.Headings, Heading{Line: i + 1, Text: line, Kind: kind})
	}
	return st
}

// NearestHeading returns the last heading at or before line (1-indexed).
func (s Stats) NearestHeading(line int) (Heading, bool) {
	var found Heading
	ok := false
	for _, h := range s.Headings {
		if h.Line > line {
			break
		}
		found, ok = h, true
	}
	return found, ok
}

// EstimateTokens approximates a model token count: one token per four
// characters plus one per five punctuation marks.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return int(math.Ceil(float64(len(text))/4)) + punct/5
}

// PageRange maps a half-open character span onto 1-indexed pages.
func PageRange(start, end int) (pageStart, pageEnd int) {
	pageStart = start/CharsPerPage + 1
	pageEnd = pageStart
	if end > start {
		pageEnd = (end-1)/CharsPerPage + 1
	}
	return pageStart, pageEnd
}

// OverlapTokens is the token estimate of the text shared by the current span
// and the previous one, 0 when they do not intersect.
func OverlapTokens(content string, prevStart, prevEnd, start, end int) int {
	lo, hi := max(prevStart, start), min(prevEnd, end)
	if hi <= lo {
		return 0
	}
	return EstimateTokens(content[lo:hi])
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Handle derives a short slug for a chunk from its heading, falling back to
// the lowercased chunk type and its sequence number.
func Handle(heading, chunkType string, seq int) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(heading), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxHandleLength {
		slug = strings.TrimRight(slug[:MaxHandleLength], "-")
	}
	if slug != "" {
		return slug
	}
	typ := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(chunkType), "-"), "-")
	if typ == "" {
		typ = "chunk"
	}
	return fmt.Sprintf("%s-%03d", typ, seq)
}

// SnapToRune moves i back to the start of the UTF-8 sequence containing it.
func SnapToRune(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// RuneOffset returns the byte offset of the n-th rune of s, or len(s) when s
// has n runes or fewer.
func RuneOffset(s string, n int) int {
	if n <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
