// Package loader turns uploaded files into plain document text.
package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Source types recorded on loaded documents.
const (
	SourceText     = "text"
	SourceMarkdown = "markdown"
	SourceHTML     = "html"
	SourcePDF      = "pdf"
)

// Document is the text extracted from a file.
type Document struct {
	Title      string
	Content    string
	SourceType string
}

var excessiveLines = regexp.MustCompile(`\n{4,}`)

// Load extracts the text of content, choosing the format by file extension.
// The title falls back to the file name without its extension.
func Load(filename string, content []byte) (Document, error) {
	var (
		doc Document
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		doc, err = loadPDF(content)
	case ".html", ".htm":
		doc, err = loadHTML(content)
	case ".md", ".markdown":
		doc, err = loadMarkdown(content)
	default:
		doc, err = loadText(content)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading %s: %w", filepath.Base(filename), err)
	}

	doc.Content = strings.TrimSpace(excessiveLines.ReplaceAllString(doc.Content, "\n\n\n"))
	if doc.Content == "" {
		return Document{}, fmt.Errorf("loading %s: no text content", filepath.Base(filename))
	}
	if doc.Title == "" {
		base := filepath.Base(filename)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return doc, nil
}

func loadText(content []byte) (Document, error) {
	if !utf8.Valid(content) {
		return Document{}, fmt.Errorf("content is not valid UTF-8")
	}
	return Document{Content: string(content), SourceType: SourceText}, nil
}

func loadMarkdown(content []byte) (Document, error) {
	doc, err := loadText(content)
	if err != nil {
		return Document{}, err
	}
	doc.SourceType = SourceMarkdown
	for _, line := range strings.Split(doc.Content, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			doc.Title = strings.TrimSpace(t)
			break
		}
	}
	return doc, nil
}

func loadPDF(content []byte) (Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Document{}, fmt.Errorf("open PDF: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return Document{Content: b.String(), SourceType: SourcePDF}, nil
}
