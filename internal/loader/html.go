package loader

import (
	"strings"

	"golang.org/x/net/html"
)

var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true, "header": true,
	"footer": true, "aside": true, "iframe": true, "form": true, "button": true,
	"svg": true, "template": true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"ul": true, "ol": true, "li": true, "table": true, "tr": true, "pre": true,
	"blockquote": true, "br": true, "hr": true, "dl": true, "dt": true, "dd": true,
}

var headingLevel = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// loadHTML keeps the readable text of a page. Headings are rendered as
// markdown headings so structure detection still sees them.
func loadHTML(content []byte) (Document, error) {
	root, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return Document{}, err
	}

	doc := Document{SourceType: SourceHTML}
	if t := findElement(root, "title"); t != nil {
		doc.Title = strings.TrimSpace(textOf(t))
	}

	start := root
	for _, tag := range []string{"main", "article", "body"} {
		if n := findElement(root, tag); n != nil {
			start = n
			break
		}
	}

	var b strings.Builder
	render(&b, start)
	doc.Content = b.String()
	if doc.Title == "" {
		if h := findElement(root, "h1"); h != nil {
			doc.Title = strings.TrimSpace(textOf(h))
		}
	}
	return doc, nil
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString(t)
		}
		return
	case html.ElementNode:
		if skipped[n.Data] || n.Data == "title" || n.Data == "head" {
			return
		}
		if level, ok := headingLevel[n.Data]; ok {
			newline(b, 2)
			b.WriteString(strings.Repeat("#", level) + " " + strings.TrimSpace(textOf(n)))
			newline(b, 2)
			return
		}
	}

	block := n.Type == html.ElementNode && blocks[n.Data]
	if block {
		newline(b, 1)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if block {
		newline(b, 1)
	}
}

// newline ends the builder with at least n line breaks.
func newline(b *strings.Builder, n int) {
	if b.Len() == 0 {
		return
	}
	s := b.String()
	have := len(s) - len(strings.TrimRight(s, "\n"))
	for ; have < n; have++ {
		b.WriteByte('\n')
	}
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
