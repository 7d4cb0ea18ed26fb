package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor reduces an HTML document to its main text
type Extractor struct {
	// Content selectors are tried in order; the first match wins, else <body>
	Content []string
	// Noise selectors are removed before the content is located
	Noise []string
}

// DefaultExtractor returns the extractor used for market pages and indexed documents.
func DefaultExtractor() *Extractor {
	return &Extractor{
		Content: []string{"main", "article", "[role=main]", "#content", ".content", ".main-content", ".post-body"},
		Noise: []string{
			"script", "style", "noscript", "template", "svg", "iframe",
			"nav", "header", "footer", "aside", "form",
			".sidebar", ".cookie-banner", ".newsletter", ".share", ".ad", ".ads",
		},
	}
}

// Extract returns the document title and the text of its main content, one non-empty
// line per line.
func (e *Extractor) Extract(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	title = strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")

	if len(e.Noise) > 0 {
		doc.Find(strings.Join(e.Noise, ", ")).Remove()
	}
	content := doc.Find("body")
	for _, sel := range e.Content {
		if s := doc.Find(sel); s.Length() > 0 {
			content = s.First()
			break
		}
	}
	return title, trimLines(content.Text()), nil
}

// HTMLToText strips markup from a fragment such as a search snippet and collapses it
// to one line.
func HTMLToText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func trimLines(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
