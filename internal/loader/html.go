package loader

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// loadHTML extracts readable text from an HTML page: scripts, styles and
// other non-content elements are dropped, block elements become newlines.
func loadHTML(content []byte, filename string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Document{}, &ProcessError{Filename: filename, Err: err}
	}

	doc.Find("script, style, noscript, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var b strings.Builder
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find("p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		// Pages without block markup still carry text nodes.
		text = strings.TrimSpace(body.Text())
	}

	meta := map[string]string{
		"source": filename,
		"type":   "html",
	}
	if title != "" {
		meta["title"] = title
	}
	return Document{Content: text, Metadata: meta}, nil
}
