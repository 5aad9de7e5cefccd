// Package loader extracts normalized text from uploaded files. It sits at
// the boundary in front of the retrieval engine: bytes plus a filename or
// content-type hint in, a chunkable document out.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ProcessError reports malformed or unsupported input. Handlers map it to
// a client error, never a server one.
type ProcessError struct {
	Filename string
	Err      error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Filename, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Document is loader output: extracted text plus source metadata.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Load picks a format from the file extension, falling back to the
// content-type hint. Unsupported formats fail with a ProcessError.
func Load(content []byte, filename, contentType string) (Document, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return loadText(content, filename), nil
	case ".md", ".markdown":
		return loadMarkdown(content, filename), nil
	case ".html", ".htm":
		return loadHTML(content, filename)
	case ".jsonl":
		return loadJSONL(content, filename)
	}

	switch {
	case contentType == "text/html":
		return loadHTML(content, filename)
	case strings.HasPrefix(contentType, "text/"):
		return loadText(content, filename), nil
	}

	return Document{}, &ProcessError{
		Filename: filename,
		Err:      fmt.Errorf("unsupported format %q (supported: .txt, .md, .html, .jsonl)", filepath.Ext(filename)),
	}
}

func loadText(content []byte, filename string) Document {
	return Document{
		Content: strings.ToValidUTF8(string(content), ""),
		Metadata: map[string]string{
			"source": filename,
			"type":   "text",
		},
	}
}

func loadMarkdown(content []byte, filename string) Document {
	doc := loadText(content, filename)
	doc.Metadata["type"] = "markdown"
	return doc
}

// loadJSONL reads one JSON object per line, taking its "text" (or
// "content") field, and joins the records into paragraphs.
func loadJSONL(content []byte, filename string) (Document, error) {
	var parts []string

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec struct {
			Text    string `json:"text"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return Document{}, &ProcessError{Filename: filename, Err: fmt.Errorf("line %d: %w", lineNo, err)}
		}
		text := rec.Text
		if text == "" {
			text = rec.Content
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	if err := scanner.Err(); err != nil {
		return Document{}, &ProcessError{Filename: filename, Err: err}
	}

	return Document{
		Content: strings.Join(parts, "\n\n"),
		Metadata: map[string]string{
			"source":  filename,
			"type":    "jsonl",
			"records": strconv.Itoa(len(parts)),
		},
	}, nil
}
