package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// DefaultSeparators is ordered coarsest to finest. The trailing empty
// string degrades to per-character splitting, which guarantees every
// piece eventually fits.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Document is a unit of ingestion: normalized text plus source metadata.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is one embeddable piece of a document. Metadata carries the
// source document's metadata plus doc_index, chunk_index and total_chunks.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// Chunker splits documents into bounded, overlapping chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

type Option func(*Chunker)

func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithChunkOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.chunkOverlap = n
		}
	}
}

func WithSeparators(seps []string) Option {
	return func(c *Chunker) {
		if len(seps) > 0 {
			c.separators = seps
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	spaceRunRe   = regexp.MustCompile(`[^\S\n]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize collapses runs of horizontal whitespace to a single space and
// runs of three or more newlines to exactly two, then trims. Newlines
// survive so the paragraph and line separators keep something to split on.
func Normalize(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Split turns one text into chunks of at most chunkSize characters, with
// chunkOverlap characters of word-aligned trailing context carried into
// each chunk after the first.
func (c *Chunker) Split(text string) []string {
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}
	}

	pieces := c.split(text)
	merged := c.merge(pieces)
	return c.overlap(merged)
}

// split is an iterative worklist version of recursive separator splitting:
// each item remembers which separator to try next, so a pathological input
// (one huge token) cannot blow the stack.
func (c *Chunker) split(text string) []string {
	type item struct {
		text   string
		sepIdx int
	}

	var out []string
	stack := []item{{text: text, sepIdx: 0}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if utf8.RuneCountInString(it.text) <= c.chunkSize || it.sepIdx >= len(c.separators) {
			out = append(out, it.text)
			continue
		}

		sep := c.separators[it.sepIdx]
		if sep == "" {
			// Character-level fallback: hard-cut into chunkSize pieces.
			// Cut positions are rune indexed; a byte cut would split
			// multibyte text mid-rune.
			runes := []rune(it.text)
			for start := 0; start < len(runes); start += c.chunkSize {
				end := min(start+c.chunkSize, len(runes))
				out = append(out, string(runes[start:end]))
			}
			continue
		}

		splits := strings.Split(it.text, sep)
		// Push in reverse so pieces pop in document order.
		for i := len(splits) - 1; i >= 0; i-- {
			stack = append(stack, item{text: splits[i], sepIdx: it.sepIdx + 1})
		}
	}

	return out
}

// merge greedily joins consecutive pieces with a single space while the
// result stays within chunkSize.
func (c *Chunker) merge(pieces []string) []string {
	var merged []string
	var current string

	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if current == "" {
			current = piece
			continue
		}
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(piece)+1 <= c.chunkSize {
			current = current + " " + piece
		} else {
			merged = append(merged, current)
			current = piece
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

// overlap prepends the tail of each previous pre-overlap chunk to the next
// one, dropping any partial leading word so the carried context starts at
// a word boundary.
func (c *Chunker) overlap(chunks []string) []string {
	if c.chunkOverlap <= 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]string, 0, len(chunks))
	out = append(out, chunks[0])

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if runes := []rune(prev); len(runes) > c.chunkOverlap {
			tail = string(runes[len(runes)-c.chunkOverlap:])
		}
		if !strings.HasPrefix(tail, " ") {
			if idx := strings.Index(tail, " "); idx != -1 {
				tail = tail[idx+1:]
			}
		}
		out = append(out, strings.TrimSpace(tail+" "+chunks[i]))
	}
	return out
}

// Process flattens a batch of documents into one ordered chunk sequence.
// Each chunk copies its document's metadata and is tagged with its position
// in the batch. Empty documents contribute nothing; Process never fails.
func (c *Chunker) Process(docs []Document) []Chunk {
	var chunks []Chunk
	for docIdx, doc := range docs {
		texts := c.Split(doc.Content)
		for chunkIdx, text := range texts {
			meta := make(map[string]string, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["doc_index"] = strconv.Itoa(docIdx)
			meta["chunk_index"] = strconv.Itoa(chunkIdx)
			meta["total_chunks"] = strconv.Itoa(len(texts))
			chunks = append(chunks, Chunk{Text: text, Metadata: meta})
		}
	}
	return chunks
}
