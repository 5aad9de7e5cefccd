package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse spaces", "a    b\t\tc", "a b c"},
		{"keep single newline", "line one\nline two", "line one\nline two"},
		{"collapse newline runs", "p1\n\n\n\n\np2", "p1\n\np2"},
		{"trim", "   hello   ", "hello"},
		{"empty", "   \t  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestSplitShortText(t *testing.T) {
	c := New()
	text := "This is a short document."
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, Normalize(text), chunks[0])
}

func TestSplitEmpty(t *testing.T) {
	c := New()
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\n  "))
}

func TestSplitRespectsChunkSize(t *testing.T) {
	c := New(WithChunkSize(100), WithChunkOverlap(0))
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 100, "chunk %d exceeds limit: %q", i, ch)
	}
}

func TestSplitOverlapIsWordAligned(t *testing.T) {
	c := New(WithChunkSize(500), WithChunkOverlap(50))
	text := strings.Repeat("Python is great. ", 50)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	// Rebuild the pre-overlap chunks to compare tails against.
	plain := New(WithChunkSize(500), WithChunkOverlap(0)).Split(text)
	require.Equal(t, len(plain), len(chunks))

	for i := 1; i < len(chunks); i++ {
		prev := plain[i-1]
		tail := prev
		if len(prev) > 50 {
			tail = prev[len(prev)-50:]
		}
		if idx := strings.Index(tail, " "); idx != -1 && !strings.HasPrefix(tail, " ") {
			tail = tail[idx+1:]
		}
		tail = strings.TrimSpace(tail)
		require.NotEmpty(t, tail)
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with previous tail %q: %q", i, tail, chunks[i])
		// The carried context must be a word-aligned suffix of the previous chunk.
		assert.True(t, strings.HasSuffix(prev, tail) &&
			(len(prev) == len(tail) || prev[len(prev)-len(tail)-1] == ' '))
	}
}

func TestSplitHugeTokenFallsBackToCharacters(t *testing.T) {
	c := New(WithChunkSize(50), WithChunkOverlap(0))
	chunks := c.Split(strings.Repeat("x", 500))
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 50)
	}
	assert.Equal(t, 500, len(strings.Join(chunks, "")))
}

func TestSplitMultibyteStaysValidUTF8(t *testing.T) {
	// CJK prose has no spaces, so splitting degrades to the character
	// fallback and the overlap tail carries raw text. Both must cut on
	// rune boundaries.
	c := New()
	text := strings.Repeat("世界和平万岁", 100)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch), "chunk %d is not valid UTF-8: %q", i, ch)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), DefaultChunkSize+DefaultChunkOverlap,
			"chunk %d exceeds size plus overlap", i)
	}

	// Without overlap the chunks must reassemble the input exactly.
	plain := New(WithChunkOverlap(0)).Split(text)
	assert.Equal(t, text, strings.Join(plain, ""))
}

func TestSplitMultibyteOverlapTail(t *testing.T) {
	c := New(WithChunkSize(10), WithChunkOverlap(4))
	chunks := c.Split(strings.Repeat("日本語テキスト", 10))
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		require.True(t, utf8.ValidString(chunks[i]), "chunk %d: %q", i, chunks[i])
	}
}

func TestSplitChunkSizeCountsRunes(t *testing.T) {
	c := New(WithChunkSize(6), WithChunkOverlap(0))
	// Six runes but eighteen bytes: must stay a single chunk.
	chunks := c.Split("日本語テキス")
	require.Len(t, chunks, 1)
	assert.Equal(t, "日本語テキス", chunks[0])
}

func TestSplitParagraphsStaySeparate(t *testing.T) {
	c := New(WithChunkSize(40), WithChunkOverlap(0))
	text := "First paragraph with enough words to stand alone here.\n\nSecond paragraph also long enough on its own."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
}

func TestProcessMetadata(t *testing.T) {
	c := New(WithChunkSize(60), WithChunkOverlap(0))
	docs := []Document{
		{Content: strings.Repeat("alpha beta gamma delta. ", 10), Metadata: map[string]string{"source": "a.txt"}},
		{Content: "", Metadata: map[string]string{"source": "empty.txt"}},
		{Content: "tiny", Metadata: map[string]string{"source": "b.txt"}},
	}

	chunks := c.Process(docs)
	require.NotEmpty(t, chunks)

	perDoc := map[string]int{}
	for _, ch := range chunks {
		perDoc[ch.Metadata["doc_index"]]++
	}
	assert.NotContains(t, perDoc, "1", "empty document must produce no chunks")
	assert.Equal(t, 1, perDoc["2"])

	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Metadata["source"])
		assert.NotEmpty(t, ch.Metadata["chunk_index"])
		assert.NotEmpty(t, ch.Metadata["total_chunks"])
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, "b.txt", last.Metadata["source"])
	assert.Equal(t, "0", last.Metadata["chunk_index"])
	assert.Equal(t, "1", last.Metadata["total_chunks"])
}

func TestProcessDoesNotMutateSourceMetadata(t *testing.T) {
	c := New()
	meta := map[string]string{"source": "a.txt"}
	c.Process([]Document{{Content: "hello world", Metadata: meta}})
	assert.Equal(t, map[string]string{"source": "a.txt"}, meta)
}
