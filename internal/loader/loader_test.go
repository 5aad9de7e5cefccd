package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadText(t *testing.T) {
	doc, err := Load([]byte("plain content"), "notes.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "plain content", doc.Content)
	assert.Equal(t, "notes.txt", doc.Metadata["source"])
	assert.Equal(t, "text", doc.Metadata["type"])
}

func TestLoadTextSanitizesInvalidUTF8(t *testing.T) {
	doc, err := Load([]byte{'h', 'i', 0xff, '!'}, "bad.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "hi!", doc.Content)
}

func TestLoadMarkdown(t *testing.T) {
	doc, err := Load([]byte("# Title\n\nBody."), "readme.md", "")
	require.NoError(t, err)
	assert.Equal(t, "markdown", doc.Metadata["type"])
	assert.Contains(t, doc.Content, "Body.")
}

func TestLoadHTML(t *testing.T) {
	html := `<html><head><title>My Page</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><h1>Heading</h1><p>First paragraph.</p><p>Second.</p></body></html>`

	doc, err := Load([]byte(html), "page.html", "")
	require.NoError(t, err)
	assert.Equal(t, "html", doc.Metadata["type"])
	assert.Equal(t, "My Page", doc.Metadata["title"])
	assert.Contains(t, doc.Content, "Heading")
	assert.Contains(t, doc.Content, "First paragraph.")
	assert.Contains(t, doc.Content, "Second.")
	assert.NotContains(t, doc.Content, "alert")
	assert.NotContains(t, doc.Content, "color:red")
}

func TestLoadJSONL(t *testing.T) {
	data := `{"text": "first record"}
{"content": "second record"}

{"text": ""}
`
	doc, err := Load([]byte(data), "data.jsonl", "")
	require.NoError(t, err)
	assert.Equal(t, "first record\n\nsecond record", doc.Content)
	assert.Equal(t, "2", doc.Metadata["records"])
}

func TestLoadJSONLMalformed(t *testing.T) {
	_, err := Load([]byte(`{"text": "ok"}`+"\n"+`{not json`), "data.jsonl", "")
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "data.jsonl", procErr.Filename)
}

func TestLoadContentTypeFallback(t *testing.T) {
	doc, err := Load([]byte("from content type"), "upload", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "from content type", doc.Content)

	doc, err = Load([]byte("<p>html body</p>"), "upload", "text/html")
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "html body")
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load([]byte{1, 2, 3}, "image.png", "image/png")
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, err.Error(), "unsupported format")
}
