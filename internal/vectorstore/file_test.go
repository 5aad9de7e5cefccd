package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	ids, err := s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0, 1}},
		nil, nil,
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	results, err := s.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestFileStoreSearchEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	for _, topK := range []int{0, 1, 10} {
		results, err := s.Search(ctx, []float32{1, 0}, topK, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestFileStoreSearchOrderingAndTies(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	// "first" and "second" are identical vectors: the tie must resolve in
	// insertion order. "far" scores lowest.
	_, err := s.Add(ctx,
		[]string{"first", "second", "far"},
		[][]float32{{1, 0}, {2, 0}, {0, 1}},
		nil, nil,
	)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "second", results[1].Text)
	assert.Equal(t, "far", results[2].Text)

	// topK above collection size returns everything.
	results, err = s.Search(ctx, []float32{1, 0}, 100, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestFileStoreZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	_, err := s.Add(ctx, []string{"a"}, [][]float32{{0, 0}}, nil, nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)

	// Zero query against a normal record also scores zero.
	results, err = s.Search(ctx, []float32{0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].Score)
}

func TestFileStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	_, err := s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}, nil, nil)
	require.NoError(t, err)

	_, err = s.Add(ctx, []string{"b"}, [][]float32{{1, 0}}, nil, nil)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "add", storeErr.Op)
}

func TestFileStoreLengthMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	_, err := s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}}, nil, nil)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
}

func TestFileStorePersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewFileStore(dir, "docs")
	texts := []string{"alpha", "beta", "gamma"}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	metas := []map[string]string{
		{"source": "a.txt"}, {"source": "b.txt"}, {"source": "c.txt"},
	}
	ids, err := s.Add(ctx, texts, vectors, metas, nil)
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx))

	reloaded := NewFileStore(dir, "docs")
	assert.Equal(t, len(texts), reloaded.Stats(context.Background()).DocumentCount)

	for i, id := range ids {
		results, err := reloaded.Search(ctx, vectors[i], 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, id, results[0].ID)
		assert.Equal(t, texts[i], results[0].Text)
		assert.Equal(t, metas[i], results[0].Metadata)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	}
}

func TestFileStorePersistEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "docs")
	require.NoError(t, s.Persist(context.Background()))
	_, err := os.Stat(filepath.Join(dir, "docs.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreLoadCorruptArtifactStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.json"), []byte("{not json"), 0o644))

	s := NewFileStore(dir, "docs")
	assert.Equal(t, 0, s.Count(context.Background()))
}

func TestFileStoreDeleteCollection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := NewFileStore(dir, "docs")
	_, err := s.Add(ctx, []string{"a"}, [][]float32{{1}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Persist(ctx))

	require.NoError(t, s.DeleteCollection(ctx))
	assert.Equal(t, 0, s.Count(context.Background()))
	_, err = os.Stat(filepath.Join(dir, "docs.json"))
	assert.True(t, os.IsNotExist(err))

	// Idempotent: deleting again succeeds.
	require.NoError(t, s.DeleteCollection(ctx))

	reloaded := NewFileStore(dir, "docs")
	assert.Equal(t, 0, reloaded.Stats(context.Background()).DocumentCount)
}

func TestFileStoreMetadataFilter(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), "docs")

	_, err := s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {1, 0}, {1, 0}},
		[]map[string]string{
			{"lang": "go"}, {"lang": "py"}, {"lang": "go"},
		},
		nil,
	)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 0}, 10, map[string]string{"lang": "go"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "c", results[1].Text)
}

func TestFileStoreStats(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "docs")
	st := s.Stats(context.Background())
	assert.Equal(t, "docs", st.Name)
	assert.Equal(t, 0, st.DocumentCount)
	assert.Equal(t, dir, st.Location)
}
