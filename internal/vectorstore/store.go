// Package vectorstore provides durable, append-only storage of embedded
// chunks per named collection, with exact cosine-similarity top-k search.
package vectorstore

import (
	"context"
	"fmt"
	"math"
)

// Record is one stored entry. Records are created by Add, never mutated,
// and removed only by deleting the whole collection.
type Record struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is one search hit, ordered by descending score.
type Result struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Stats is a read-only snapshot of a collection.
type Stats struct {
	Name          string `json:"name"`
	DocumentCount int    `json:"document_count"`
	Location      string `json:"location"`
}

// StoreError reports a persistence or consistency failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vectorstore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is the contract shared by the file-backed store and the Qdrant
// client. A store is owned by exactly one engine instance at a time;
// concurrent writers to the same collection are not supported.
type Store interface {
	// Add appends records in memory (or upserts remotely). One id is
	// generated per record when ids is nil; metadatas may be nil.
	Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]string, ids []string) ([]string, error)

	// Persist makes all prior additions durable. No-op when empty.
	Persist(ctx context.Context) error

	// Search returns the topK records most similar to vector, descending
	// by cosine similarity, ties in insertion order. filter keeps only
	// records whose metadata contains every given key/value pair.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Result, error)

	// DeleteCollection clears the collection and its persisted artifacts.
	// Deleting an absent collection succeeds.
	DeleteCollection(ctx context.Context) error

	// Stats and Count take a context because the Qdrant backend answers
	// them with a network call; the file store ignores it.
	Stats(ctx context.Context) Stats
	Count(ctx context.Context) int
}

// cosineSimilarity guards against zero-magnitude vectors: similarity
// against a zero vector is defined as 0.
func cosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func matchesFilter(meta, filter map[string]string) bool {
	for k, v := range filter {
		if meta[k] != v {
			return false
		}
	}
	return true
}
