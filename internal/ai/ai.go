// Package ai holds the text-generation and embedding collaborators the
// retrieval engine depends on, with Ollama, OpenAI and Gemini backends.
package ai

import (
	"context"
	"fmt"
)

// Embedder turns batches of strings into fixed-dimension vectors, one per
// input, in input order. The dimension is discovered during Ready and
// fixed for the process lifetime.
type Embedder interface {
	// Ready probes the backend once and pins the embedding dimension.
	// Callers must see a nil Ready before relying on Dimension.
	Ready(ctx context.Context) error

	// EmbedTexts embeds a batch. An empty batch returns an empty result
	// without a network call.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
	Model() string
}

// Generator produces text from a prompt plus optional system instructions.
// Generation is the one long-suspending call in the pipeline; every method
// honors ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)

	// GenerateStream calls fn once per generated fragment; a non-nil
	// return from fn aborts the stream.
	GenerateStream(ctx context.Context, prompt, system string, fn func(fragment string) error) error

	HealthCheck(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	Model() string
}

// ProviderError reports a connectivity, timeout or protocol failure from a
// backend. It is propagated unchanged through the engine boundary.
type ProviderError struct {
	Backend string
	Op      string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
