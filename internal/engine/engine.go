// Package engine orchestrates the retrieval pipeline: chunk, embed, store,
// search, and assemble context for generation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/liao/ragserve/internal/ai"
	"github.com/liao/ragserve/internal/chunker"
	"github.com/liao/ragserve/internal/vectorstore"
)

const ragSystemPrompt = `You are a helpful AI assistant. Answer the user's question based on the provided context.

Instructions:
- Use ONLY the information from the context to answer
- If the context doesn't contain relevant information, say so
- Be concise and direct in your response
- Do not make up information

Context:
%s
`

const noContextMarker = "No relevant context found."

const (
	DefaultTopK             = 3
	DefaultMaxContextLength = 2000
)

// RetrievalError wraps any failure on the retrieve-then-generate path so
// callers see one error vocabulary regardless of which collaborator failed.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type Config struct {
	TopK             int
	MaxContextLength int
}

// Engine owns one chunker and one store per user-scoped collection.
// It must not be shared across collections.
type Engine struct {
	chunker   *chunker.Chunker
	store     vectorstore.Store
	embedder  ai.Embedder
	generator ai.Generator

	topK          int
	maxContextLen int
}

func New(ch *chunker.Chunker, store vectorstore.Store, embedder ai.Embedder, generator ai.Generator, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	return &Engine{
		chunker:       ch,
		store:         store,
		embedder:      embedder,
		generator:     generator,
		topK:          cfg.TopK,
		maxContextLen: cfg.MaxContextLength,
	}
}

type IngestResult struct {
	IngestedCount int           `json:"ingested_count"`
	ChunkCount    int           `json:"chunk_count"`
	Elapsed       time.Duration `json:"-"`
}

type QueryResult struct {
	Answer  string               `json:"answer"`
	Sources []vectorstore.Result `json:"sources"`
	Elapsed time.Duration        `json:"-"`
}

// Ingest chunks the documents, embeds every chunk in one batched provider
// call, adds the records to the store and persists. A batch that produces
// zero chunks is a successful no-op that never touches the embedder.
func (e *Engine) Ingest(ctx context.Context, docs []chunker.Document) (IngestResult, error) {
	start := time.Now()

	chunks := e.chunker.Process(docs)
	if len(chunks) == 0 {
		return IngestResult{}, nil
	}

	texts := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
		metadatas[i] = ch.Metadata
	}

	slog.Info("embedding chunks", "count", len(texts))
	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed chunks: %w", err)
	}

	if _, err := e.store.Add(ctx, texts, vectors, metadatas, nil); err != nil {
		return IngestResult{}, fmt.Errorf("store chunks: %w", err)
	}
	if err := e.store.Persist(ctx); err != nil {
		return IngestResult{}, fmt.Errorf("persist collection: %w", err)
	}

	elapsed := time.Since(start)
	slog.Info("ingested documents", "documents", len(docs), "chunks", len(chunks), "elapsed", elapsed)
	return IngestResult{IngestedCount: len(docs), ChunkCount: len(chunks), Elapsed: elapsed}, nil
}

// Retrieve embeds the query and returns the topK most similar chunks.
// topK <= 0 falls back to the configured default.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.Result, error) {
	if topK <= 0 {
		topK = e.topK
	}

	vectors, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Op: "embed query", Err: err}
	}
	if len(vectors) != 1 {
		return nil, &RetrievalError{Op: "embed query", Err: fmt.Errorf("got %d vectors for one query", len(vectors))}
	}

	results, err := e.store.Search(ctx, vectors[0], topK, nil)
	if err != nil {
		return nil, &RetrievalError{Op: "search", Err: err}
	}
	slog.Info("retrieved chunks", "query_len", len(query), "results", len(results))
	return results, nil
}

// BuildContext renders retrieved chunks as an enumerated list bounded by
// the configured maximum context length.
func (e *Engine) BuildContext(results []vectorstore.Result) string {
	if len(results) == 0 {
		return noContextMarker
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, r.Text)
	}
	context := strings.Join(parts, "\n\n")

	if runes := []rune(context); len(runes) > e.maxContextLen {
		context = string(runes[:e.maxContextLen]) + "..."
	}
	return context
}

// Query runs the full pipeline: retrieve, build context, generate.
func (e *Engine) Query(ctx context.Context, question string, topK int) (QueryResult, error) {
	start := time.Now()

	sources, err := e.Retrieve(ctx, question, topK)
	if err != nil {
		return QueryResult{}, err
	}

	system := fmt.Sprintf(ragSystemPrompt, e.BuildContext(sources))
	answer, err := e.generator.Generate(ctx, question, system)
	if err != nil {
		return QueryResult{}, &RetrievalError{Op: "generate", Err: err}
	}

	return QueryResult{Answer: answer, Sources: sources, Elapsed: time.Since(start)}, nil
}

// QueryStream is Query with the answer delivered as generated fragments.
// The retrieved sources come back with the final return so callers can
// emit them once the stream ends.
func (e *Engine) QueryStream(ctx context.Context, question string, topK int, fn func(fragment string) error) ([]vectorstore.Result, error) {
	sources, err := e.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	system := fmt.Sprintf(ragSystemPrompt, e.BuildContext(sources))
	if err := e.generator.GenerateStream(ctx, question, system, fn); err != nil {
		return sources, &RetrievalError{Op: "generate", Err: err}
	}
	return sources, nil
}

// QueryWithoutRAG asks the generator directly, skipping retrieval. Useful
// for comparing answers with and without the knowledge base.
func (e *Engine) QueryWithoutRAG(ctx context.Context, question string) (QueryResult, error) {
	start := time.Now()

	answer, err := e.generator.Generate(ctx, question, "")
	if err != nil {
		return QueryResult{}, &RetrievalError{Op: "generate", Err: err}
	}
	return QueryResult{Answer: answer, Sources: []vectorstore.Result{}, Elapsed: time.Since(start)}, nil
}

type Stats struct {
	Store          vectorstore.Stats `json:"vector_store"`
	EmbeddingModel string            `json:"embedding_model"`
	LLMModel       string            `json:"llm_model"`
}

func (e *Engine) Stats(ctx context.Context) Stats {
	return Stats{
		Store:          e.store.Stats(ctx),
		EmbeddingModel: e.embedder.Model(),
		LLMModel:       e.generator.Model(),
	}
}

// DeleteDocuments drops the collection and its persisted artifacts.
func (e *Engine) DeleteDocuments(ctx context.Context) error {
	return e.store.DeleteCollection(ctx)
}

// Close persists outstanding state. Called when the owning registry evicts
// the engine.
func (e *Engine) Close(ctx context.Context) error {
	return e.store.Persist(ctx)
}
