package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Gemini backs both contracts with the Gemini API.
type Gemini struct {
	client      *genai.Client
	chatModel   string
	embedModel  string
	temperature float32
	maxTokens   int32

	dimension int
}

type GeminiConfig struct {
	APIKey      string
	ChatModel   string
	EmbedModel  string
	Temperature float32
	MaxTokens   int32
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	return &Gemini{
		client:      client,
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *Gemini) config(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func retryable(err error) bool {
	return strings.Contains(err.Error(), "429") || strings.Contains(err.Error(), "RESOURCE_EXHAUSTED")
}

func (g *Gemini) Generate(ctx context.Context, prompt, system string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.chatModel, contents, g.config(system))
		if err == nil {
			return resp.Text(), nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		slog.Warn("gemini quota exceeded, retrying", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return "", &ProviderError{Backend: "gemini", Op: "generate", Err: ctx.Err()}
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	return "", &ProviderError{Backend: "gemini", Op: "generate", Err: lastErr}
}

func (g *Gemini) GenerateStream(ctx context.Context, prompt, system string, fn func(string) error) error {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.chatModel, contents, g.config(system)) {
		if err != nil {
			return &ProviderError{Backend: "gemini", Op: "generate_stream", Err: err}
		}
		if text := resp.Text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	return nil
}

// HealthCheck issues a minimal generation; the Gemini API has no cheap
// liveness endpoint.
func (g *Gemini) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText("ping", genai.RoleUser)}
	_, err := g.client.Models.GenerateContent(ctx, g.chatModel, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: 1,
	})
	return err == nil
}

// ListModels returns the configured models; the backend does not expose a
// listing call worth the quota.
func (g *Gemini) ListModels(context.Context) ([]string, error) {
	return []string{g.chatModel, g.embedModel}, nil
}

func (g *Gemini) Model() string {
	if g.chatModel != "" {
		return g.chatModel
	}
	return g.embedModel
}

func (g *Gemini) Ready(ctx context.Context) error {
	if g.dimension != 0 {
		return nil
	}
	vecs, err := g.EmbedTexts(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return &ProviderError{Backend: "gemini", Op: "ready", Err: errors.New("empty probe embedding")}
	}
	return nil
}

func (g *Gemini) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var resp *genai.EmbedContentResponse
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		r, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
		if err == nil {
			resp = r
			break
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		slog.Warn("gemini embed rate limited, retrying", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, &ProviderError{Backend: "gemini", Op: "embed", Err: ctx.Err()}
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
	if resp == nil {
		return nil, &ProviderError{Backend: "gemini", Op: "embed", Err: lastErr}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &ProviderError{Backend: "gemini", Op: "embed", Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	if g.dimension == 0 && len(vectors) > 0 {
		g.dimension = len(vectors[0])
	}
	return vectors, nil
}

func (g *Gemini) Dimension() int { return g.dimension }
