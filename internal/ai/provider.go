package ai

import (
	"context"
	"fmt"

	"github.com/liao/ragserve/internal/config"
)

// NewEmbedderFromConfig builds the embedding backend named in cfg. The
// returned embedder still needs Ready before first use.
func NewEmbedderFromConfig(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllama(OllamaConfig{
			BaseURL:    cfg.BaseURL,
			EmbedModel: cfg.Model,
			Timeout:    cfg.Timeout(),
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			EmbedModel: cfg.Model,
			Timeout:    cfg.Timeout(),
		})
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

func NewGeneratorFromConfig(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Backend {
	case "ollama":
		return NewOllama(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			ChatModel:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout(),
		}), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			ChatModel:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout(),
		})
	case "gemini":
		return NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			ChatModel:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   int32(cfg.MaxTokens),
		})
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
