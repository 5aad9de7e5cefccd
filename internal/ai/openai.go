package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI backs both contracts with an OpenAI-compatible API endpoint.
type OpenAI struct {
	client      *openai.Client
	chatModel   string
	embedModel  string
	temperature float32
	maxTokens   int

	dimension int
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (o *OpenAI) chatRequest(prompt, system string, stream bool) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return openai.ChatCompletionRequest{
		Model:       o.chatModel,
		Messages:    messages,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Stream:      stream,
	}
}

func (o *OpenAI) Generate(ctx context.Context, prompt, system string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.chatRequest(prompt, system, false))
	if err != nil {
		return "", &ProviderError{Backend: "openai", Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Backend: "openai", Op: "generate", Err: errors.New("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) GenerateStream(ctx context.Context, prompt, system string, fn func(string) error) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.chatRequest(prompt, system, true))
	if err != nil {
		return &ProviderError{Backend: "openai", Op: "generate_stream", Err: err}
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ProviderError{Backend: "openai", Op: "generate_stream", Err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if err := fn(delta); err != nil {
				return err
			}
		}
	}
}

func (o *OpenAI) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := o.client.ListModels(ctx)
	return err == nil
}

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, &ProviderError{Backend: "openai", Op: "list_models", Err: err}
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func (o *OpenAI) Model() string {
	if o.chatModel != "" {
		return o.chatModel
	}
	return o.embedModel
}

func (o *OpenAI) Ready(ctx context.Context) error {
	if o.dimension != 0 {
		return nil
	}
	vecs, err := o.EmbedTexts(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return &ProviderError{Backend: "openai", Op: "ready", Err: errors.New("empty probe embedding")}
	}
	return nil
}

func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: texts,
	})
	if err != nil {
		return nil, &ProviderError{Backend: "openai", Op: "embed", Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, &ProviderError{Backend: "openai", Op: "embed", Err: fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))}
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		vectors[i] = vec
	}
	if o.dimension == 0 && len(vectors) > 0 {
		o.dimension = len(vectors[0])
	}
	return vectors, nil
}

func (o *OpenAI) Dimension() int { return o.dimension }
