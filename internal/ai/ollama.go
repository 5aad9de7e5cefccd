package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Ollama talks to a local Ollama server. One client serves both the
// generator and embedder contracts; chat and embedding models are
// configured separately.
type Ollama struct {
	baseURL     string
	chatModel   string
	embedModel  string
	temperature float32
	maxTokens   int
	client      *http.Client

	dimension int
}

type OllamaConfig struct {
	BaseURL     string
	ChatModel   string
	EmbedModel  string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	return &Ollama{
		baseURL:     cfg.BaseURL,
		chatModel:   cfg.ChatModel,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) chatRequest(prompt, system string, stream bool) ollamaChatRequest {
	var messages []ollamaMessage
	if system != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})
	return ollamaChatRequest{
		Model:    o.chatModel,
		Messages: messages,
		Stream:   stream,
		Options: map[string]any{
			"temperature": o.temperature,
			"num_predict": o.maxTokens,
		},
	}
}

func (o *Ollama) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return o.client.Do(req)
}

func (o *Ollama) Generate(ctx context.Context, prompt, system string) (string, error) {
	resp, err := o.post(ctx, "/api/chat", o.chatRequest(prompt, system, false))
	if err != nil {
		return "", &ProviderError{Backend: "ollama", Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{Backend: "ollama", Op: "generate", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Backend: "ollama", Op: "generate", Err: err}
	}
	return out.Message.Content, nil
}

func (o *Ollama) GenerateStream(ctx context.Context, prompt, system string, fn func(string) error) error {
	resp, err := o.post(ctx, "/api/chat", o.chatRequest(prompt, system, true))
	if err != nil {
		return &ProviderError{Backend: "ollama", Op: "generate_stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Backend: "ollama", Op: "generate_stream", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &ProviderError{Backend: "ollama", Op: "generate_stream", Err: err}
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return &ProviderError{Backend: "ollama", Op: "generate_stream", Err: err}
	}
	return nil
}

func (o *Ollama) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ProviderError{Backend: "ollama", Op: "list_models", Err: err}
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Backend: "ollama", Op: "list_models", Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Backend: "ollama", Op: "list_models", Err: err}
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Model reports the chat model, or the embedding model when the client is
// configured for embedding only.
func (o *Ollama) Model() string {
	if o.chatModel != "" {
		return o.chatModel
	}
	return o.embedModel
}

// Ready pins the embedding dimension with a one-off probe.
func (o *Ollama) Ready(ctx context.Context) error {
	if o.dimension != 0 {
		return nil
	}
	vecs, err := o.EmbedTexts(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return &ProviderError{Backend: "ollama", Op: "ready", Err: fmt.Errorf("empty probe embedding")}
	}
	return nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *Ollama) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := o.post(ctx, "/api/embed", ollamaEmbedRequest{Model: o.embedModel, Input: texts})
	if err != nil {
		return nil, &ProviderError{Backend: "ollama", Op: "embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Backend: "ollama", Op: "embed", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Backend: "ollama", Op: "embed", Err: err}
	}
	if len(out.Embeddings) != len(texts) {
		return nil, &ProviderError{Backend: "ollama", Op: "embed", Err: fmt.Errorf("got %d embeddings for %d inputs", len(out.Embeddings), len(texts))}
	}
	if o.dimension == 0 && len(out.Embeddings) > 0 {
		o.dimension = len(out.Embeddings[0])
	}
	return out.Embeddings, nil
}

func (o *Ollama) Dimension() int { return o.dimension }
