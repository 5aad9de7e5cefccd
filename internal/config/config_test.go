package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RAGSERVE_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, 2000, cfg.RAG.MaxContextLength)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9090"
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
llm:
  backend: openai
  model: gpt-4o-mini
  api_key: sk-test
embedding:
  backend: openai
  model: text-embedding-3-small
  api_key: sk-test
rag:
  chunk_size: 300
  top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 300, cfg.RAG.ChunkSize)
	assert.Equal(t, 5, cfg.RAG.TopK)
	// Untouched keys keep their defaults.
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)
}

func TestLoadInvalidBackend(t *testing.T) {
	t.Setenv("RAGSERVE_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("RAGSERVE_LLM_BACKEND", "mistralrs")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestLoadMissingSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}

func TestJWTSecretEnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.JWTSecret)
}
