package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	RAG       RAGConfig       `mapstructure:"rag"`
}

type ServerConfig struct {
	Addr            string `mapstructure:"addr" validate:"required"`
	ReadTimeoutSec  int    `mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb"`
	MaxEngines      int    `mapstructure:"max_engines" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTLHrs int    `mapstructure:"token_ttl_hours"`
	UsersDBPath string `mapstructure:"users_db_path" validate:"required"`
}

type LLMConfig struct {
	Backend     string  `mapstructure:"backend" validate:"oneof=ollama openai gemini"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model" validate:"required"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutSec  int     `mapstructure:"timeout_sec"`
}

type EmbeddingConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=ollama openai gemini"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model" validate:"required"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=file qdrant"`
	Path       string `mapstructure:"path"`
	QdrantHost string `mapstructure:"qdrant_host"`
	QdrantPort int    `mapstructure:"qdrant_port"`
}

type RAGConfig struct {
	ChunkSize        int `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkOverlap     int `mapstructure:"chunk_overlap" validate:"gte=0"`
	TopK             int `mapstructure:"top_k" validate:"gt=0"`
	MaxContextLength int `mapstructure:"max_context_length" validate:"gt=0"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHrs) * time.Hour
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout_sec", 30)
	v.SetDefault("server.write_timeout_sec", 300)
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.max_engines", 256)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 24)
	v.SetDefault("auth.users_db_path", "./data/users.db")

	v.SetDefault("llm.backend", "ollama")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "tinyllama")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout_sec", 120)

	v.SetDefault("embedding.backend", "ollama")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.timeout_sec", 60)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "./data/vectorstore")
	v.SetDefault("store.qdrant_host", "localhost")
	v.SetDefault("store.qdrant_port", 6334)

	v.SetDefault("rag.chunk_size", 500)
	v.SetDefault("rag.chunk_overlap", 50)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("rag.max_context_length", 2000)
}

// Load reads the YAML config at path, applies environment overrides, and
// validates the result. A missing file is not an error: defaults plus
// environment variables are enough for a dev setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RAGSERVE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Provider keys usually arrive via the conventional variables.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if v.GetString("llm.backend") == "openai" && v.GetString("llm.api_key") == "" {
			v.Set("llm.api_key", key)
		}
		if v.GetString("embedding.backend") == "openai" && v.GetString("embedding.api_key") == "" {
			v.Set("embedding.api_key", key)
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if v.GetString("llm.backend") == "gemini" && v.GetString("llm.api_key") == "" {
			v.Set("llm.api_key", key)
		}
		if v.GetString("embedding.backend") == "gemini" && v.GetString("embedding.api_key") == "" {
			v.Set("embedding.api_key", key)
		}
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		v.Set("auth.jwt_secret", secret)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
