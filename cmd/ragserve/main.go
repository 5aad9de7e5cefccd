package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/liao/ragserve/internal/ai"
	"github.com/liao/ragserve/internal/auth"
	"github.com/liao/ragserve/internal/chunker"
	"github.com/liao/ragserve/internal/config"
	"github.com/liao/ragserve/internal/engine"
	"github.com/liao/ragserve/internal/server"
	"github.com/liao/ragserve/internal/user"
	"github.com/liao/ragserve/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder, err := ai.NewEmbedderFromConfig(ctx, cfg.Embedding)
	if err != nil {
		slog.Error("create embedder failed", "error", err)
		os.Exit(1)
	}
	if err := embedder.Ready(ctx); err != nil {
		slog.Error("embedding backend not ready", "backend", cfg.Embedding.Backend, "error", err)
		os.Exit(1)
	}
	slog.Info("embedder initialized", "model", cfg.Embedding.Model, "dimension", embedder.Dimension())

	generator, err := ai.NewGeneratorFromConfig(ctx, cfg.LLM)
	if err != nil {
		slog.Error("create generator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("generator initialized", "backend", cfg.LLM.Backend, "model", cfg.LLM.Model)

	users, err := user.NewStore(cfg.Auth.UsersDBPath)
	if err != nil {
		slog.Error("open user store failed", "error", err)
		os.Exit(1)
	}
	defer users.Close()

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())

	registry, err := server.NewRegistry(cfg.Server.MaxEngines, func(userID string) (*engine.Engine, error) {
		store, err := newStore(cfg.Store, userID)
		if err != nil {
			return nil, err
		}
		ch := chunker.New(
			chunker.WithChunkSize(cfg.RAG.ChunkSize),
			chunker.WithChunkOverlap(cfg.RAG.ChunkOverlap),
		)
		return engine.New(ch, store, embedder, generator, engine.Config{
			TopK:             cfg.RAG.TopK,
			MaxContextLength: cfg.RAG.MaxContextLength,
		}), nil
	})
	if err != nil {
		slog.Error("create engine registry failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(users, tokens, registry, embedder, generator, cfg.Server.MaxUploadMB)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
		cancel()
	}()

	slog.Info("server listening", "addr", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// newStore builds the per-user collection on the configured backend.
// File collections live under one directory per user; Qdrant collections
// are name-scoped.
func newStore(cfg config.StoreConfig, userID string) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "file":
		return vectorstore.NewFileStore(filepath.Join(cfg.Path, userID), "docs"), nil
	case "qdrant":
		return vectorstore.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, "user_"+userID)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
