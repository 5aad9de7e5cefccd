package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/liao/ragserve/internal/ai"
	"github.com/liao/ragserve/internal/chunker"
	"github.com/liao/ragserve/internal/config"
	"github.com/liao/ragserve/internal/engine"
	"github.com/liao/ragserve/internal/loader"
	"github.com/liao/ragserve/internal/vectorstore"
)

var supportedExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".jsonl":    true,
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	inputDir := flag.String("dir", "", "directory of documents to ingest")
	query := flag.String("query", "", "question to ask after ingestion")
	collection := flag.String("collection", "local", "collection name")
	noRAG := flag.Bool("no-rag", false, "answer the query without retrieval")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	_ = godotenv.Load()

	if *inputDir == "" && *query == "" {
		fmt.Fprintf(os.Stderr, "Usage: ragctl -dir <documents> [-query <question>] [-collection <name>]\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	embedder, err := ai.NewEmbedderFromConfig(ctx, cfg.Embedding)
	if err != nil {
		slog.Error("create embedder failed", "error", err)
		os.Exit(1)
	}
	if err := embedder.Ready(ctx); err != nil {
		slog.Error("embedding backend not ready", "error", err)
		os.Exit(1)
	}

	generator, err := ai.NewGeneratorFromConfig(ctx, cfg.LLM)
	if err != nil {
		slog.Error("create generator failed", "error", err)
		os.Exit(1)
	}

	store := vectorstore.NewFileStore(filepath.Join(cfg.Store.Path, *collection), "docs")
	ch := chunker.New(
		chunker.WithChunkSize(cfg.RAG.ChunkSize),
		chunker.WithChunkOverlap(cfg.RAG.ChunkOverlap),
	)
	eng := engine.New(ch, store, embedder, generator, engine.Config{
		TopK:             cfg.RAG.TopK,
		MaxContextLength: cfg.RAG.MaxContextLength,
	})

	if *inputDir != "" {
		docs, err := loadDir(*inputDir)
		if err != nil {
			slog.Error("load documents failed", "error", err)
			os.Exit(1)
		}
		if len(docs) == 0 {
			slog.Warn("no supported documents found", "dir", *inputDir)
		} else {
			res, err := eng.Ingest(ctx, docs)
			if err != nil {
				slog.Error("ingest failed", "error", err)
				os.Exit(1)
			}
			fmt.Printf("Ingested %d documents (%d chunks) in %s\n",
				res.IngestedCount, res.ChunkCount, res.Elapsed.Round(time.Millisecond))
		}
	}

	if *query != "" {
		var res engine.QueryResult
		if *noRAG {
			res, err = eng.QueryWithoutRAG(ctx, *query)
		} else {
			res, err = eng.Query(ctx, *query, 0)
		}
		if err != nil {
			slog.Error("query failed", "error", err)
			os.Exit(1)
		}

		fmt.Println(res.Answer)
		for i, src := range res.Sources {
			preview := src.Text
			if runes := []rune(preview); len(runes) > 120 {
				preview = string(runes[:120]) + "..."
			}
			fmt.Printf("  [%d] score=%.3f %s\n", i+1, src.Score, preview)
		}
	}
}

// loadDir walks dir and loads every file with a supported extension.
func loadDir(dir string) ([]chunker.Document, error) {
	var docs []chunker.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := loader.Load(content, filepath.Base(path), "")
		if err != nil {
			slog.Warn("skipping file", "path", path, "error", err)
			return nil
		}
		docs = append(docs, chunker.Document{Content: doc.Content, Metadata: doc.Metadata})
		slog.Info("loaded document", "path", path, "bytes", len(content))
		return nil
	})
	return docs, err
}
