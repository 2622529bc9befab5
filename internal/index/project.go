package index

import (
	"context"
	"fmt"
	"log/slog"

	"overhaul/internal/chunker/languages"
	"overhaul/internal/config"
	"overhaul/internal/embedder"
	"overhaul/internal/store"
	"overhaul/internal/walker"
)

// WalkerOptions returns the file selection rules for cfg.
func WalkerOptions(cfg config.ProjectConfig) walker.Options {
	return walker.Options{
		Extensions:   cfg.Extensions,
		IgnoredFiles: cfg.IgnoredFiles,
		IgnoredDirs:  cfg.IgnoredDirs,
		SkipPrefixes: []string{"harness"},
		MaxFileSize:  walker.DefaultMaxFileSize,
	}
}

// OpenStore opens the vector store named by cfg.Store. dbPath is only used by the
// sqlite store; empty means in memory.
func OpenStore(cfg config.EmbeddingConfig, dbPath string) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		return store.Open(dbPath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// BuildProject chunks the C sources under root and builds an index over them.
func BuildProject(ctx context.Context, root string, cfg *config.Config, emb embedder.Embedder, s store.Store, onProgress ProgressFunc, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch := languages.NewCChunker(nil)
	if onProgress != nil {
		onProgress("Parsing sources...", 0, 0)
	}
	chunks, err := ch.Extract(ctx, root, WalkerOptions(cfg.Project), 0)
	if err != nil {
		return nil, fmt.Errorf("extract chunks: %w", err)
	}
	logger.Info("extracted chunks", "root", root, "chunks", len(chunks))

	return Build(ctx, chunks, emb, Options{
		Store:      s,
		BatchSize:  cfg.Embedding.BatchSize,
		Workers:    cfg.Embedding.Workers,
		Root:       root,
		OnProgress: onProgress,
		Logger:     logger,
	})
}
