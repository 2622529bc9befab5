package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"overhaul/internal/config"
)

// Embedder turns texts into vectors. The returned slice has the same length and order
// as the input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// New builds the embedder described by cfg, wrapped in a disk cache when enabled.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	var e Embedder
	switch cfg.Provider {
	case "ollama":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, timeout)
	case "openai", "":
		key, err := config.APIKey("openai", cfg.APIKeyEnv)
		if err != nil {
			return nil, err
		}
		e = NewOpenAIEmbedder(cfg.BaseURL, cfg.Model, key, timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if !cfg.Cache {
		return e, nil
	}
	cache, err := OpenCache(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return NewCached(e, cache, logger), nil
}

// EmbedSingle embeds a single text and returns the embedding vector.
func EmbedSingle(ctx context.Context, e Embedder, text string) ([]float32, error) {
	results, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(results))
	}
	return results[0], nil
}
