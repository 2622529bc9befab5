package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores embeddings on disk, one msgpack file per (model, text) pair.
type Cache struct {
	dir string
}

type cacheEntry struct {
	Model  string
	Vector []float32
}

// OpenCache opens a cache rooted at dir. An empty dir selects
// $XDG_CACHE_HOME/overhaul/embeddings (or ~/.cache/overhaul/embeddings).
func OpenCache(dir string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "overhaul", "embeddings")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, key[:2], key+".mp")
}

// Get returns the cached vector for (model, text), if present.
func (c *Cache) Get(model, text string) ([]float32, bool, error) {
	f, err := os.Open(c.pathFor(cacheKey(model, text)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var entry cacheEntry
	if err := msgpack.NewDecoder(f).Decode(&entry); err != nil {
		return nil, false, err
	}
	if entry.Model != model {
		return nil, false, nil
	}
	return entry.Vector, true, nil
}

// Put writes vec atomically.
func (c *Cache) Put(model, text string, vec []float32) error {
	p := c.pathFor(cacheKey(model, text))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(cacheEntry{Model: model, Vector: vec}); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Cached serves embeddings from a Cache and forwards misses to the wrapped embedder.
type Cached struct {
	inner  Embedder
	cache  *Cache
	logger *slog.Logger
}

// NewCached wraps inner with cache.
func NewCached(inner Embedder, cache *Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: cache, logger: logger}
}

// Model returns the wrapped embedder's model.
func (c *Cached) Model() string { return c.inner.Model() }

// Embed returns cached vectors where possible and embeds the rest in one call.
// Cache read or write failures are logged and otherwise ignored.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := c.inner.Model()

	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		vec, ok, err := c.cache.Get(model, t)
		if err != nil {
			c.logger.Warn("embedding cache read failed", "err", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missTexts), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.Put(model, texts[i], vecs[j]); err != nil {
			c.logger.Warn("embedding cache write failed", "err", err)
		}
	}
	c.logger.Debug("embedded", "cached", len(texts)-len(missTexts), "fetched", len(missTexts))
	return out, nil
}
