package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"overhaul/internal/chunker"
	"overhaul/internal/embedder"
	"overhaul/internal/store"
)

const (
	defaultBatchSize = 32
	defaultWorkers   = 4
)

// ProgressFunc is called as embedding batches complete. Batches run concurrently, so
// it may be called from several goroutines.
type ProgressFunc func(stage string, done, total int)

// Options configures Build.
type Options struct {
	// Store receives the vectors. Nil selects a MemoryStore.
	Store      store.Store
	BatchSize  int
	Workers    int
	Root       string
	OnProgress ProgressFunc
	Logger     *slog.Logger
}

// Stats reports indexing results.
type Stats struct {
	Files     int
	Chunks    int
	Dimension int
}

// Build embeds every chunk's code and loads the vectors into the store. Chunk i gets
// ID i. The index is ready for queries once Build returns.
func Build(ctx context.Context, chunks []chunker.Chunk, emb embedder.Embedder, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := opts.Store
	if s == nil {
		s = store.NewMemoryStore()
	}
	idx := &Index{store: s, embedder: emb, logger: logger}
	if len(chunks) == 0 {
		logger.Warn("no chunks to index, retrieval will return nothing")
		if err := s.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear store: %w", err)
		}
		if err := setBuildMeta(s, emb, opts.Root); err != nil {
			return nil, err
		}
		return idx, nil
	}

	vectors, err := embedAll(ctx, chunks, emb, opts)
	if err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("chunk %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(v), dim)
		}
	}

	ids := make([]int64, len(chunks))
	recs := make([]store.ChunkRecord, len(chunks))
	for i, c := range chunks {
		id, err := safecast.Conv[int64](i)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		recs[i] = toRecord(id, c)
	}

	if err := s.Reset(ctx, dim); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}
	if err := s.InsertChunks(ctx, recs); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	if err := s.InsertEmbeddings(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("store embeddings: %w", err)
	}
	if err := setBuildMeta(s, emb, opts.Root); err != nil {
		return nil, err
	}

	idx.chunks = append([]chunker.Chunk(nil), chunks...)
	idx.dim = dim
	logger.Info("index built", "chunks", len(chunks), "dimension", dim, "model", emb.Model())
	return idx, nil
}

func setBuildMeta(s store.Store, emb embedder.Embedder, root string) error {
	if err := s.SetMeta(store.MetaModel, emb.Model()); err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	if root != "" {
		if err := s.SetMeta(store.MetaRoot, root); err != nil {
			return fmt.Errorf("set meta: %w", err)
		}
	}
	return nil
}

// embedAll embeds chunk code in batches of opts.BatchSize with up to opts.Workers
// requests in flight. The result is in chunk order.
func embedAll(ctx context.Context, chunks []chunker.Chunk, emb embedder.Embedder, opts Options) ([][]float32, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Code
	}
	vectors := make([][]float32, len(texts))

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			embs, err := emb.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(embs) != end-start {
				return fmt.Errorf("embed chunks %d-%d: expected %d embeddings, got %d", start, end-1, end-start, len(embs))
			}
			// Each batch owns a disjoint range of vectors.
			copy(vectors[start:end], embs)
			n := done.Add(int64(end - start))
			if opts.OnProgress != nil {
				opts.OnProgress("Embedding chunks...", int(n), len(texts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// StatsOf summarises an index.
func StatsOf(idx *Index) Stats {
	files := make(map[string]struct{})
	for _, c := range idx.chunks {
		files[c.FilePath] = struct{}{}
	}
	return Stats{Files: len(files), Chunks: len(idx.chunks), Dimension: idx.dim}
}
