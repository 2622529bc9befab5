package index

import (
	"context"
	"fmt"
	"log/slog"

	"fortio.org/safecast"

	"overhaul/internal/chunker"
	"overhaul/internal/embedder"
	"overhaul/internal/store"
)

// ErrDimensionMismatch is returned when embeddings disagree on their dimension.
// It is the store's sentinel, so either can be matched with errors.Is.
var ErrDimensionMismatch = store.ErrDimensionMismatch

// Index is a read-only nearest-neighbour index over code chunks. Vector IDs are
// positions in chunks.
type Index struct {
	store    store.Store
	embedder embedder.Embedder
	chunks   []chunker.Chunk
	dim      int
	logger   *slog.Logger
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

// Dimension returns the embedding dimension, or 0 for an empty index.
func (idx *Index) Dimension() int { return idx.dim }

// Chunks returns the indexed chunks in ID order.
func (idx *Index) Chunks() []chunker.Chunk { return idx.chunks }

// Query embeds text and returns up to k chunks ordered by ascending L2 distance,
// ties broken by ascending ID.
func (idx *Index) Query(ctx context.Context, text string, k int) ([]chunker.Chunk, error) {
	if k <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}
	vec, err := embedder.EmbedSingle(ctx, idx.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(vec), idx.dim)
	}

	hits, err := idx.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]chunker.Chunk, 0, len(hits))
	for _, h := range hits {
		id, err := safecast.Conv[int](h.ID)
		if err != nil || id < 0 || id >= len(idx.chunks) {
			idx.logger.Debug("dropping hit without metadata", "id", h.ID)
			continue
		}
		out = append(out, idx.chunks[id])
	}
	return out, nil
}

// Root returns the project root recorded when the index was built, or "".
func (idx *Index) Root() string {
	root, err := idx.store.GetMeta(store.MetaRoot)
	if err != nil {
		return ""
	}
	return root
}

// Close releases the underlying store.
func (idx *Index) Close() error {
	return idx.store.Close()
}

// Open restores an index previously built into s. The embedder must use the model
// the index was built with.
func Open(ctx context.Context, s store.Store, emb embedder.Embedder, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	model, err := s.GetMeta(store.MetaModel)
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	if model != "" && model != emb.Model() {
		return nil, fmt.Errorf("index was built with embedding model %q, not %q: rebuild it", model, emb.Model())
	}

	recs, err := s.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	chunks := make([]chunker.Chunk, len(recs))
	for i, r := range recs {
		id, err := safecast.Conv[int](r.ID)
		if err != nil || id != i {
			return nil, fmt.Errorf("index is not contiguous at chunk %d: rebuild it", r.ID)
		}
		chunks[i] = fromRecord(r)
	}
	return &Index{
		store:    s,
		embedder: emb,
		chunks:   chunks,
		dim:      s.Dimension(),
		logger:   logger,
	}, nil
}

func toRecord(id int64, c chunker.Chunk) store.ChunkRecord {
	return store.ChunkRecord{
		ID:        id,
		FilePath:  c.FilePath,
		Name:      c.Name,
		Signature: c.Signature,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Code:      c.Code,
	}
}

func fromRecord(r store.ChunkRecord) chunker.Chunk {
	return chunker.Chunk{
		Code:      r.Code,
		Signature: r.Signature,
		FilePath:  r.FilePath,
		Name:      r.Name,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
	}
}
