package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force Store. Search is linear in the number of vectors.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	vectors map[int64][]float32
	chunks  map[int64]ChunkRecord
	meta    map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[int64][]float32),
		chunks:  make(map[int64]ChunkRecord),
		meta:    make(map[string]string),
	}
}

func (m *MemoryStore) Reset(_ context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	m.vectors = make(map[int64][]float32)
	m.chunks = make(map[int64]ChunkRecord)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = 0
	m.vectors = make(map[int64][]float32)
	m.chunks = make(map[int64]ChunkRecord)
	return nil
}

func (m *MemoryStore) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dim
}

func (m *MemoryStore) InsertChunks(_ context.Context, chunks []ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) ListChunks(_ context.Context) ([]ChunkRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChunkRecord, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertEmbeddings(_ context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("mismatched chunk IDs (%d) and embeddings (%d)", len(ids), len(embeddings))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if len(embeddings[i]) != m.dim {
			return fmt.Errorf("chunk %d: %w: got %d, want %d", id, ErrDimensionMismatch, len(embeddings[i]), m.dim)
		}
		v := make([]float32, len(embeddings[i]))
		copy(v, embeddings[i])
		m.vectors[id] = v
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.vectors) == 0 {
		return nil, nil
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), m.dim)
	}

	hits := make([]Hit, 0, len(m.vectors))
	for id, v := range m.vectors {
		hits = append(hits, Hit{ID: id, Distance: l2(query, v)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) GetMeta(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[key], nil
}

func (m *MemoryStore) SetMeta(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
