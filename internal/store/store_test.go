package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemoryStore(),
	}
}

func TestSearchOrdersByDistanceThenID(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Reset(ctx, 2); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			ids := []int64{0, 1, 2, 3}
			vecs := [][]float32{{3, 0}, {1, 0}, {0, 1}, {5, 5}}
			if err := s.InsertEmbeddings(ctx, ids, vecs); err != nil {
				t.Fatalf("InsertEmbeddings: %v", err)
			}
			hits, err := s.Search(ctx, []float32{0, 0}, 3)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			// 1 and 2 are both at distance 1; the lower ID wins.
			want := []int64{1, 2, 0}
			if len(hits) != len(want) {
				t.Fatalf("hits = %+v", hits)
			}
			for i := range want {
				if hits[i].ID != want[i] {
					t.Fatalf("hits = %+v, want ids %v", hits, want)
				}
			}
			if hits[0].Distance > hits[2].Distance {
				t.Fatalf("distances not ascending: %+v", hits)
			}
		})
	}
}

func TestSearchEdgeCases(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if hits, err := s.Search(ctx, []float32{1}, 3); err != nil || len(hits) != 0 {
				t.Fatalf("empty store: hits=%v err=%v", hits, err)
			}
			if err := s.Reset(ctx, 3); err != nil {
				t.Fatal(err)
			}
			if err := s.InsertEmbeddings(ctx, []int64{0}, [][]float32{{1, 2, 3}}); err != nil {
				t.Fatal(err)
			}
			if hits, err := s.Search(ctx, []float32{1, 2, 3}, 0); err != nil || len(hits) != 0 {
				t.Fatalf("k=0: hits=%v err=%v", hits, err)
			}
			if hits, err := s.Search(ctx, []float32{1, 2, 3}, 10); err != nil || len(hits) != 1 {
				t.Fatalf("k>n: hits=%v err=%v", hits, err)
			}
			if _, err := s.Search(ctx, []float32{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("err = %v, want ErrDimensionMismatch", err)
			}
			err := s.InsertEmbeddings(ctx, []int64{1}, [][]float32{{1}})
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("err = %v, want ErrDimensionMismatch", err)
			}
		})
	}
}

func TestChunksAndMeta(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Reset(ctx, 2); err != nil {
				t.Fatal(err)
			}
			recs := []ChunkRecord{
				{ID: 1, FilePath: "b.c", Name: "b", Signature: "int b(void)", StartLine: 3, EndLine: 5, Code: "int b(void) {}\n"},
				{ID: 0, FilePath: "a.c", Name: "a", Signature: "int a(void)", StartLine: 1, EndLine: 1, Code: "int a(void) {}\n"},
			}
			if err := s.InsertChunks(ctx, recs); err != nil {
				t.Fatalf("InsertChunks: %v", err)
			}
			got, err := s.ListChunks(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Name != "a" || got[1].EndLine != 5 {
				t.Fatalf("chunks = %+v", got)
			}

			if err := s.SetMeta(MetaModel, "nomic-embed-text"); err != nil {
				t.Fatal(err)
			}
			if v, _ := s.GetMeta(MetaModel); v != "nomic-embed-text" {
				t.Fatalf("meta = %q", v)
			}
			if v, _ := s.GetMeta("missing"); v != "" {
				t.Fatalf("missing meta = %q", v)
			}

			if err := s.Reset(ctx, 4); err != nil {
				t.Fatal(err)
			}
			if got, _ := s.ListChunks(ctx); len(got) != 0 {
				t.Fatalf("Reset kept chunks: %+v", got)
			}
			if s.Dimension() != 4 {
				t.Fatalf("dimension = %d", s.Dimension())
			}
		})
	}
}

func TestSQLiteReopenKeepsDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertEmbeddings(ctx, []int64{7}, [][]float32{{0, 0, 1}}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Dimension() != 3 {
		t.Fatalf("dimension = %d, want 3", s.Dimension())
	}
	hits, err := s.Search(ctx, []float32{0, 0, 1}, 1)
	if err != nil || len(hits) != 1 || hits[0].ID != 7 {
		t.Fatalf("hits = %v err = %v", hits, err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Reset(ctx, 2); err != nil {
				t.Fatal(err)
			}
			if err := s.InsertChunks(ctx, []ChunkRecord{{ID: 0, FilePath: "a.c", Name: "a"}}); err != nil {
				t.Fatal(err)
			}
			if err := s.InsertEmbeddings(ctx, []int64{0}, [][]float32{{1, 0}}); err != nil {
				t.Fatal(err)
			}
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if s.Dimension() != 0 {
				t.Fatalf("dimension = %d after Clear", s.Dimension())
			}
			if got, _ := s.ListChunks(ctx); len(got) != 0 {
				t.Fatalf("Clear kept chunks: %+v", got)
			}
			if hits, err := s.Search(ctx, []float32{1, 0}, 1); err != nil || len(hits) != 0 {
				t.Fatalf("hits=%v err=%v after Clear", hits, err)
			}
			// The store is usable again after a Reset.
			if err := s.Reset(ctx, 3); err != nil {
				t.Fatalf("Reset after Clear: %v", err)
			}
		})
	}
}

func TestSQLiteClearSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertChunks(ctx, []ChunkRecord{{ID: 0, FilePath: "a.c", Name: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Dimension() != 0 {
		t.Fatalf("dimension = %d after reopen", s.Dimension())
	}
	if got, _ := s.ListChunks(ctx); len(got) != 0 {
		t.Fatalf("chunks = %+v after reopen", got)
	}
}
