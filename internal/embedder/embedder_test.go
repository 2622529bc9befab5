package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %s", req.Model)
		}
		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/", "nomic-embed-text", time.Second)
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestOllamaEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for mismatched count")
	}
}

func TestOpenAIEmbedRetriesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "text-embedding-3-small", "sk-test", time.Second)
	e.backoff = time.Millisecond
	got, err := e.Embed(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Fatalf("got %v, want input order", got)
	}
}

func TestOpenAIEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "m", "k", time.Second)
	e.backoff = time.Millisecond
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

type countingEmbedder struct {
	calls int
	texts []string
}

func (c *countingEmbedder) Model() string { return "fake" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func TestCachedAvoidsSecondCall(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	inner := &countingEmbedder{}
	c := NewCached(inner, cache, nil)
	ctx := context.Background()

	first, err := c.Embed(ctx, []string{"abc", "de"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := c.Embed(ctx, []string{"de", "abc"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
	if first[0][0] != second[1][0] || first[1][0] != second[0][0] || second[0][1] != 0.5 {
		t.Fatalf("cached vectors differ: %v vs %v", first, second)
	}

	if _, err := c.Embed(ctx, []string{"abc", "new"}); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 || inner.texts[len(inner.texts)-1] != "new" || len(inner.texts) != 3 {
		t.Fatalf("only the miss should be fetched, got %v", inner.texts)
	}
}

func TestOpenCacheUsesXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	c, err := OpenCache("")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("m", "t", []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	vec, ok, err := c.Get("m", "t")
	if err != nil || !ok || len(vec) != 3 {
		t.Fatalf("vec=%v ok=%v err=%v", vec, ok, err)
	}
	if _, ok, _ := c.Get("other-model", "t"); ok {
		t.Fatal("key must include the model")
	}
}
