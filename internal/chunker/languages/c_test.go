package languages

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"overhaul/internal/chunker"
	"overhaul/internal/walker"
)

const kvSource = `#include "kv.h"

static int helper(int x) { return x * 2; }

int kv_put(kv_t *kv,
           const char *key,
           const char *value)
{
    return helper(kv->n);
}

char *kv_get(kv_t *kv, const char *key);

char *kv_dup(const char *s) {
    return strdup(s);
}
`

func TestChunkCFunctions(t *testing.T) {
	ch := NewCChunker(nil)
	chunks, err := ch.Chunk(context.Background(), "src/kv.c", []byte(kvSource))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %+v", len(chunks), chunks)
	}

	names := []string{chunks[0].Name, chunks[1].Name, chunks[2].Name}
	want := []string{"helper", "kv_put", "kv_dup"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	put := chunks[1]
	if put.StartLine != 5 || put.EndLine != 10 {
		t.Errorf("kv_put lines = %d-%d, want 5-10", put.StartLine, put.EndLine)
	}
	if put.Signature != "int kv_put(kv_t *kv, const char *key, const char *value)" {
		t.Errorf("kv_put signature = %q", put.Signature)
	}
	if !strings.HasPrefix(put.Code, "int kv_put(kv_t *kv,\n") || !strings.HasSuffix(put.Code, "}\n") {
		t.Errorf("kv_put code = %q", put.Code)
	}
	if put.FilePath != "src/kv.c" {
		t.Errorf("file path = %q", put.FilePath)
	}
	if chunks[2].Signature != "char *kv_dup(const char *s)" {
		t.Errorf("kv_dup signature = %q", chunks[2].Signature)
	}
}

func TestChunkDropsOversizedDefinitions(t *testing.T) {
	var b strings.Builder
	b.WriteString("int big(void) {\n")
	for b.Len() <= chunker.MaxChunkBytes {
		b.WriteString("    do_something_long_enough_to_matter();\n")
	}
	b.WriteString("}\n\nint small(void) { return 0; }\n")

	chunks, err := NewCChunker(nil).Chunk(context.Background(), "big.c", []byte(b.String()))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Name != "small" {
		t.Fatalf("chunks = %+v, want only small", chunks)
	}
}

func TestChunkIgnoresUnregisteredExtension(t *testing.T) {
	chunks, err := NewCChunker(nil).Chunk(context.Background(), "kv.py", []byte("def f(): pass\n"))
	if err != nil || chunks != nil {
		t.Fatalf("chunks = %v err = %v", chunks, err)
	}
}

func TestExtractWalksProject(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"src/b.c":             "int b(void) { return 2; }\n",
		"a.c":                 "int a(void) { return 1; }\nint a2(void) { return 3; }\n",
		"main.c":              "int main(void) { return 0; }\n",
		"tests/t.c":           "int t(void) { return 0; }\n",
		"harnesses/harness.c": "int LLVMFuzzerTestOneInput(const unsigned char *d, unsigned long n) { return 0; }\n",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	opts := walker.Options{
		Extensions:   []string{".c", ".h"},
		IgnoredFiles: []string{"main.c"},
		IgnoredDirs:  []string{"tests"},
		SkipPrefixes: []string{"harness"},
	}
	chunks, err := NewCChunker(nil).Extract(context.Background(), root, opts, 2)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var got []string
	for _, c := range chunks {
		got = append(got, c.FilePath+":"+c.Name)
	}
	want := "a.c:a a.c:a2 src/b.c:b"
	if strings.Join(got, " ") != want {
		t.Fatalf("chunks = %v, want %s", got, want)
	}
}
