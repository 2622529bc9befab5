package repo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://github.com/dvhar/dateparse", "dateparse"},
		{"https://github.com/dvhar/dateparse.git", "dateparse"},
		{"https://github.com/dvhar/dateparse/", "dateparse"},
		{"git@github.com:owner/kv.store.git", "kv.store"},
		{"file:///tmp/src/mylib", "mylib"},
	}
	for _, tt := range tests {
		got, err := Name(tt.url)
		if err != nil || got != tt.want {
			t.Errorf("Name(%q) = %q, %v; want %q", tt.url, got, err, tt.want)
		}
	}
	if _, err := Name("no-slash"); err == nil {
		t.Error("expected error for URL without a path")
	}
}

func TestFetchLocalDirectory(t *testing.T) {
	dir := t.TempDir()
	f := &Fetcher{OutputDir: t.TempDir()}
	got, err := f.Fetch(context.Background(), dir, "deadbeef")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	abs, _ := filepath.Abs(dir)
	if got != abs {
		t.Fatalf("path = %q, want %q", got, abs)
	}
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
		"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestFetchClonesURL(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	src := filepath.Join(t.TempDir(), "mylib")
	if err := os.MkdirAll(filepath.Join(src, ".github", "workflows"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "lib.c"), []byte("int f(void) { return 1; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, ".github", "workflows", "ci.yml"), []byte("on: push\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, src, "init", "-q")
	run(t, src, "add", ".")
	run(t, src, "commit", "-q", "-m", "init")

	out := t.TempDir()
	stale := filepath.Join(out, "mylib", "stale.c")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Fetcher{OutputDir: out}
	dest, err := f.Fetch(context.Background(), "file://"+src, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Base(dest) != "mylib" {
		t.Fatalf("dest = %q", dest)
	}
	if _, err := os.Stat(filepath.Join(dest, "lib.c")); err != nil {
		t.Fatalf("lib.c missing: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale file survived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, ".github")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf(".github survived: %v", err)
	}
}
