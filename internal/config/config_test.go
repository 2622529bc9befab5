package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Synthesis.MaxIterations != 10 {
		t.Fatalf("max iterations = %d, want 10", cfg.Synthesis.MaxIterations)
	}
	if cfg.Build.Executable != "harness" || cfg.Build.Script != "overhaul.sh" {
		t.Fatalf("unexpected build defaults: %+v", cfg.Build)
	}
	if len(cfg.Analysis.Backends) != 1 || cfg.Analysis.Backends[0] != "flawfinder" {
		t.Fatalf("unexpected analysis backends: %v", cfg.Analysis.Backends)
	}
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overhaul.yaml")
	data := `
llm:
  provider: ollama
  model: qwen3:8b
synthesis:
  max_iterations: 3
run:
  clean_artifacts: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "ollama" || cfg.LLM.Model != "qwen3:8b" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.Embedding.Provider != "ollama" || cfg.Embedding.Model != "nomic-embed-text" {
		t.Fatalf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Synthesis.MaxIterations != 3 || cfg.Synthesis.ErrorMaxLines != 200 {
		t.Fatalf("synthesis = %+v", cfg.Synthesis)
	}
	if !cfg.Run.CleanArtifacts {
		t.Fatal("clean_artifacts not loaded")
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overhaul.toml")
	data := `
[build]
cc = "clang-18"
cflags = ["-O1", "-fsanitize=fuzzer"]

[project]
ignored_dirs = ["third_party"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.CC != "clang-18" || len(cfg.Build.CFlags) != 2 {
		t.Fatalf("build = %+v", cfg.Build)
	}
	if len(cfg.Project.IgnoredDirs) != 1 || cfg.Project.IgnoredDirs[0] != "third_party" {
		t.Fatalf("ignored dirs = %v", cfg.Project.IgnoredDirs)
	}
	if cfg.Project.HarnessDir != "harnesses" {
		t.Fatalf("harness dir = %q", cfg.Project.HarnessDir)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Synthesis.RetrievalK = 9
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Synthesis.RetrievalK != 9 {
		t.Fatalf("retrieval k = %d", got.Synthesis.RetrievalK)
	}
}

func TestValidateModel(t *testing.T) {
	tests := []struct {
		provider, model, want string
		fallback              bool
	}{
		{"openai", "gpt-4o", "gpt-4o", false},
		{"openai", "made-up", DefaultModel, true},
		{"ollama", "qwen3:8b", "qwen3:8b", false},
	}
	for _, tt := range tests {
		got, fb := ValidateModel(tt.provider, tt.model)
		if got != tt.want || fb != tt.fallback {
			t.Errorf("ValidateModel(%q, %q) = %q, %v", tt.provider, tt.model, got, fb)
		}
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("OVERHAUL_TEST_KEY", "")
	if _, err := APIKey("openai", "OVERHAUL_TEST_KEY"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
	t.Setenv("OVERHAUL_TEST_KEY", "sk-test")
	key, err := APIKey("openai", "OVERHAUL_TEST_KEY")
	if err != nil || key != "sk-test" {
		t.Fatalf("key = %q err = %v", key, err)
	}
	if _, err := APIKey("ollama", "UNSET_FOR_OLLAMA"); err != nil {
		t.Fatalf("ollama should not need a key: %v", err)
	}
}
