package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when a provider needs an API key that is not set.
var ErrMissingAPIKey = errors.New("missing API key")

// AvailableModels lists the chat models the OpenAI provider accepts.
var AvailableModels = []string{
	"o3-mini",
	"o3",
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4.1-mini",
	"gpt-3.5-turbo",
	"gpt-4",
}

const (
	DefaultModel          = "gpt-4.1-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// LLMConfig configures the generation backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"`
	Model       string  `yaml:"model" toml:"model"`
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Temperature float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

// EmbeddingConfig configures the embedder and the vector store behind the index.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" toml:"provider"`
	Model       string `yaml:"model" toml:"model"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size"`
	Workers     int    `yaml:"workers" toml:"workers"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	Store       string `yaml:"store" toml:"store"`
	Cache       bool   `yaml:"cache" toml:"cache"`
	CacheDir    string `yaml:"cache_dir" toml:"cache_dir"`
}

// ProjectConfig controls which files of the target project are considered.
type ProjectConfig struct {
	Extensions   []string `yaml:"extensions" toml:"extensions"`
	IgnoredFiles []string `yaml:"ignored_files" toml:"ignored_files"`
	IgnoredDirs  []string `yaml:"ignored_dirs" toml:"ignored_dirs"`
	DefaultDirs  []string `yaml:"default_dirs" toml:"default_dirs"`
	HarnessDir   string   `yaml:"harness_dir" toml:"harness_dir"`
	HarnessFile  string   `yaml:"harness_file" toml:"harness_file"`
	CloneDir     string   `yaml:"clone_dir" toml:"clone_dir"`
}

// BuildConfig configures the compiler invocation.
type BuildConfig struct {
	CC          string   `yaml:"cc" toml:"cc"`
	CFlags      []string `yaml:"cflags" toml:"cflags"`
	Executable  string   `yaml:"executable" toml:"executable"`
	Script      string   `yaml:"script" toml:"script"`
	TimeoutSecs int      `yaml:"timeout_secs" toml:"timeout_secs"`
}

// RunConfig configures harness execution and evaluation.
type RunConfig struct {
	ExecutionTimeoutSecs int    `yaml:"execution_timeout_secs" toml:"execution_timeout_secs"`
	MinExecutionSecs     int    `yaml:"min_execution_secs" toml:"min_execution_secs"`
	OutputFile           string `yaml:"output_file" toml:"output_file"`
	CleanArtifacts       bool   `yaml:"clean_artifacts" toml:"clean_artifacts"`
}

// SynthesisConfig configures the generate/build/evaluate loop.
type SynthesisConfig struct {
	MaxIterations int `yaml:"max_iterations" toml:"max_iterations"`
	ErrorMaxLines int `yaml:"error_max_lines" toml:"error_max_lines"`
	RetrievalK    int `yaml:"retrieval_k" toml:"retrieval_k"`
	MaxToolRounds int `yaml:"max_tool_rounds" toml:"max_tool_rounds"`
}

// AnalysisConfig selects the static analysis backends.
type AnalysisConfig struct {
	Backends []string `yaml:"backends" toml:"backends"`
}

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	Project   ProjectConfig   `yaml:"project" toml:"project"`
	Build     BuildConfig     `yaml:"build" toml:"build"`
	Run       RunConfig       `yaml:"run" toml:"run"`
	Synthesis SynthesisConfig `yaml:"synthesis" toml:"synthesis"`
	Analysis  AnalysisConfig  `yaml:"analysis" toml:"analysis"`
}

// Load reads a config file. YAML and TOML are chosen by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault loads .env into the environment, then looks for overhaul.{yaml,yml,toml}
// in the working directory and in ~/.config/overhaul. It returns the path used, or ""
// when the defaults apply.
func LoadDefault() (*Config, string, error) {
	LoadEnv()

	candidates := []string{"overhaul.yaml", "overhaul.yml", "overhaul.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		base := filepath.Join(home, ".config", "overhaul")
		for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
			candidates = append(candidates, filepath.Join(base, name))
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	return Default(), "", nil
}

// LoadEnv loads a .env file from the working directory into the environment, if
// there is one. Variables already set win.
func LoadEnv() {
	_ = godotenv.Load()
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaultBaseURL(cfg.LLM.Provider)
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 1.0
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 5000
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 300
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = cfg.LLM.Provider
	}
	if cfg.Embedding.Model == "" {
		if cfg.Embedding.Provider == "ollama" {
			cfg.Embedding.Model = "nomic-embed-text"
		} else {
			cfg.Embedding.Model = DefaultEmbeddingModel
		}
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = defaultBaseURL(cfg.Embedding.Provider)
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 120
	}
	if cfg.Embedding.Store == "" {
		cfg.Embedding.Store = "sqlite"
	}

	if len(cfg.Project.Extensions) == 0 {
		cfg.Project.Extensions = []string{".c", ".h"}
	}
	if cfg.Project.IgnoredFiles == nil {
		cfg.Project.IgnoredFiles = []string{"*test.c", "*unit.c", "main.c", "*benchmark*.c", "*example*.c"}
	}
	if cfg.Project.IgnoredDirs == nil {
		cfg.Project.IgnoredDirs = []string{"test", "tests", "example", "examples", "demo", "demos", "benchmark", "benchmarks"}
	}
	if cfg.Project.DefaultDirs == nil {
		cfg.Project.DefaultDirs = []string{".", "src", "source", "sources", "include", "lib", "deps", "dependencies", "contrib"}
	}
	if cfg.Project.HarnessDir == "" {
		cfg.Project.HarnessDir = "harnesses"
	}
	if cfg.Project.HarnessFile == "" {
		cfg.Project.HarnessFile = "harness.c"
	}
	if cfg.Project.CloneDir == "" {
		cfg.Project.CloneDir = "output"
	}

	if cfg.Build.CC == "" {
		cfg.Build.CC = "clang"
	}
	if cfg.Build.CFlags == nil {
		cfg.Build.CFlags = []string{"-g3", "-fsanitize=fuzzer,address,undefined,leak"}
	}
	if cfg.Build.Executable == "" {
		cfg.Build.Executable = "harness"
	}
	if cfg.Build.Script == "" {
		cfg.Build.Script = "overhaul.sh"
	}
	if cfg.Build.TimeoutSecs == 0 {
		cfg.Build.TimeoutSecs = 600
	}

	if cfg.Run.ExecutionTimeoutSecs == 0 {
		cfg.Run.ExecutionTimeoutSecs = 5 * 60
	}
	if cfg.Run.MinExecutionSecs == 0 {
		cfg.Run.MinExecutionSecs = 5 * 60
	}
	if cfg.Run.OutputFile == "" {
		cfg.Run.OutputFile = "harness.out"
	}

	if cfg.Synthesis.MaxIterations == 0 {
		cfg.Synthesis.MaxIterations = 10
	}
	if cfg.Synthesis.ErrorMaxLines == 0 {
		cfg.Synthesis.ErrorMaxLines = 200
	}
	if cfg.Synthesis.RetrievalK == 0 {
		cfg.Synthesis.RetrievalK = 5
	}
	if cfg.Synthesis.MaxToolRounds == 0 {
		cfg.Synthesis.MaxToolRounds = 8
	}

	if len(cfg.Analysis.Backends) == 0 {
		cfg.Analysis.Backends = []string{"flawfinder"}
	}
}

func defaultBaseURL(provider string) string {
	if provider == "ollama" {
		return "http://localhost:11434"
	}
	return "https://api.openai.com/v1"
}

// ValidateModel returns the model to use for the OpenAI provider. Unknown models fall
// back to DefaultModel; the second return reports whether a fallback happened.
func ValidateModel(provider, model string) (string, bool) {
	if provider != "openai" {
		return model, false
	}
	for _, m := range AvailableModels {
		if m == model {
			return model, false
		}
	}
	return DefaultModel, true
}

// APIKey resolves the API key for a provider from the named environment variable.
// Ollama needs no key.
func APIKey(provider, env string) (string, error) {
	if provider == "ollama" {
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%w: set %s (a .env file in the working directory works too)", ErrMissingAPIKey, env)
	}
	return key, nil
}

// ExecutionTimeout returns the run timeout as a duration.
func (c RunConfig) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSecs) * time.Second
}

// MinExecution returns the minimum accepted run time as a duration.
func (c RunConfig) MinExecution() time.Duration {
	return time.Duration(c.MinExecutionSecs) * time.Second
}

// Timeout returns the build timeout as a duration.
func (c BuildConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}
