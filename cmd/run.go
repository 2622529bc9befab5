package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"overhaul/internal/analyzer"
	"overhaul/internal/builder"
	"overhaul/internal/config"
	"overhaul/internal/embedder"
	"overhaul/internal/evaluator"
	"overhaul/internal/harnesser"
	"overhaul/internal/index"
	"overhaul/internal/llm"
	"overhaul/internal/project"
	"overhaul/internal/rag"
	"overhaul/internal/repo"
	"overhaul/internal/synth"
	"overhaul/internal/tui"
)

var (
	flagCommit         string
	flagOutputDir      string
	flagModel          string
	flagTUI            bool
	flagCleanArtifacts bool
	flagMaxIterations  int
	flagRunTimeout     int
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url|path>",
	Short: "Synthesize a fuzzing harness for a C project",
	Long: `Synthesize a libFuzzer harness for the C project at <repo-url|path>.

A URL is shallow-cloned into --output-dir first. The process exits with 0 when a
harness is accepted, -1 when no harness ever compiled, -2 when harnesses compiled but
none was accepted, and -3 when credentials or required tools are missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&flagCommit, "commit", "c", "", "commit to check out after cloning")
	runCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "directory to clone into (default project.clone_dir)")
	runCmd.Flags().StringVarP(&flagModel, "model", "m", "", "chat model (default llm.model)")
	runCmd.Flags().BoolVar(&flagTUI, "tui", false, "show a full-screen progress view")
	runCmd.Flags().BoolVar(&flagCleanArtifacts, "clean-artifacts", false, "archive crash/leak files left by earlier runs before each run")
	runCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "generation budget (default synthesis.max_iterations)")
	runCmd.Flags().IntVar(&flagRunTimeout, "run-timeout", 0, "seconds each harness may run (default run.execution_timeout_secs)")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides config values with the flags that were set.
func applyRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("output-dir") {
		cfg.Project.CloneDir = flagOutputDir
	}
	if f.Changed("model") {
		cfg.LLM.Model = flagModel
	}
	if f.Changed("clean-artifacts") {
		cfg.Run.CleanArtifacts = flagCleanArtifacts
	}
	if f.Changed("max-iterations") {
		cfg.Synthesis.MaxIterations = flagMaxIterations
	}
	if f.Changed("run-timeout") {
		cfg.Run.ExecutionTimeoutSecs = flagRunTimeout
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyRunFlags(cmd)

	// The full-screen view owns the terminal, so logs go to a file.
	if flagTUI && flagLogFile == "" {
		flagLogFile = "overhaul.log"
		if err := setupLogging(); err != nil {
			return err
		}
	}

	model, fellBack := config.ValidateModel(cfg.LLM.Provider, cfg.LLM.Model)
	if fellBack {
		logger.Warn("unknown model, using default", "model", cfg.LLM.Model, "default", model)
	}
	cfg.LLM.Model = model

	apiKey, err := config.APIKey(cfg.LLM.Provider, cfg.LLM.APIKeyEnv)
	if err != nil {
		return err
	}

	fetcher := &repo.Fetcher{OutputDir: cfg.Project.CloneDir, Logger: logger}
	root, err := fetcher.Fetch(ctx, args[0], flagCommit)
	if err != nil {
		return fmt.Errorf("fetch project: %w", err)
	}

	an := &analyzer.Analyzer{
		Root:       root,
		Backends:   cfg.Analysis.Backends,
		HarnessDir: cfg.Project.HarnessDir,
		Logger:     logger,
	}
	if err := an.Check(); err != nil {
		return err
	}

	header := tui.Header{Project: root, Model: cfg.LLM.Model}
	p := &pipeline{root: root, apiKey: apiKey, analyzer: an, logger: logger}

	var info tui.ReportInfo
	if flagTUI {
		session := tui.NewSession(header)
		p.onProgress = session.OnProgress
		p.onEvent = session.OnEvent
		info, err = session.Run(ctx, p.run)
	} else {
		c := newConsole()
		p.onProgress = c.progress
		p.onEvent = c.event
		fmt.Printf("Synthesizing a harness for %s with %s\n", root, cfg.LLM.Model)
		info, err = p.run(ctx)
	}
	if err != nil {
		return err
	}

	if !flagTUI {
		width := 80
		if isTerminal(os.Stdout) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				width = w
			}
		}
		md := tui.Report(info)
		if isTerminal(os.Stdout) {
			md = tui.Render(md, width)
		}
		fmt.Println(md)
	}

	logger.Info("finished", "status", info.Result.Status.String(), "iterations", info.Result.Iterations)
	if code := info.Result.Status.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// pipeline runs everything after the project is on disk.
type pipeline struct {
	root       string
	apiKey     string
	analyzer   *analyzer.Analyzer
	onProgress index.ProgressFunc
	onEvent    func(synth.Event)
	logger     *slog.Logger
}

func (p *pipeline) run(ctx context.Context) (tui.ReportInfo, error) {
	start := time.Now()
	info := tui.ReportInfo{Project: p.root, Model: cfg.LLM.Model}

	p.onProgress("Running static analysis...", 0, 0)
	static, err := p.analyzer.Analyze(ctx)
	if err != nil {
		return info, fmt.Errorf("static analysis: %w", err)
	}

	emb, err := embedder.New(cfg.Embedding, p.logger)
	if err != nil {
		return info, err
	}
	st, err := openStore(flagDB)
	if err != nil {
		return info, fmt.Errorf("open index store: %w", err)
	}
	idx, err := index.BuildProject(ctx, p.root, cfg, emb, st, p.onProgress, p.logger)
	if err != nil {
		st.Close()
		return info, fmt.Errorf("build index: %w", err)
	}
	defer idx.Close()
	info.Index = index.StatsOf(idx)

	chat, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      p.apiKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return info, err
	}

	gen := harnesser.New(chat, harnesser.Options{
		MaxToolRounds: cfg.Synthesis.MaxToolRounds,
		RunTimeout:    cfg.Run.ExecutionTimeout(),
		Logger:        p.logger,
	})
	b := &builder.Clang{
		Root:        p.root,
		CC:          cfg.Build.CC,
		CFlags:      cfg.Build.CFlags,
		Executable:  cfg.Build.Executable,
		Script:      cfg.Build.Script,
		DefaultDirs: cfg.Project.DefaultDirs,
		Walker:      index.WalkerOptions(cfg.Project),
		Timeout:     cfg.Build.Timeout(),
		Logger:      p.logger,
	}
	r := &evaluator.Runner{
		Dir:        p.root,
		Executable: cfg.Build.Executable,
		OutputFile: cfg.Run.OutputFile,
		Timeout:    cfg.Run.ExecutionTimeout(),
		Logger:     p.logger,
	}
	hs := &project.HarnessStore{
		Root:   p.root,
		Dir:    cfg.Project.HarnessDir,
		File:   cfg.Project.HarnessFile,
		Logger: p.logger,
	}

	ctrl, err := synth.New(gen, b, r, hs, rag.NewTool(idx, cfg.Synthesis.RetrievalK, p.logger), synth.Options{
		MaxIterations:  cfg.Synthesis.MaxIterations,
		ErrorMaxLines:  cfg.Synthesis.ErrorMaxLines,
		MinRuntime:     cfg.Run.MinExecution(),
		CleanArtifacts: cfg.Run.CleanArtifacts,
		OnEvent:        p.onEvent,
		Logger:         p.logger,
	})
	if err != nil {
		return info, err
	}

	res, err := ctrl.Run(ctx, project.NewState(p.root, static))
	info.Result = res
	info.Elapsed = time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return info, fmt.Errorf("run aborted: %w", err)
		}
		return info, err
	}
	return info, nil
}
