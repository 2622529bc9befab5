package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"overhaul/internal/walker"
)

// ErrCompilerMissing is returned when the configured compiler is not on PATH.
var ErrCompilerMissing = errors.New("compiler not found")

// BuildResult is the outcome of compiling a harness. A failed compile is a result,
// not an error.
type BuildResult struct {
	Output  string
	Success bool
}

// Clang compiles a harness together with the project's C sources.
type Clang struct {
	Root        string
	CC          string
	CFlags      []string
	Executable  string
	Script      string
	DefaultDirs []string
	Walker      walker.Options
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Command returns the compiler argv for harnessPath, relative to Root.
func (c *Clang) Command(harnessPath string) ([]string, error) {
	rel, err := filepath.Rel(c.Root, harnessPath)
	if err != nil {
		rel = harnessPath
	}
	sources := []string{filepath.ToSlash(rel)}

	opts := c.Walker
	opts.Extensions = []string{".c"}
	opts.SkipPrefixes = append([]string{"harness"}, opts.SkipPrefixes...)
	// Every source is linked, whatever its size.
	opts.MaxFileSize = 0
	files, err := walker.Collect(c.Root, opts)
	if err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}
	for _, f := range files {
		sources = append(sources, f.RelPath)
	}

	dirs, err := walker.Dirs(c.Root)
	if err != nil {
		return nil, fmt.Errorf("collect include dirs: %w", err)
	}
	include := make(map[string]struct{})
	for _, d := range c.DefaultDirs {
		include[d] = struct{}{}
	}
	for _, d := range dirs {
		include[d] = struct{}{}
	}
	incDirs := make([]string, 0, len(include))
	for d := range include {
		incDirs = append(incDirs, d)
	}
	sort.Strings(incDirs)

	argv := []string{c.CC}
	argv = append(argv, c.CFlags...)
	argv = append(argv, sources...)
	for _, d := range incDirs {
		argv = append(argv, "-I", d)
	}
	argv = append(argv, "-o", c.Executable)
	return argv, nil
}

// Build compiles harnessPath. The command is also saved as an executable build script
// in the project root so the user can rerun it.
func (c *Clang) Build(ctx context.Context, harnessPath string) (BuildResult, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := exec.LookPath(c.CC); err != nil {
		return BuildResult{}, fmt.Errorf("%w: %s", ErrCompilerMissing, c.CC)
	}

	argv, err := c.Command(harnessPath)
	if err != nil {
		return BuildResult{}, err
	}
	if c.Script != "" {
		if err := writeScript(filepath.Join(c.Root, c.Script), argv); err != nil {
			return BuildResult{}, fmt.Errorf("write build script: %w", err)
		}
	}

	buildCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(buildCtx, argv[0], argv[1:]...)
	cmd.Dir = c.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("compiling harness", "harness", harnessPath, "sources", countSources(argv))
	err = cmd.Run()
	if err == nil {
		logger.Info("harness compiled successfully")
		return BuildResult{Output: stdout.String(), Success: true}, nil
	}
	if ctx.Err() != nil {
		return BuildResult{}, ctx.Err()
	}
	if errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("compilation timed out", "after", c.Timeout)
		return BuildResult{Output: fmt.Sprintf("Error: compilation timed out after %s\n%s", c.Timeout, stderr.String())}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		logger.Warn("error during harness compilation", "exit_code", exitErr.ExitCode())
		return BuildResult{Output: fmt.Sprintf("Error %d: %s", exitErr.ExitCode(), stderr.String())}, nil
	}
	return BuildResult{}, fmt.Errorf("run compiler: %w", err)
}

func countSources(argv []string) int {
	n := 0
	for _, a := range argv {
		if strings.HasSuffix(a, ".c") {
			n++
		}
	}
	return n
}

func writeScript(path string, argv []string) error {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	script := "#!/bin/bash\n" + strings.Join(quoted, " ") + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]{}!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
