package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrToolMissing is returned when a configured analysis backend is not installed.
var ErrToolMissing = errors.New("static analysis tool not found")

// Backend is a static analysis tool run from the project root.
type Backend struct {
	Name string
	Bin  string
	Args func(harnessDir string) []string
}

// Backends lists the supported tools by config name.
var Backends = map[string]Backend{
	"flawfinder": {
		Name: "Flawfinder",
		Bin:  "flawfinder",
		Args: func(string) []string { return []string{"."} },
	},
	"cppcheck": {
		Name: "CPPCheck",
		Bin:  "cppcheck",
		Args: func(harnessDir string) []string {
			return []string{
				"--enable=warning,performance,information,unusedFunction,missingInclude",
				"--std=c++17",
				"--suppress=missingIncludeSystem",
				"--suppress=unusedFunction",
				"--check-level=exhaustive",
				"-i", harnessDir,
				".",
			}
		},
	},
}

// Analyzer runs the selected backends and concatenates their reports.
type Analyzer struct {
	Root       string
	Backends   []string
	HarnessDir string
	Logger     *slog.Logger
}

// Check verifies that every selected backend is known and installed.
func (a *Analyzer) Check() error {
	for _, name := range a.Backends {
		b, ok := Backends[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown analysis backend %q", name)
		}
		if _, err := exec.LookPath(b.Bin); err != nil {
			return fmt.Errorf("%w: %s", ErrToolMissing, b.Bin)
		}
	}
	return nil
}

// Analyze runs each backend in order. Each report is preceded by a
// "=== <Name> output ===" header. Findings make the tools exit non-zero, which is not
// an error here.
func (a *Analyzer) Analyze(ctx context.Context) (string, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := a.Check(); err != nil {
		return "", err
	}

	var report strings.Builder
	for _, name := range a.Backends {
		b := Backends[strings.ToLower(name)]
		logger.Info("running static analysis", "backend", b.Name)

		cmd := exec.CommandContext(ctx, b.Bin, b.Args(a.HarnessDir)...)
		cmd.Dir = a.Root
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		err := cmd.Run()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return "", fmt.Errorf("run %s: %w", b.Bin, err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		fmt.Fprintf(&report, "=== %s output ===\n\n", b.Name)
		report.Write(out.Bytes())
	}
	return report.String(), nil
}
