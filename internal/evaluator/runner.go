package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner executes the compiled harness inside the project directory.
type Runner struct {
	Dir        string
	Executable string
	OutputFile string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Run executes ./<Executable> with the timeout and records its stderr, followed by its
// stdout, in OutputFile. A non-zero exit is a result, not an error; failing to start
// the process is.
func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "./"+r.Executable)
	cmd.Dir = r.Dir
	// Give children holding the pipes a moment after the kill.
	cmd.WaitDelay = 5 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Info("starting harness", "dir", r.Dir, "timeout", r.Timeout)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := RunResult{Elapsed: elapsed, ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		logger.Warn("harness timed out", "after", elapsed.Round(time.Second))
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
	case errors.Is(err, exec.ErrWaitDelay):
	default:
		return res, fmt.Errorf("run harness: %w", err)
	}

	out := stderr.String()
	if stdout.Len() > 0 {
		out += stdout.String()
	}
	res.Stderr = out

	if r.OutputFile != "" {
		if err := os.WriteFile(filepath.Join(r.Dir, r.OutputFile), []byte(out), 0o644); err != nil {
			return res, fmt.Errorf("write harness output: %w", err)
		}
	}
	logger.Info("harness finished", "exit_code", res.ExitCode, "elapsed", elapsed.Round(time.Millisecond))
	return res, nil
}
