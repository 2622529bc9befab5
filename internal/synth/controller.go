package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"overhaul/internal/builder"
	"overhaul/internal/evaluator"
	"overhaul/internal/project"
	"overhaul/internal/rag"
)

// ErrNoGenerator is returned by New when no generation backend is supplied.
var ErrNoGenerator = errors.New("no harness generator configured")

// leakDumpBytes bounds the hex dump of a leak artifact folded into feedback.
const leakDumpBytes = 256

// Generator produces harness source for a request. The tool lets the backend look up
// project code while it works.
type Generator interface {
	Generate(ctx context.Context, req Request, tool *rag.Tool) (string, error)
}

// Builder compiles the harness at harnessPath.
type Builder interface {
	Build(ctx context.Context, harnessPath string) (builder.BuildResult, error)
}

// Runner executes the compiled harness.
type Runner interface {
	Run(ctx context.Context) (evaluator.RunResult, error)
}

// HarnessWriter persists a harness revision and returns its path.
type HarnessWriter interface {
	Write(code string) (string, error)
}

// Phase is a step of the synthesis loop.
type Phase int

const (
	PhaseGenerating Phase = iota
	PhaseBuilding
	PhaseEvaluating
	PhaseRetrying
	PhaseAccepted
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhaseGenerating:
		return "generating"
	case PhaseBuilding:
		return "building"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseRetrying:
		return "retrying"
	case PhaseAccepted:
		return "accepted"
	case PhaseExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Event reports a state transition.
type Event struct {
	Phase     Phase
	Iteration int
	Max       int
	Mode      string
	Message   string
}

// Status is the terminal condition of a run.
type Status int

const (
	StatusAccepted Status = iota
	StatusExhaustedCompiled
	StatusExhaustedNeverCompiled
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusExhaustedCompiled:
		return "exhausted (compiled, never accepted)"
	case StatusExhaustedNeverCompiled:
		return "exhausted (never compiled)"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ExitCode maps the status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusAccepted:
		return 0
	case StatusExhaustedCompiled:
		return -2
	default:
		return -1
	}
}

// Result summarises a finished run.
type Result struct {
	Status      Status
	Iterations  int
	HarnessPath string
	// Outcome and Explanation describe the last evaluated run, if any.
	Outcome     evaluator.Outcome
	Explanation string
	Evaluated   bool
}

// Options configures the controller.
type Options struct {
	MaxIterations  int
	ErrorMaxLines  int
	MinRuntime     time.Duration
	CleanArtifacts bool
	OnEvent        func(Event)
	Logger         *slog.Logger
}

// Controller drives the generate, build, evaluate loop for one project.
type Controller struct {
	gen    Generator
	build  Builder
	run    Runner
	store  HarnessWriter
	tool   *rag.Tool
	opts   Options
	logger *slog.Logger
}

// New creates a controller. tool may be nil, in which case retrieval answers nothing.
func New(gen Generator, b Builder, r Runner, store HarnessWriter, tool *rag.Tool, opts Options) (*Controller, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	if b == nil || r == nil || store == nil {
		return nil, errors.New("builder, runner and harness store are required")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{gen: gen, build: b, run: r, store: store, tool: tool, opts: opts, logger: logger}, nil
}

func (c *Controller) emit(ev Event) {
	ev.Max = c.opts.MaxIterations
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

// Run loops until a harness is accepted or MaxIterations generations have been made.
// Build failures and rejected runs are fed back into the next generation; failures of
// the generator, builder or runner themselves end the run with an error.
func (c *Controller) Run(ctx context.Context, st *project.State) (Result, error) {
	var res Result
	for st.Iteration < c.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		st.Iteration++
		res.Iterations = st.Iteration
		log := c.logger.With("iteration", st.Iteration)

		req := RequestFor(st, c.opts.ErrorMaxLines)
		log.Info("generating harness", "mode", req.Mode())
		c.emit(Event{Phase: PhaseGenerating, Iteration: st.Iteration, Mode: req.Mode()})

		code, err := c.gen.Generate(ctx, req, c.tool)
		if err != nil {
			return res, fmt.Errorf("generate harness (iteration %d): %w", st.Iteration, err)
		}
		st.SetHarness(code)

		path, err := c.store.Write(code)
		if err != nil {
			return res, fmt.Errorf("write harness: %w", err)
		}
		res.HarnessPath = path

		c.emit(Event{Phase: PhaseBuilding, Iteration: st.Iteration, Mode: req.Mode()})
		br, err := c.build.Build(ctx, path)
		if err != nil {
			return res, fmt.Errorf("build harness (iteration %d): %w", st.Iteration, err)
		}
		st.SetBuildResult(br.Success, br.Output)
		if !br.Success {
			log.Warn("could not compile harness, retrying in fix mode")
			c.emit(Event{Phase: PhaseRetrying, Iteration: st.Iteration, Mode: req.Mode(), Message: "build failed"})
			continue
		}

		c.emit(Event{Phase: PhaseEvaluating, Iteration: st.Iteration, Mode: req.Mode()})
		outcome, explanation, runOut, err := c.evaluate(ctx, st)
		if err != nil {
			return res, err
		}
		res.Outcome, res.Explanation, res.Evaluated = outcome, explanation, true

		if outcome == evaluator.Accepted {
			log.Info("harness accepted", "detail", explanation)
			res.Status = StatusAccepted
			c.emit(Event{Phase: PhaseAccepted, Iteration: st.Iteration, Mode: req.Mode(), Message: explanation})
			return res, nil
		}

		st.SetRunOutput(explanation + "\n\n" + runOut)
		log.Warn("harness does not pass evaluation, retrying in improve mode", "outcome", outcome)
		c.emit(Event{Phase: PhaseRetrying, Iteration: st.Iteration, Mode: req.Mode(), Message: outcome.String() + ": " + explanation})
	}

	res.Status = StatusExhaustedNeverCompiled
	if st.EverCompiled {
		res.Status = StatusExhaustedCompiled
	}
	c.logger.Error("retry budget exhausted", "iterations", st.Iteration, "status", res.Status)
	c.emit(Event{Phase: PhaseExhausted, Iteration: st.Iteration, Message: res.Status.String()})
	return res, nil
}

func (c *Controller) evaluate(ctx context.Context, st *project.State) (evaluator.Outcome, string, string, error) {
	if c.opts.CleanArtifacts {
		n, err := evaluator.ArchiveArtifacts(st.Root, st.Iteration)
		if err != nil {
			return 0, "", "", fmt.Errorf("archive artifacts: %w", err)
		}
		if n > 0 {
			c.logger.Info("archived stale artifacts", "count", n)
		}
	}

	pre, err := evaluator.TakeSnapshot(st.Root)
	if err != nil {
		return 0, "", "", err
	}
	rr, err := c.run.Run(ctx)
	if err != nil {
		return 0, "", "", fmt.Errorf("run harness (iteration %d): %w", st.Iteration, err)
	}
	post, err := evaluator.TakeSnapshot(st.Root)
	if err != nil {
		return 0, "", "", err
	}

	outcome, explanation := evaluator.Classify(rr, pre, post, rr.Elapsed, c.opts.MinRuntime)
	if outcome == evaluator.LeakDetected {
		if leak, ok := evaluator.Representative(evaluator.NewArtifacts(pre, post, evaluator.KindLeak)); ok {
			if dump, err := evaluator.Dump(st.Root, leak.Name, leakDumpBytes); err == nil {
				explanation += "\n" + dump
			}
		}
	}
	return outcome, explanation, rr.Stderr, nil
}
