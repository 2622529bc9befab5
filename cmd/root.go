package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"overhaul/internal/analyzer"
	"overhaul/internal/builder"
	"overhaul/internal/config"
	"overhaul/internal/repo"
)

// Exit codes beyond 0 and 1. Negative values are what the process reports; the shell
// sees them modulo 256.
const (
	exitNeverCompiled = -1
	exitNotAccepted   = -2
	exitMissingSetup  = -3
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogFile  string
	flagColor    string
	flagDB       string

	cfg    *config.Config
	logger *slog.Logger
	// logSink is the open --log-file, if any.
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "overhaul",
	Short: "Synthesize libFuzzer harnesses for C projects with an LLM",
	Long: `overhaul clones a C project, indexes its functions, and asks an LLM to write a
libFuzzer harness for it. Each harness is compiled and run; compiler errors and
unconvincing runs are fed back until a harness finds a real crash or the iteration
budget runs out.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		path := flagConfig
		if path != "" {
			config.LoadEnv()
			cfg, err = config.Load(path)
		} else {
			cfg, path, err = config.LoadDefault()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupColor(flagColor)
		if err := setupLogging(); err != nil {
			return err
		}
		if path != "" {
			logger.Debug("loaded config", "path", path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			logSink.Close()
		}
	},
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, color.RedString("error:"), ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
	if missingSetup(err) {
		return exitMissingSetup
	}
	return 1
}

func missingSetup(err error) bool {
	return errors.Is(err, config.ErrMissingAPIKey) ||
		errors.Is(err, analyzer.ErrToolMissing) ||
		errors.Is(err, builder.ErrCompilerMissing) ||
		errors.Is(err, repo.ErrGitMissing)
}

func setupColor(mode string) {
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func setupLogging() error {
	level := flagLogLevel
	if level == "" {
		level = os.Getenv("OVERHAUL_LOG_LEVEL")
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if flagLogFile != "" {
		f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
		logSink = f
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default overhaul.{yaml,toml} in the working directory or ~/.config/overhaul)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (default $OVERHAUL_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "vector index database (run: in memory; others: <project>/.overhaul/index.db)")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "auto", "colorize output (auto|on|off)")
}
