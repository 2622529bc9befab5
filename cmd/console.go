package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"overhaul/internal/synth"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	badColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// console prints progress lines for non-interactive runs.
type console struct {
	out       io.Writer
	lastStage string
}

func newConsole() *console {
	return &console{out: os.Stdout}
}

func (c *console) progress(stage string, done, total int) {
	if stage != c.lastStage {
		c.lastStage = stage
		fmt.Fprintln(c.out, dimColor.Sprint(stage))
	}
	if total > 0 && done == total {
		fmt.Fprintln(c.out, dimColor.Sprintf("  %d / %d", done, total))
	}
}

func (c *console) event(ev synth.Event) {
	head := fmt.Sprintf("[%d/%d]", ev.Iteration, ev.Max)
	switch ev.Phase {
	case synth.PhaseGenerating:
		fmt.Fprintf(c.out, "%s %s harness...\n", head, ev.Mode)
	case synth.PhaseBuilding:
		fmt.Fprintf(c.out, "%s compiling\n", head)
	case synth.PhaseEvaluating:
		fmt.Fprintf(c.out, "%s running\n", head)
	case synth.PhaseRetrying:
		fmt.Fprintf(c.out, "%s %s\n", head, warnColor.Sprint(firstLine(ev.Message)))
	case synth.PhaseAccepted:
		fmt.Fprintf(c.out, "%s %s\n", head, okColor.Sprint(firstLine(ev.Message)))
	case synth.PhaseExhausted:
		fmt.Fprintf(c.out, "%s %s\n", head, badColor.Sprint(firstLine(ev.Message)))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
