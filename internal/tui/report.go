package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"overhaul/internal/index"
	"overhaul/internal/synth"
)

// ReportInfo is everything the final report shows.
type ReportInfo struct {
	Project string
	Model   string
	Index   index.Stats
	Result  synth.Result
	Elapsed time.Duration
}

// Report renders a run summary as markdown.
func Report(info ReportInfo) string {
	r := info.Result
	var sb strings.Builder
	fmt.Fprintf(&sb, "# OverHAuL: %s\n\n", r.Status)
	fmt.Fprintf(&sb, "| | |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Project | `%s` |\n", info.Project)
	fmt.Fprintf(&sb, "| Model | `%s` |\n", info.Model)
	fmt.Fprintf(&sb, "| Indexed | %d functions from %d files |\n", info.Index.Chunks, info.Index.Files)
	fmt.Fprintf(&sb, "| Iterations | %d |\n", r.Iterations)
	if r.HarnessPath != "" {
		fmt.Fprintf(&sb, "| Harness | `%s` |\n", r.HarnessPath)
	}
	if info.Elapsed > 0 {
		fmt.Fprintf(&sb, "| Elapsed | %s |\n", info.Elapsed.Round(time.Second))
	}
	fmt.Fprintf(&sb, "| Exit code | %d |\n", r.Status.ExitCode())

	if r.Evaluated {
		fmt.Fprintf(&sb, "\n## Last run: %s\n\n", r.Outcome)
		fmt.Fprintf(&sb, "```\n%s\n```\n", strings.TrimRight(r.Explanation, "\n"))
	} else {
		sb.WriteString("\nNo harness compiled, so nothing was run.\n")
	}
	return sb.String()
}

// Render formats markdown for the terminal. On any renderer error the markdown is
// returned unchanged.
func Render(md string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
