package evaluator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Outcome is the verdict on one harness run.
type Outcome int

const (
	TimedOut Outcome = iota
	LeakDetected
	NoCrash
	InvalidCrash
	TooFast
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case TimedOut:
		return "timed-out"
	case LeakDetected:
		return "leak-detected"
	case NoCrash:
		return "no-crash"
	case InvalidCrash:
		return "invalid-crash"
	case TooFast:
		return "too-fast"
	case Accepted:
		return "accepted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Artifact kinds, named after the file prefixes libFuzzer writes.
const (
	KindCrash = "crash"
	KindLeak  = "leak"
)

// Artifact is a crash or leak file left by the fuzzer.
type Artifact struct {
	Name    string
	Kind    string
	Created time.Time
	Size    int64
}

// Snapshot maps artifact file names to their metadata.
type Snapshot map[string]Artifact

// RunResult is what the runner observed.
type RunResult struct {
	Stderr   string
	ExitCode int
	TimedOut bool
	Elapsed  time.Duration
}

// NewArtifacts returns the artifacts of kind present in post but not in pre, ordered by name.
func NewArtifacts(pre, post Snapshot, kind string) []Artifact {
	var out []Artifact
	for name, a := range post {
		if a.Kind != kind {
			continue
		}
		if _, ok := pre[name]; ok {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Representative picks the newest artifact; equal times go to the greatest name.
func Representative(arts []Artifact) (Artifact, bool) {
	if len(arts) == 0 {
		return Artifact{}, false
	}
	best := arts[0]
	for _, a := range arts[1:] {
		if a.Created.After(best.Created) || (a.Created.Equal(best.Created) && a.Name > best.Name) {
			best = a
		}
	}
	return best, true
}

// Classify judges a run from its result and the artifact snapshots taken before and
// after it. The first matching rule wins: timeout, leak, no crash, empty crash, too
// fast, accepted. It never touches the filesystem.
func Classify(res RunResult, pre, post Snapshot, elapsed, minRuntime time.Duration) (Outcome, string) {
	if res.TimedOut {
		return TimedOut, fmt.Sprintf("Execution timed out after %.0f seconds.", elapsed.Seconds())
	}

	leaks := NewArtifacts(pre, post, KindLeak)
	if leak, ok := Representative(leaks); ok && leak.Size > 0 {
		return LeakDetected, fmt.Sprintf("Leak file was generated: %s (%d bytes).", leak.Name, leak.Size)
	}

	crashes := NewArtifacts(pre, post, KindCrash)
	if len(crashes) == 0 {
		return NoCrash, "No new testcases were generated."
	}

	crash, _ := Representative(crashes)
	if crash.Size == 0 {
		return InvalidCrash, fmt.Sprintf("Testcase is invalid (empty file %s).", crash.Name)
	}

	// Only reachable if the no-crash rule above is ever relaxed.
	if elapsed < minRuntime && len(crashes) == 0 {
		return TooFast, "Harness does not execute correctly."
	}

	names := make([]string, len(crashes))
	for i, c := range crashes {
		names[i] = c.Name
	}
	return Accepted, fmt.Sprintf("New testcases created (%d): %s", len(crashes), strings.Join(names, ", "))
}
