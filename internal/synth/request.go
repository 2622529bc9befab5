package synth

import (
	"strings"

	"overhaul/internal/project"
)

// Request is what the generator is asked to do. It is one of CreateRequest,
// FixRequest or ImproveRequest.
type Request interface {
	// Mode names the request for logs and events.
	Mode() string
	isRequest()
}

// CreateRequest asks for a first harness, grounded in the static analysis report.
type CreateRequest struct {
	Static string
}

// FixRequest asks to repair a harness that does not compile.
type FixRequest struct {
	OldHarness string
	Error      string
}

// ImproveRequest asks to improve a harness that compiled but was rejected at runtime.
type ImproveRequest struct {
	OldHarness string
	RunOutput  string
}

func (CreateRequest) Mode() string  { return "create" }
func (FixRequest) Mode() string     { return "fix" }
func (ImproveRequest) Mode() string { return "improve" }

func (CreateRequest) isRequest()  {}
func (FixRequest) isRequest()     {}
func (ImproveRequest) isRequest() {}

// TruncatedMarker ends build errors cut to the line limit.
const TruncatedMarker = "...truncated"

// RequestFor selects the request for the current state: create without a harness,
// fix when it does not compile, improve otherwise.
func RequestFor(st *project.State, errorMaxLines int) Request {
	switch {
	case st.Harness == nil:
		return CreateRequest{Static: st.StaticAnalysis}
	case !st.Compiles:
		return FixRequest{OldHarness: *st.Harness, Error: Truncate(st.BuildErrorText(), errorMaxLines)}
	default:
		return ImproveRequest{OldHarness: *st.Harness, RunOutput: st.RunOutputText()}
	}
}

// Truncate keeps the first maxLines lines of text and appends TruncatedMarker when
// anything was cut. maxLines <= 0 disables truncation.
func Truncate(text string, maxLines int) string {
	if maxLines <= 0 {
		return text
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[:maxLines], "\n") + "\n" + TruncatedMarker
}
