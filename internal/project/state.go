package project

// State is everything the synthesis loop knows about one project. Only the controller
// mutates it.
type State struct {
	// Root is the project directory.
	Root string
	// StaticAnalysis is the analyzer report, fed to the first generation.
	StaticAnalysis string
	// Harness is the latest generated source, nil before the first generation.
	Harness *string
	// BuildError is the compiler output of the last failed build.
	BuildError *string
	// RunOutput is the explanation and fuzzer output of the last rejected run.
	RunOutput *string
	// Compiles reports whether the current Harness built.
	Compiles bool
	// Iteration counts generations so far.
	Iteration int
	// EverCompiled is set once any iteration builds successfully.
	EverCompiled bool
}

// NewState returns the state of a project that has no harness yet.
func NewState(root, staticAnalysis string) *State {
	return &State{Root: root, StaticAnalysis: staticAnalysis}
}

// SetHarness records a new harness revision. The build status is reset until the
// revision has been built.
func (s *State) SetHarness(code string) {
	s.Harness = &code
	s.Compiles = false
}

// SetBuildResult records the outcome of building the current harness.
func (s *State) SetBuildResult(ok bool, output string) {
	s.Compiles = ok
	if ok {
		s.EverCompiled = true
		s.BuildError = nil
		return
	}
	s.BuildError = &output
}

// SetRunOutput records why the last run was rejected.
func (s *State) SetRunOutput(output string) {
	s.RunOutput = &output
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// HarnessCode returns the current harness, or "".
func (s *State) HarnessCode() string { return deref(s.Harness) }

// BuildErrorText returns the last build error, or "".
func (s *State) BuildErrorText() string { return deref(s.BuildError) }

// RunOutputText returns the last run output, or "".
func (s *State) RunOutputText() string { return deref(s.RunOutput) }
