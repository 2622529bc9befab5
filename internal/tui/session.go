package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"overhaul/internal/synth"
)

// maxEventLines bounds the iteration history kept on screen.
const maxEventLines = 12

// Header identifies the session.
type Header struct {
	Project string
	Model   string
}

// progressMsg is sent while the index is being built.
type progressMsg struct {
	stage       string
	done, total int
}

// eventMsg carries a synthesis state transition.
type eventMsg synth.Event

// doneMsg is sent when the work function returns.
type doneMsg struct {
	info ReportInfo
	err  error
}

type sessionModel struct {
	header  Header
	spinner spinner.Model
	cancel  context.CancelFunc
	width   int

	stage       string
	done, total int

	current  *synth.Event
	history  []synth.Event
	finished bool
	report   string
	err      error
}

func newSessionModel(h Header, cancel context.CancelFunc) sessionModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return sessionModel{
		header:  h,
		spinner: sp,
		cancel:  cancel,
		stage:   "Preparing...",
	}
}

func (m sessionModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "q", "enter", "esc":
			if m.finished {
				return m, tea.Quit
			}
		}
		return m, nil

	case progressMsg:
		m.stage = msg.stage
		m.done = msg.done
		m.total = msg.total
		return m, nil

	case eventMsg:
		ev := synth.Event(msg)
		switch ev.Phase {
		case synth.PhaseRetrying, synth.PhaseAccepted, synth.PhaseExhausted:
			m.history = append(m.history, ev)
			if len(m.history) > maxEventLines {
				m.history = m.history[len(m.history)-maxEventLines:]
			}
		}
		m.current = &ev
		return m, nil

	case doneMsg:
		m.finished = true
		m.err = msg.err
		if msg.err == nil {
			m.report = Render(Report(msg.info), m.width)
		}
		return m, nil

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m sessionModel) View() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(titleStyle.Render("  OverHAuL") + "\n")
	sb.WriteString(subtitleStyle.Render(fmt.Sprintf("  %s • %s", m.header.Project, m.header.Model)) + "\n\n")

	if m.current == nil && !m.finished {
		fmt.Fprintf(&sb, "  %s %s\n", m.spinner.View(), m.stage)
		if m.total > 0 {
			fmt.Fprintf(&sb, "  %d / %d\n", m.done, m.total)
		}
		return sb.String()
	}

	for _, ev := range m.history {
		sb.WriteString("  " + eventLine(ev) + "\n")
	}

	if m.finished {
		sb.WriteString("\n")
		if m.err != nil {
			sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n")
		} else {
			sb.WriteString(m.report)
		}
		sb.WriteString(dimStyle.Render("  Press q to exit.") + "\n")
		return sb.String()
	}

	ev := m.current
	fmt.Fprintf(&sb, "\n  %s [%d/%d] %s", m.spinner.View(), ev.Iteration, ev.Max, ev.Phase)
	if ev.Mode != "" {
		fmt.Fprintf(&sb, " (%s)", ev.Mode)
	}
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("  Ctrl+C aborts the run.") + "\n")
	return sb.String()
}

func eventLine(ev synth.Event) string {
	head := fmt.Sprintf("[%d/%d] ", ev.Iteration, ev.Max)
	msg := firstLine(ev.Message)
	switch ev.Phase {
	case synth.PhaseAccepted:
		return successStyle.Render(head + "✓ " + msg)
	case synth.PhaseExhausted:
		return errorStyle.Render(head + "✗ " + msg)
	default:
		return warnStyle.Render(head+ev.Mode+": ") + dimStyle.Render(msg)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Session shows a run in a full-screen view. Its OnProgress and OnEvent methods are
// meant to be handed to index.BuildProject and synth.Options.
type Session struct {
	header Header
	p      *tea.Program
}

// NewSession creates a session view. Nothing is drawn until Run.
func NewSession(h Header) *Session {
	return &Session{header: h}
}

// OnProgress forwards index construction progress.
func (s *Session) OnProgress(stage string, done, total int) {
	if s.p != nil {
		s.p.Send(progressMsg{stage: stage, done: done, total: total})
	}
}

// OnEvent forwards a synthesis event.
func (s *Session) OnEvent(ev synth.Event) {
	if s.p != nil {
		s.p.Send(eventMsg(ev))
	}
}

// Run starts the view, runs work in the background and returns its result once the
// user dismisses the final report. Ctrl+C cancels the context given to work.
func (s *Session) Run(ctx context.Context, work func(context.Context) (ReportInfo, error)) (ReportInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.p = tea.NewProgram(newSessionModel(s.header, cancel), tea.WithAltScreen())

	type outcome struct {
		info ReportInfo
		err  error
	}
	finished := make(chan outcome, 1)
	go func() {
		info, err := work(ctx)
		finished <- outcome{info, err}
		s.p.Send(doneMsg{info: info, err: err})
	}()

	_, runErr := s.p.Run()
	cancel()
	res := <-finished
	if res.err == nil && runErr != nil {
		return res.info, fmt.Errorf("session view: %w", runErr)
	}
	return res.info, res.err
}
