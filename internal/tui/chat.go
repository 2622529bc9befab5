package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"overhaul/internal/llm"
)

// maxHistory is the number of messages (user and assistant) kept as context.
const maxHistory = 20

// AskFunc answers question given earlier turns of the conversation.
type AskFunc func(ctx context.Context, question string, history []llm.Message) (string, error)

type chatModel struct {
	ctx         context.Context
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	messages    []chatMessage
	history     []llm.Message
	ask         AskFunc
	title       string
	busy        bool
	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// answerMsg is sent when a question has been answered.
type answerMsg struct {
	answer string
	err    error
}

func newChatModel(ctx context.Context, title string, ask AskFunc) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Ask about the project's functions, inputs, data structures..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		ctx:     ctx,
		spinner: sp,
		input:   ti,
		ask:     ask,
		title:   title,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + gap (1 line).
	vpHeight := max(height-3, 5)
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Ask a question about " + m.title + ".\n\nCommands: /help, /clear, /exit"))

	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func askQuestion(ctx context.Context, ask AskFunc, question string, history []llm.Message) tea.Cmd {
	return func() tea.Msg {
		answer, err := ask(ctx, question, history)
		return answerMsg{answer: answer, err: err}
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
			// Drop the unanswered question.
			m.history = m.history[:len(m.history)-1]
		} else {
			m.messages = append(m.messages, chatMessage{role: llm.RoleAssistant, content: msg.answer})
			m.history = append(m.history, llm.Message{Role: llm.RoleAssistant, Content: msg.answer})
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.history = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/help":
				helpText := "Commands:\n  /clear  - clear conversation history\n  /exit   - quit\n  /help   - show this help"
				m.messages = append(m.messages, chatMessage{role: llm.RoleSystem, content: helpText})
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			}

			prior := append([]llm.Message(nil), m.history...)
			m.messages = append(m.messages, chatMessage{role: llm.RoleUser, content: question})
			m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: question})
			m.busy = true
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()

			return m, tea.Batch(m.spinner.Tick, askQuestion(m.ctx, m.ask, question, prior))
		}
	}

	if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case llm.RoleUser:
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case llm.RoleAssistant:
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case llm.RoleSystem:
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}
	if m.busy {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Searching and thinking...") + "\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	if !m.initialized {
		return ""
	}

	status := "idle"
	if m.busy {
		status = "working..."
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" overhaul chat • %s • %s", m.title, status))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}

// RunChat opens a full-screen chat about title, answered by ask. Leaving the chat
// or cancelling ctx aborts any question still in flight.
func RunChat(ctx context.Context, title string, ask AskFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(newChatModel(ctx, title, ask), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
