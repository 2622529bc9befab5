package harnesser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"overhaul/internal/llm"
	"overhaul/internal/rag"
	"overhaul/internal/synth"
)

// ErrEmptyHarness is returned when the model replies without any code.
var ErrEmptyHarness = errors.New("model returned an empty harness")

const finalNudge = "You have used all your searches. Reply now with the complete harness source."

// Options configures a Harnesser.
type Options struct {
	MaxToolRounds int
	RunTimeout    time.Duration
	Logger        *slog.Logger
}

// Harnesser generates, fixes and improves harnesses with a chat model that can search
// the project through a retrieval tool.
type Harnesser struct {
	chat   llm.Chat
	opts   Options
	logger *slog.Logger
}

// New creates a Harnesser on top of chat.
func New(chat llm.Chat, opts Options) *Harnesser {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Harnesser{chat: chat, opts: opts, logger: logger}
}

// Generate answers req. While the model asks for tool calls they are answered through
// tool, up to MaxToolRounds rounds; after that the model is asked for its final answer
// without tools.
func (h *Harnesser) Generate(ctx context.Context, req synth.Request, tool *rag.Tool) (string, error) {
	system, user, err := Prompts(req, h.opts.RunTimeout)
	if err != nil {
		return "", err
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
	tools := []llm.ToolSpec{tool.Spec()}

	h.logger.Info("calling LLM", "mode", req.Mode(), "model", h.chat.Model())
	for round := 0; ; round++ {
		offer := tools
		if round >= h.opts.MaxToolRounds {
			offer = nil
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: finalNudge})
		}

		reply, err := h.chat.Chat(ctx, msgs, offer)
		if err != nil {
			return "", fmt.Errorf("%s harness: %w", req.Mode(), err)
		}

		if len(reply.ToolCalls) == 0 || offer == nil {
			code := StripFences(reply.Content)
			if strings.TrimSpace(code) == "" {
				return "", ErrEmptyHarness
			}
			h.logger.Debug("harness received", "rounds", round, "bytes", len(code))
			return code, nil
		}

		msgs = append(msgs, reply)
		for _, tc := range reply.ToolCalls {
			var result string
			if tc.Name == rag.ToolName {
				result = tool.Call(ctx, tc.Arguments)
			} else {
				result = fmt.Sprintf("Unknown tool %q. The only tool is %s.", tc.Name, rag.ToolName)
			}
			h.logger.Debug("tool call", "name", tc.Name, "args", string(tc.Arguments), "result_bytes", len(result))
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}
}

// StripFences returns the body of the first markdown code block in s, or s itself
// when there is none. The result ends with a newline.
func StripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ensureNewline(strings.TrimSpace(s))
	}
	body := s[start+3:]
	// Drop the info string ("c", "cpp", ...).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return ensureNewline(strings.TrimSpace(body))
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
