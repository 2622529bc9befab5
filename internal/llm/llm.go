package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single chat message. Assistant messages may carry tool calls;
// tool messages answer one call, identified by ToolCallID and Name.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec describes a callable function. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Chat is a chat-completion backend with function calling.
type Chat interface {
	// Chat sends the conversation and returns the assistant's reply.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Message, error)
	Model() string
}

// Config configures a chat client. There is no shared client state; every client is
// built from its own Config.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New returns the client for cfg.Provider.
func New(cfg Config) (Chat, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaChat(cfg), nil
	case "openai", "":
		return NewOpenAIChat(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Generate sends a conversation without tools and returns the reply text.
func Generate(ctx context.Context, c Chat, messages []Message) (string, error) {
	reply, err := c.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}
