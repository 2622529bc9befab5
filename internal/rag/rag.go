package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"overhaul/internal/chunker"
	"overhaul/internal/llm"
)

// NoResults is returned whenever retrieval yields nothing or fails.
const NoResults = "No relevant code found."

// ToolName is the function name the model calls.
const ToolName = "search_code"

// DefaultK is the number of chunks returned when the caller does not choose.
const DefaultK = 5

const toolDescription = "Search the project's C source code for functions relevant to a question. " +
	"Returns matching function definitions with their file path, signature and code."

// Searcher answers nearest-neighbour queries over code chunks.
type Searcher interface {
	Query(ctx context.Context, text string, k int) ([]chunker.Chunk, error)
}

// Tool exposes a Searcher to the generation backend. A nil Tool, or one without a
// Searcher, always answers NoResults.
type Tool struct {
	searcher Searcher
	k        int
	logger   *slog.Logger
}

// NewTool wraps s. k <= 0 selects DefaultK.
func NewTool(s Searcher, k int, logger *slog.Logger) *Tool {
	if k <= 0 {
		k = DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{searcher: s, k: k, logger: logger}
}

// Retrieve returns the k chunks closest to question, formatted for the model. Errors
// are logged and reported as NoResults.
func (t *Tool) Retrieve(ctx context.Context, question string, k int) string {
	if t == nil || t.searcher == nil {
		return NoResults
	}
	if k <= 0 {
		k = t.k
	}
	chunks, err := t.searcher.Query(ctx, question, k)
	if err != nil {
		t.logger.Warn("code search failed", "question", question, "err", err)
		return NoResults
	}
	t.logger.Debug("code search", "question", question, "k", k, "results", len(chunks))
	return Format(chunks)
}

// Format renders chunks as File/Signature/Code blocks separated by blank lines.
func Format(chunks []chunker.Chunk) string {
	if len(chunks) == 0 {
		return NoResults
	}
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("File: %s\nSignature: %s\nCode:\n%s", c.FilePath, c.Signature, c.Code)
	}
	return strings.Join(blocks, "\n\n")
}

// Spec describes the tool for function calling.
func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolName,
		Description: toolDescription,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question": map[string]any{
					"type":        "string",
					"description": "What to look for, e.g. a function's purpose or a data structure name.",
				},
				"k": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Number of functions to return (default %d).", DefaultK),
				},
			},
			"required": []string{"question"},
		},
	}
}

// Call decodes function-call arguments and runs Retrieve.
func (t *Tool) Call(ctx context.Context, args json.RawMessage) string {
	var in struct {
		Question string `json:"question"`
		K        int    `json:"k"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return fmt.Sprintf("Invalid arguments for %s: %v", ToolName, err)
	}
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Sprintf("Invalid arguments for %s: question is required", ToolName)
	}
	return t.Retrieve(ctx, in.Question, in.K)
}

const askPrompt = `You are a code intelligence assistant for a C project that is being prepared for fuzzing. You answer questions about the codebase using the retrieved source code context provided below.

Focus on entry points that parse or process untrusted input, on how data flows between functions, and on the preconditions a caller must satisfy. Reference specific file paths and line numbers when relevant.

Keep answers concise and grounded in the provided context. If the context doesn't contain enough information to answer, say so.`

// BuildMessages constructs the message list for a question about the project from
// retrieved chunks and conversation history.
func BuildMessages(chunks []chunker.Chunk, history []llm.Message, question string) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: askPrompt}}

	if len(chunks) > 0 {
		var ctx strings.Builder
		ctx.WriteString("Here is the relevant source code context:\n\n")
		for i, c := range chunks {
			fmt.Fprintf(&ctx, "--- Chunk %d: %s [%s] (lines %d-%d) ---\n",
				i+1, c.FilePath, c.Name, c.StartLine, c.EndLine)
			ctx.WriteString(c.Code)
			ctx.WriteString("\n\n")
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: ctx.String()})
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: "I've reviewed the code context. What would you like to know?"})
	}

	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return msgs
}
