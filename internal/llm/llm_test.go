package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var searchTool = ToolSpec{
	Name:        "search_code",
	Description: "search",
	Parameters:  map[string]any{"type": "object"},
}

func TestOllamaChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Stream || len(req.Tools) != 1 || req.Tools[0].Function.Name != "search_code" {
			t.Errorf("request = %+v", req)
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != RoleTool || last.ToolName != "search_code" {
			t.Errorf("last message = %+v", last)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"search_code","arguments":{"question":"parser"}}}]}}`))
	}))
	defer srv.Close()

	c := NewOllamaChat(Config{BaseURL: srv.URL, Model: "qwen3:8b"})
	reply, err := c.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleTool, Content: "result", Name: "search_code", ToolCallID: "call_0"},
	}, []ToolSpec{searchTool})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].ID != "call_0" || reply.ToolCalls[0].Name != "search_code" {
		t.Fatalf("reply = %+v", reply)
	}
	var args struct{ Question string }
	if err := json.Unmarshal(reply.ToolCalls[0].Arguments, &args); err != nil || args.Question != "parser" {
		t.Fatalf("args = %s", reply.ToolCalls[0].Arguments)
	}
}

func TestOllamaChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Generate(context.Background(), NewOllamaChat(Config{BaseURL: srv.URL}), []Message{{Role: RoleUser, Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenAIChatRoundTrip(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		raw, _ := io.ReadAll(r.Body)
		var req openAIChatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "gpt-4.1-mini" || req.MaxTokens != 100 {
			t.Errorf("request = %+v", req)
		}
		asst := req.Messages[1]
		if len(asst.ToolCalls) != 1 || asst.ToolCalls[0].Function.Arguments != `{"question":"q"}` {
			t.Errorf("assistant message = %+v", asst)
		}
		if req.Messages[2].ToolCallID != "call_a" {
			t.Errorf("tool message = %+v", req.Messages[2])
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"int LLVMFuzzerTestOneInput() {}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIChat(Config{BaseURL: srv.URL, Model: "gpt-4.1-mini", APIKey: "sk-test", MaxTokens: 100, Timeout: time.Second})
	c.backoff = time.Millisecond
	reply, err := c.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "write"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_a", Name: "search_code", Arguments: json.RawMessage(`{"question":"q"}`)}}},
		{Role: RoleTool, ToolCallID: "call_a", Name: "search_code", Content: "No relevant code found."},
	}, []ToolSpec{searchTool})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want a retry", calls.Load())
	}
	if !strings.HasPrefix(reply.Content, "int LLVMFuzzerTestOneInput") {
		t.Fatalf("content = %q", reply.Content)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "bard"}); err == nil {
		t.Fatal("expected error")
	}
	c, err := New(Config{Provider: "ollama", Model: "m"})
	if err != nil || c.Model() != "m" {
		t.Fatalf("c=%v err=%v", c, err)
	}
}

func TestListOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"models":[{"name":"qwen3:8b","size":5200000000},{"name":"nomic-embed-text","size":274000000}]}`)
	}))
	defer srv.Close()

	models, err := ListOllamaModels(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("ListOllamaModels: %v", err)
	}
	if len(models) != 2 || models[0].Name != "qwen3:8b" {
		t.Fatalf("models = %+v", models)
	}
	if got := FormatSize(models[0].Size); got != "4.8 GB" {
		t.Fatalf("FormatSize = %q", got)
	}
	if got := FormatSize(models[1].Size); got != "261 MB" {
		t.Fatalf("FormatSize = %q", got)
	}
}
