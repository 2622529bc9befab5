package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"overhaul/internal/chunker"
	"overhaul/internal/index"
	"overhaul/internal/rag"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing the project's function index",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	idx, err := openIndex(cmd.Context(), flagDB)
	if err != nil {
		return err
	}
	defer idx.Close()

	s := mcpserver.NewMCPServer("overhaul", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodeTool(), makeSearchHandler(rag.NewTool(idx, rag.DefaultK, logger)))
	s.AddTool(listFunctionsTool(), makeListFunctionsHandler(idx))
	s.AddTool(getFunctionTool(), makeGetFunctionHandler(idx))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool(rag.ToolName,
		mcp.WithDescription("Semantically search the indexed C project. Returns whole function definitions with their file path, signature and code."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("What to look for, e.g. a function's purpose or a data structure name"),
		),
		mcp.WithNumber("k",
			mcp.Description(fmt.Sprintf("Number of functions to return (default %d)", rag.DefaultK)),
		),
	)
}

func listFunctionsTool() mcp.Tool {
	return mcp.NewTool("list_functions",
		mcp.WithDescription("List the indexed function signatures with their locations."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("file",
			mcp.Description("Optional file path prefix (relative to the project root)"),
		),
	)
}

func getFunctionTool() mcp.Tool {
	return mcp.NewTool("get_function",
		mcp.WithDescription("Get the full definition of an indexed function by name."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Function name, e.g. kv_parse"),
		),
	)
}

func makeSearchHandler(tool *rag.Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := req.GetString("question", "")
		if question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		return mcp.NewToolResultText(tool.Retrieve(ctx, question, req.GetInt("k", 0))), nil
	}
}

func makeListFunctionsHandler(idx *index.Index) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(formatFunctionList(idx.Chunks(), req.GetString("file", ""))), nil
	}
}

func makeGetFunctionHandler(idx *index.Index) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.GetString("name", "")
		if name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		var found []chunker.Chunk
		for _, c := range idx.Chunks() {
			if c.Name == name {
				found = append(found, c)
			}
		}
		if len(found) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("function %q not found in index, call list_functions to see what is available", name)), nil
		}
		return mcp.NewToolResultText(rag.Format(found)), nil
	}
}

func formatFunctionList(chunks []chunker.Chunk, filePrefix string) string {
	var sb strings.Builder
	n := 0
	for _, c := range chunks {
		if filePrefix != "" && !strings.HasPrefix(c.FilePath, filePrefix) {
			continue
		}
		fmt.Fprintf(&sb, "- `%s` (%s:%d-%d)\n", c.Signature, c.FilePath, c.StartLine, c.EndLine)
		n++
	}
	if n == 0 {
		return "No indexed functions match."
	}
	return fmt.Sprintf("## Indexed functions (%d)\n\n", n) + sb.String()
}
