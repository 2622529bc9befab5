package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"overhaul/internal/walker"
)

// MaxChunkBytes bounds the size of a chunk. Larger definitions are dropped, never cut.
const MaxChunkBytes = 4000

// Chunk is a function definition extracted from a source file.
type Chunk struct {
	Code      string
	Signature string
	FilePath  string
	Name      string
	StartLine int
	EndLine   int
}

// ASTChunker parses source files using tree-sitter and extracts function definitions.
type ASTChunker struct {
	registry *Registry
	logger   *slog.Logger
}

// NewASTChunker creates a chunker backed by the given registry.
func NewASTChunker(r *Registry, logger *slog.Logger) *ASTChunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ASTChunker{registry: r, logger: logger}
}

// Chunk parses src and returns one chunk per function definition. relPath is stored
// on every chunk as-is. Files without a registered grammar yield nil.
func (c *ASTChunker) Chunk(ctx context.Context, relPath string, src []byte) ([]Chunk, error) {
	spec, lang := c.registry.Lookup(relPath)
	if spec == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", relPath, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.Query), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", lang, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var captures []capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var chunkNode *sitter.Node
		var nameStr string
		for _, cap := range m.Captures {
			switch q.CaptureNameForId(cap.Index) {
			case "chunk":
				chunkNode = cap.Node
			case "name":
				nameStr = cap.Node.Content(src)
			}
		}
		if chunkNode == nil {
			continue
		}
		body := chunkNode.ChildByFieldName("body")
		if body == nil {
			// A prototype, not a definition.
			continue
		}
		if chunkNode.HasError() {
			c.logger.Debug("skipping definition with parse errors",
				"file", relPath, "line", int(chunkNode.StartPoint().Row)+1)
			continue
		}
		if nameStr == "" {
			nameStr = functionName(chunkNode, src)
		}
		captures = append(captures, capture{
			name:      nameStr,
			signature: collapseSpace(string(src[chunkNode.StartByte():body.StartByte()])),
			startLine: int(chunkNode.StartPoint().Row) + 1,
			endLine:   int(chunkNode.EndPoint().Row) + 1,
			startByte: chunkNode.StartByte(),
			endByte:   chunkNode.EndByte(),
		})
	}

	captures = dedup(captures)

	lines := strings.SplitAfter(string(src), "\n")
	var chunks []Chunk
	for _, cap := range captures {
		code := sliceLines(lines, cap.startLine, cap.endLine)
		if strings.TrimSpace(code) == "" || len(code) > MaxChunkBytes {
			continue
		}
		chunks = append(chunks, Chunk{
			Code:      code,
			Signature: cap.signature,
			FilePath:  relPath,
			Name:      cap.name,
			StartLine: cap.startLine,
			EndLine:   cap.endLine,
		})
	}
	return chunks, nil
}

// Extract walks root and chunks every accepted file with a registered grammar. Files
// that cannot be read or parsed are logged and skipped. The result is ordered by file
// path, then start line.
func (c *ASTChunker) Extract(ctx context.Context, root string, opts walker.Options, workers int) ([]Chunk, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	fileCh, walkErrCh := walker.Walk(root, opts)

	var (
		mu     sync.Mutex
		chunks []Chunk
		wg     sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fi := range fileCh {
				if ctx.Err() != nil {
					continue
				}
				src, err := os.ReadFile(fi.Path)
				if err != nil {
					c.logger.Warn("skipping unreadable file", "file", fi.RelPath, "err", err)
					continue
				}
				got, err := c.Chunk(ctx, fi.RelPath, src)
				if err != nil {
					c.logger.Warn("skipping unparseable file", "file", fi.RelPath, "err", err)
					continue
				}
				if len(got) == 0 {
					continue
				}
				mu.Lock()
				chunks = append(chunks, got...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := <-walkErrCh; err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].FilePath != chunks[j].FilePath {
			return chunks[i].FilePath < chunks[j].FilePath
		}
		return chunks[i].StartLine < chunks[j].StartLine
	})
	return chunks, nil
}

// functionName follows the declarator chain of a function_definition down to the
// function_declarator and returns its identifier.
func functionName(def *sitter.Node, src []byte) string {
	n := def.ChildByFieldName("declarator")
	for depth := 0; n != nil && depth < 8; depth++ {
		if n.Type() == "function_declarator" {
			if id := n.ChildByFieldName("declarator"); id != nil {
				return id.Content(src)
			}
			return ""
		}
		n = n.ChildByFieldName("declarator")
	}
	return ""
}

// dedup removes captures that are fully contained within a larger capture.
func dedup(caps []capture) []capture {
	if len(caps) <= 1 {
		return caps
	}
	// Sort by start byte ascending, then by size descending (larger first).
	sort.Slice(caps, func(i, j int) bool {
		if caps[i].startByte != caps[j].startByte {
			return caps[i].startByte < caps[j].startByte
		}
		return (caps[i].endByte - caps[i].startByte) > (caps[j].endByte - caps[j].startByte)
	})

	var result []capture
	var lastEnd uint32
	for _, c := range caps {
		if c.startByte >= lastEnd || lastEnd == 0 {
			result = append(result, c)
			if c.endByte > lastEnd {
				lastEnd = c.endByte
			}
		}
	}
	return result
}

// sliceLines returns lines startLine..endLine (1-indexed, inclusive) verbatim.
func sliceLines(lines []string, startLine, endLine int) string {
	start := startLine - 1
	end := endLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type capture struct {
	name      string
	signature string
	startLine int
	endLine   int
	startByte uint32
	endByte   uint32
}
