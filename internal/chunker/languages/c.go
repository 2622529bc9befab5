package languages

import (
	"overhaul/internal/chunker"

	"github.com/smacker/go-tree-sitter/c"
)

// RegisterC registers the C grammar for .c and .h files. Names are resolved from the
// declarator chain, so pointer-returning functions are captured too.
func RegisterC(r *chunker.Registry) {
	r.Register("c", &chunker.LanguageSpec{
		Language: c.GetLanguage(),
		Query: `
			(function_definition) @chunk
		`,
		Extensions: []string{"c", "h"},
	})
}

// NewCChunker returns a chunker with only the C grammar registered.
func NewCChunker(r *chunker.Registry) *chunker.ASTChunker {
	if r == nil {
		r = chunker.NewRegistry()
	}
	RegisterC(r)
	return chunker.NewASTChunker(r, nil)
}
