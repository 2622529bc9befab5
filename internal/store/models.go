package store

// ChunkRecord is a persisted code chunk. ID is the chunk's position in the index.
type ChunkRecord struct {
	ID        int64
	FilePath  string
	Name      string
	Signature string
	StartLine int
	EndLine   int
	Code      string
}

// Hit is a nearest-neighbour result.
type Hit struct {
	ID       int64
	Distance float64
}

// Meta keys recorded alongside the vectors.
const (
	MetaModel     = "embedding_model"
	MetaDimension = "dimension"
	MetaRoot      = "root"
)
