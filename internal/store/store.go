package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrDimensionMismatch is returned when a vector does not match the store's dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// maxKNN is the largest k vec0 accepts in a single query.
const maxKNN = 4096

// Store persists chunk embeddings and serves L2 nearest-neighbour queries.
type Store interface {
	// Reset discards all chunks and vectors and prepares the store for vectors of dim.
	Reset(ctx context.Context, dim int) error
	// Clear discards all chunks and vectors and forgets the dimension.
	Clear(ctx context.Context) error
	// Dimension returns the vector dimension, or 0 before Reset.
	Dimension() int
	// InsertChunks stores chunk metadata keyed by ID.
	InsertChunks(ctx context.Context, chunks []ChunkRecord) error
	// ListChunks returns every stored chunk ordered by ID.
	ListChunks(ctx context.Context) ([]ChunkRecord, error)
	// InsertEmbeddings stores embeddings keyed by chunk ID.
	InsertEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error
	// Search returns up to k hits ordered by ascending distance, then ascending ID.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(key, value string) error
	// Close closes the underlying storage.
	Close() error
}

// SQLiteStore implements Store backed by SQLite + sqlite-vec.
type SQLiteStore struct {
	db  *sql.DB
	dim int
}

// Open creates or opens a SQLite database at the given path and initializes the schema.
// An empty path or ":memory:" opens a private in-memory database.
func Open(dbPath string) (*SQLiteStore, error) {
	memory := dbPath == "" || dbPath == ":memory:"
	dsn := dbPath + "?_journal_mode=WAL"
	if memory {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if memory {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	if v, err := s.GetMeta(MetaDimension); err == nil && v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			s.dim = dim
		}
	}
	return s, nil
}

func (s *SQLiteStore) Dimension() int { return s.dim }

func (s *SQLiteStore) Reset(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS vec_chunks"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, vecDDL(dim)); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		MetaDimension, strconv.Itoa(dim),
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dim = dim
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS vec_chunks",
		"DELETE FROM chunks",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM meta WHERE key = ?", MetaDimension); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dim = 0
	return nil
}

func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, file_path, name, signature, start_line, end_line, code) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.FilePath, c.Name, c.Signature, c.StartLine, c.EndLine, c.Code); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListChunks(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_path, name, signature, start_line, end_line, code FROM chunks ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Name, &c.Signature, &c.StartLine, &c.EndLine, &c.Code); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	if len(ids) != len(embeddings) {
		return fmt.Errorf("mismatched chunk IDs (%d) and embeddings (%d)", len(ids), len(embeddings))
	}
	if s.dim == 0 {
		return errors.New("vector table not initialised")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, cid := range ids {
		if len(embeddings[i]) != s.dim {
			return fmt.Errorf("chunk %d: %w: got %d, want %d", cid, ErrDimensionMismatch, len(embeddings[i]), s.dim)
		}
		blob, err := sqlite_vec.SerializeFloat32(embeddings[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d: %w", cid, err)
		}
		if _, err := stmt.ExecContext(ctx, cid, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", cid, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || s.dim == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	// Over-fetch so equal distances at the cut are ordered by ID, not by vec0.
	fetch := min(k+16, maxKNN)
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, distance
		FROM vec_chunks
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, blob, fetch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *SQLiteStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}
