package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"overhaul/internal/embedder"
	"overhaul/internal/index"
	"overhaul/internal/store"
)

var flagWorkers int

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "Index a C project's functions for search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		dbPath := flagDB
		if dbPath == "" {
			dbPath = defaultDBPath(root)
		}
		if cmd.Flags().Changed("workers") {
			cfg.Embedding.Workers = flagWorkers
		}

		emb, err := embedder.New(cfg.Embedding, logger)
		if err != nil {
			return err
		}
		st, err := openStore(dbPath)
		if err != nil {
			return err
		}

		fmt.Printf("Indexing %s...\n", root)
		start := time.Now()

		c := newConsole()
		idx, err := index.BuildProject(cmd.Context(), root, cfg, emb, st, c.progress, logger)
		if err != nil {
			st.Close()
			return err
		}
		defer idx.Close()

		stats := index.StatsOf(idx)
		fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Files:     %d\n", stats.Files)
		fmt.Printf("  Functions: %d\n", stats.Chunks)
		fmt.Printf("  Dimension: %d\n", stats.Dimension)
		fmt.Printf("  Database:  %s\n", dbPath)
		return nil
	},
}

func init() {
	indexCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel embedding requests (default embedding.workers)")
	rootCmd.AddCommand(indexCmd)
}

func defaultDBPath(root string) string {
	return filepath.Join(root, ".overhaul", "index.db")
}

// openStore opens the vector store. An empty path selects the configured in-memory
// store; anything else is a sqlite file whose directory is created as needed.
func openStore(dbPath string) (store.Store, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return index.OpenStore(cfg.Embedding, "")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return s, nil
}

// openIndex loads an index built by `overhaul index`. An empty path means the
// default database of the working directory.
func openIndex(ctx context.Context, dbPath string) (*index.Index, error) {
	if dbPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dbPath = defaultDBPath(wd)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("index not found at %s\nRun 'overhaul index <path>' first to build the index", dbPath)
	}

	emb, err := embedder.New(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	idx, err := index.Open(ctx, st, emb, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	if idx.Len() == 0 {
		idx.Close()
		return nil, fmt.Errorf("index at %s is empty", dbPath)
	}
	return idx, nil
}
