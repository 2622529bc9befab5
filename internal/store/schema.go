package store

import (
	"database/sql"
	"fmt"
)

const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id         INTEGER PRIMARY KEY,
    file_path  TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    signature  TEXT NOT NULL DEFAULT '',
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL,
    code       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// vecDDL creates the vector table. vec0 fixes the dimension at creation time, so the
// table is created once the first embedding is known.
func vecDDL(dim int) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
)`, dim)
}

// Init creates the schema tables if they don't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}
