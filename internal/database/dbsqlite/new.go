package dbsqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // driver
)

// OpenDB opens (and creates) the lineage database at path.
func OpenDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// single writer, the chain tracker serializes its own calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schemaSQL = `
-- One row per block alias, committed or not
CREATE TABLE IF NOT EXISTS blocks (
  alias     INTEGER PRIMARY KEY,
  parent    INTEGER NOT NULL,
  height    INTEGER NOT NULL,
  committed INTEGER NOT NULL DEFAULT 0,
  block_id  BLOB
) STRICT;

CREATE INDEX IF NOT EXISTS ix_blocks_height ON blocks(height);
`
