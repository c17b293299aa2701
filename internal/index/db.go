package index

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const pragmas = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA temp_store = MEMORY;
PRAGMA busy_timeout = 5000;
PRAGMA foreign_keys = ON;
`

type DB struct {
	db   *sql.DB
	path string
}

// CreateDB deletes any store at dbPath and creates an empty one with the
// full schema. Rebuilding from the same export therefore always starts
// from nothing.
func CreateDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove old db: %w", err)
		}
	}

	d, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := d.db.Exec(schemaSQL); err != nil {
		d.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return d, nil
}

// OpenDB opens an existing store built by CreateDB.
func OpenDB(dbPath string) (*DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return open(dbPath)
}

func open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// single writer; also keeps the pragmas on the one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return &DB{db: db, path: dbPath}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

func (d *DB) Path() string {
	return d.path
}

// Optimize refreshes planner statistics and compacts the file.
func (d *DB) Optimize(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// TableCounts returns the row count of each of the four tables.
func (d *DB) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 4)
	for _, table := range []string{"conversations", "messages", "attachments", "tapbacks"} {
		var n int
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Summary is the post-build overview.
type Summary struct {
	Conversations int
	Messages      int
	Duplicates    int
	Attachments   int
	Tapbacks      int
}

func (d *DB) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages WHERE is_duplicate = FALSE),
			(SELECT COUNT(*) FROM messages WHERE is_duplicate = TRUE),
			(SELECT COUNT(*) FROM attachments),
			(SELECT COUNT(*) FROM tapbacks)`,
	).Scan(&s.Conversations, &s.Messages, &s.Duplicates, &s.Attachments, &s.Tapbacks)
	if err != nil {
		return s, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}
