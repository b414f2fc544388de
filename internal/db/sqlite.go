package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver; registers itself as "sqlite" with
	// database/sql. Grounded on the teacher's D1Bridge.
	_ "github.com/glebarez/sqlite"
)

// SQLite is the default Database backend: a single *sql.DB opened
// against one file (or :memory:) and shared across all workers. It holds
// one physical connection, so statements run one at a time; WriteLock
// additionally serializes the bridge's transactions.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) a WAL-mode SQLite database at path. An empty
// path opens a private in-memory database, used by tests and by hosts
// that don't need the data to outlive the process.
func Open(path string) (*SQLite, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: creating data directory %q: %w", dir, err)
		}
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: opening %q: %w", dsn, err)
	}
	// A single physical connection: SQLite serializes writers anyway,
	// and the transaction bridge already serializes logical
	// transactions with WriteLock, so pooling more connections would
	// only buy false concurrency that ends in SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: enabling WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: enabling foreign keys: %w", err)
	}
	return &SQLite{db: sqlDB}, nil
}

func (s *SQLite) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLite) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
