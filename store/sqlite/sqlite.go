/*
Package sqlite provides the SQLite-backed persistence gateway.

PURPOSE:
  Owns one session database file: schema creation, the replace-all save,
  per-item updates, point and bulk reads, and the report queries.

KEY TABLES:
  units:        one row per condominium unit
  repair_items: repair lines, unit_id -> units.id

REPLACE-ALL CONTRACT:
  ReplaceAll deletes every repair item and unit and reinserts the new set
  inside ONE database transaction, then reads the stored shape back inside
  the same transaction. Any failed insert rolls everything back. A reader
  sees either the old set or the new set, never a mix.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Writes take the write lock, reads the
  read lock. Swapping the whole store for another session is the session
  controller's job (see ../../session).

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

LEGACY FILES:
  InitSchema is safe on databases written by older releases. Columns added
  since (priority_score, urgency) are created with ALTER TABLE when missing,
  and every read COALESCEs nullable legacy columns.

USAGE:
  store, err := sqlite.New("./databases/condo_repairs_....db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - units.go:   Unit and repair item operations
  - reports.go: Aggregation queries
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is one open session database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath and initializes the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewContext(context.Background(), dbPath)
}

// NewContext is New with a context for schema initialization.
func NewContext(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != MemoryPath {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == MemoryPath {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

// addedColumns are repair_items columns newer than the first schema.
var addedColumns = []struct {
	name string
	ddl  string
}{
	{"priority_score", "priority_score INTEGER DEFAULT 0"},
	{"urgency", "urgency TEXT DEFAULT ''"},
}

// InitSchema idempotently creates the tables and indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	existing, err := s.columns(ctx, "repair_items")
	if err != nil {
		return err
	}
	for _, col := range addedColumns {
		if existing[col.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE repair_items ADD COLUMN "+col.ddl); err != nil {
			return fmt.Errorf("adding column %s: %w", col.name, err)
		}
	}
	return nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx runs fn in a database transaction. The caller holds the write lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	return sqlTx.Commit()
}
