package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on expire for Purge
const currentSchemaVersion = 1

// Defaults applied by Open when the corresponding option is zero.
const (
	DefaultTable        = "sessions"
	DefaultTimeout      = 1440 * time.Second
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 4
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. Created if missing.
	Path string

	// Table is the session table name. Must be a plain identifier.
	Table string

	// Streaming selects the blob path: true uses incremental blob I/O through
	// github.com/ncruces/go-sqlite3, false binds blobs inline through
	// modernc.org/sqlite.
	Streaming bool

	// Timeout is the session lifetime added to now on every write.
	Timeout time.Duration

	// BusyTimeout bounds how long a statement waits for the database lock.
	BusyTimeout time.Duration

	// MaxOpenConns bounds the connection pool. Each in-flight session span
	// pins at most one connection.
	MaxOpenConns int

	// Clock supplies now for expiry computation and filtering.
	Clock Clock

	Logger *slog.Logger
}

// ValidTableName reports whether name can be used as the session table.
func ValidTableName(name string) bool {
	return tableNameRE.MatchString(name)
}

// Store provides point CRUD against the session table.
type Store struct {
	db      *sql.DB
	table   string
	timeout time.Duration
	blobs   BlobAdapter
	clock   Clock
	logger  *slog.Logger
}

// Open creates or opens a SQLite session database.
// Applies the schema and migrations automatically.
//
// The backend is chosen here, once: Streaming selects the ncruces driver with
// StreamingBlobs, otherwise the modernc driver with InlineBlobs.
//
// This function is idempotent - safe to call multiple times.
func Open(opts Options) (*Store, error) {
	opts = withDefaults(opts)
	if opts.Path == "" {
		return nil, fmt.Errorf("open store: empty database path")
	}
	if !ValidTableName(opts.Table) {
		return nil, fmt.Errorf("open store: invalid table name %q", opts.Table)
	}

	driver, dsn := dataSource(opts)
	var blobs BlobAdapter = InlineBlobs{}
	if opts.Streaming {
		blobs = StreamingBlobs{}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	if err := applySchema(db, opts.Table); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	opts.Logger.Debug("session store opened",
		"path", opts.Path,
		"driver", driver,
		"blobs", blobs.Name(),
		"table", opts.Table,
	)

	return &Store{
		db:      db,
		table:   opts.Table,
		timeout: opts.Timeout,
		blobs:   blobs,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}, nil
}

func withDefaults(opts Options) Options {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultMaxOpenConns
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// dataSource returns the driver name and DSN for the selected backend.
// Per-connection settings live in the DSN so every pooled connection gets
// them, not just the one a PRAGMA statement happened to run on.
func dataSource(opts Options) (driver, dsn string) {
	ms := opts.BusyTimeout.Milliseconds()
	if opts.Streaming {
		return "sqlite3", fmt.Sprintf(
			"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
			opts.Path, ms)
	}
	return "sqlite", fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		opts.Path, ms)
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Table returns the session table name.
func (s *Store) Table() string {
	return s.table
}

// Timeout returns the configured session lifetime.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// Blobs returns the blob adapter selected at Open.
func (s *Store) Blobs() BlobAdapter {
	return s.blobs
}

// applySchema creates the table if it doesn't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB, table string) error {
	if _, err := db.Exec(strings.ReplaceAll(schemaSQL, "{{table}}", table)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db, table); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB, table string) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db, table); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds an index on expire so Purge does not scan the table.
func migrateToV1(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_%s_expire ON %s(expire)", table, table))
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(ctx context.Context, name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
