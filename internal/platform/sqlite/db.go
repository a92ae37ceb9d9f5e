package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Options configure an SQLite database.
type Options struct {
	// MaxOpenConns caps open connections
	MaxOpenConns int
	// MaxIdleConns caps idle connections
	MaxIdleConns int
	// ConnMaxIdleTime closes connections idle for longer
	ConnMaxIdleTime time.Duration
	// PingTimeout bounds the ping done by Open
	PingTimeout time.Duration
	// WALMode enables the write-ahead log
	WALMode bool
	// BusyTimeout is how long a statement waits on SQLITE_BUSY
	BusyTimeout time.Duration
}

// DefaultOptions returns the settings for an embedded database.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4, // one writer, a few readers
		MaxIdleConns:    2,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
	}
}

// Open opens a database file, creating its directory if needed.
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return open(ctx, path, opts)
}

// OpenInMemory opens an in-memory database on a single connection. Each
// extra connection would see its own empty schema.
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxIdleTime = 0
	return open(ctx, ":memory:", opts)
}

func open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	db, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}
	return db, nil
}

// buildDSN passes per-connection PRAGMAs in the DSN so the driver applies
// them to every new pool connection.
func buildDSN(path string, opts Options) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "synchronous(NORMAL)")
	if opts.BusyTimeout > 0 {
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	return path + "?" + params.Encode()
}

// applyPragmas sets the PRAGMAs persisted in the database file.
func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	if !opts.WALMode {
		return nil
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}
	return nil
}
