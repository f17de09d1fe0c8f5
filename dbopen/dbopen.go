// Package dbopen opens the SQLite catalog database with production pragmas
// applied via EXEC, and retries write transactions on SQLITE_BUSY.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("catalog.db", dbopen.WithSchema(catalog.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(catalog.Schema))
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type config struct {
	driver      string
	busyTimeout int
	mkdirAll    bool
	schemas     []string
}

// Option customises Open.
type Option func(*config)

// WithMkdirAll creates the parent directory of the database path.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to execute after the pragmas.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// Open opens an SQLite database at path. The caller blank-imports
// modernc.org/sqlite.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{driver: "sqlite", busyTimeout: 5000}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}

	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database pinned to one connection and
// closed on test cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// IsBusy reports whether err is an SQLite lock conflict.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

const maxAttempts = 3

// RunTx runs fn in a transaction, retrying up to 3 times with 100/200ms
// backoff when SQLite reports a lock conflict.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for i := range maxAttempts {
		err = runOnce(ctx, db, fn)
		if err == nil || !IsBusy(err) || i == maxAttempts-1 {
			return err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}
