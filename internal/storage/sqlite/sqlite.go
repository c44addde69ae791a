// Package sqlite implements the relational storage backend on a single
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/storage"
)

// Backend is the SQLite implementation of storage.Backend.
type Backend struct {
	db *sql.DB
	// writeMu serialises write transactions; WAL mode lets readers proceed
	// while a write is in flight.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database file and applies the pragmas
// the engine depends on. Failures wrap storage.ErrUnavailable so the caller
// can fall back.
func Open(ctx context.Context, path string) (*Backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("sqlite: create data directory: %w: %w", storage.ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w: %w", path, storage.ErrUnavailable, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w: %w", path, storage.ErrUnavailable, err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w: %w", pragma, storage.ErrUnavailable, err)
		}
	}

	// The version marker must exist before migrations can read it.
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (id INTEGER PRIMARY KEY CHECK (id = 1), version INTEGER NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: bootstrap schema_version: %w: %w", storage.ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: seed schema_version: %w: %w", storage.ErrUnavailable, err)
	}

	return &Backend{db: db}, nil
}

// Kind reports the backend kind.
func (b *Backend) Kind() storage.Kind { return storage.KindSQLite }

// WithRead runs fn inside a read transaction.
func (b *Backend) WithRead(ctx context.Context, fn func(storage.Tx) error) error {
	sqtx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Fault("begin read tx", err)
	}
	defer sqtx.Rollback()

	if err := fn(&tx{sq: sqtx}); err != nil {
		return err
	}
	return sqtx.Commit()
}

// WithWrite runs fn inside a serialised write transaction, committing on nil
// error and rolling back otherwise.
func (b *Backend) WithWrite(ctx context.Context, fn func(storage.Tx) error) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	sqtx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Fault("begin write tx", err)
	}
	defer sqtx.Rollback()

	if err := fn(&tx{sq: sqtx}); err != nil {
		return err
	}
	if err := sqtx.Commit(); err != nil {
		return storage.Fault("commit", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *Backend) Close() error { return b.db.Close() }

type tx struct {
	sq *sql.Tx
}

func (t *tx) Inventory() inventory.TxRepository { return &invTx{t: t} }
func (t *tx) Sales() sales.TxRepository         { return &salesTx{custTx{t: t}} }
func (t *tx) Customers() customers.TxRepository { return &custTx{t: t} }
func (t *tx) Schema() storage.SchemaTx          { return &schemaTx{t: t} }
func (t *tx) Meta() storage.MetaTx              { return &metaTx{t: t} }
