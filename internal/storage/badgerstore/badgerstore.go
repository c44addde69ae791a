// Package badgerstore implements the fallback storage backend on BadgerDB.
//
// The underlying medium is a flat persisted key-value map, so there are no
// relational transactions to lean on. Instead every badger transaction
// buffers its mutations in memory and flushes them only at commit, with a
// discard throwing the buffer away. That gives callers the same atomicity
// contract as the relational backend.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/storage"
)

// Key prefixes for the persisted document space.
const (
	itemPrefix     = "item/"
	customerPrefix = "customer/"
	salePrefix     = "sale/"
	metaSchemaKey  = "meta/schema-version"
	metaInvoiceKey = "meta/invoice-seq"
)

// Backend is the BadgerDB implementation of storage.Backend.
type Backend struct {
	db *badger.DB
	// mu serialises reads and writes alike: the transaction buffer gives no
	// cross-transaction isolation worth racing for on a local store.
	mu sync.Mutex
}

// Open opens (creating if needed) the store directory.
func Open(path string, logger *slog.Logger) (*Backend, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("badgerstore: create directory %s: %w: %w", path, storage.ErrUnavailable, err)
	}
	opts := badger.DefaultOptions(path).WithSyncWrites(true)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w: %w", path, storage.ErrUnavailable, err)
	}
	return &Backend{db: db}, nil
}

// OpenInMemory opens a non-persistent store. Used by tests.
func OpenInMemory() (*Backend, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open in-memory: %w: %w", storage.ErrUnavailable, err)
	}
	return &Backend{db: db}, nil
}

// Kind reports the backend kind.
func (b *Backend) Kind() storage.Kind { return storage.KindBadger }

// WithRead runs fn inside a read-only transaction.
func (b *Backend) WithRead(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()
	return fn(&tx{txn: txn})
}

// WithWrite runs fn inside a buffered write transaction, flushing the buffer
// on nil error and discarding it otherwise.
func (b *Backend) WithWrite(ctx context.Context, fn func(storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&tx{txn: txn}); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return storage.Fault("commit", err)
	}
	return nil
}

// Close closes the store.
func (b *Backend) Close() error { return b.db.Close() }

type tx struct {
	txn *badger.Txn
}

func (t *tx) Inventory() inventory.TxRepository { return &invTx{t: t} }
func (t *tx) Sales() sales.TxRepository         { return &salesTx{custTx{t: t}} }
func (t *tx) Customers() customers.TxRepository { return &custTx{t: t} }
func (t *tx) Schema() storage.SchemaTx          { return &schemaTx{t: t} }
func (t *tx) Meta() storage.MetaTx              { return &metaTx{t: t} }

// get returns the raw value at key. A missing key surfaces as errKeyMissing
// so the repositories can map it onto their not-found sentinel.
func (t *tx) get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errKeyMissing
	}
	if err != nil {
		return nil, storage.Fault("get "+key, err)
	}
	return item.ValueCopy(nil)
}

func (t *tx) set(key string, val []byte) error {
	if err := t.txn.Set([]byte(key), val); err != nil {
		return storage.Fault("set "+key, err)
	}
	return nil
}

func (t *tx) delete(key string) error {
	if err := t.txn.Delete([]byte(key)); err != nil {
		return storage.Fault("delete "+key, err)
	}
	return nil
}

// scanPrefix visits every value under prefix.
func (t *tx) scanPrefix(prefix string, visit func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return storage.Fault("scan "+prefix, err)
		}
		if err := visit(string(item.Key()), val); err != nil {
			return err
		}
	}
	return nil
}

var errKeyMissing = errors.New("badgerstore: key missing")

// badgerLogger adapts badger's logging onto slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
