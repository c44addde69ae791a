// Package storage defines the backend-agnostic transaction contract the
// engine runs on. Two implementations exist: a relational store on a single
// SQLite file and a fallback key-value store on BadgerDB. Call sites never
// branch on the active backend; the fallback decision is made once at
// startup.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
)

// Kind identifies a backend implementation.
type Kind string

const (
	// KindSQLite is the primary relational backend.
	KindSQLite Kind = "sqlite"
	// KindBadger is the fallback key-value backend.
	KindBadger Kind = "badger"
)

var (
	// ErrUnavailable indicates the backend cannot be reached at all; at
	// startup it triggers the permanent fallback.
	ErrUnavailable = errors.New("storage backend unavailable")
	// ErrFault indicates an I/O or constraint failure mid-operation. The
	// enclosing transaction has been rolled back.
	ErrFault = errors.New("storage fault")
)

// Fault wraps a backend error with the failing operation and ErrFault.
func Fault(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrFault, err)
}

// MetaTx persists engine metadata alongside the data it describes.
type MetaTx interface {
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error
}

// SchemaTx exposes the idempotent structural changes migration steps apply.
// Each method checks for existence before creating; the key-value backend
// implements the column operations as document rewrites or no-ops.
type SchemaTx interface {
	EnsureBaseSchema(ctx context.Context) error
	EnsureLowStockThreshold(ctx context.Context, defaultThreshold int) error
	EnsureCustomerAggregates(ctx context.Context) error
	EnsureItemAttributes(ctx context.Context) error
	EnsureSaleLineDecrements(ctx context.Context) error
}

// Tx is one transaction over the active backend. All repositories obtained
// from the same Tx share its atomicity: either every write commits or none
// do, on both backends.
type Tx interface {
	Inventory() inventory.TxRepository
	Sales() sales.TxRepository
	Customers() customers.TxRepository
	Schema() SchemaTx
	Meta() MetaTx
}

// Backend is a pluggable persistence implementation. Write transactions are
// serialised by the implementation; reads may run concurrently where the
// backend supports it.
type Backend interface {
	Kind() Kind
	WithRead(ctx context.Context, fn func(Tx) error) error
	WithWrite(ctx context.Context, fn func(Tx) error) error
	Close() error
}
