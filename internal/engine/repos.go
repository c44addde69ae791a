package engine

import (
	"context"
	"time"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/observability"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/storage"
)

// meteredBackend wraps a backend and records transaction outcomes.
type meteredBackend struct {
	next    storage.Backend
	metrics *observability.Metrics
}

func (m *meteredBackend) Kind() storage.Kind { return m.next.Kind() }

func (m *meteredBackend) WithRead(ctx context.Context, fn func(storage.Tx) error) error {
	return m.observe(func() error { return m.next.WithRead(ctx, fn) })
}

func (m *meteredBackend) WithWrite(ctx context.Context, fn func(storage.Tx) error) error {
	return m.observe(func() error { return m.next.WithWrite(ctx, fn) })
}

func (m *meteredBackend) observe(run func() error) error {
	start := time.Now()
	err := run()
	outcome := observability.OutcomeCommit
	if err != nil {
		outcome = observability.OutcomeRollback
	}
	m.metrics.ObserveTransaction(string(m.next.Kind()), outcome, time.Since(start))
	return err
}

func (m *meteredBackend) Close() error { return m.next.Close() }

// The domain packages each declare their own repository port; these adapters
// narrow a backend transaction to the slice each service is allowed to see.

type invRepo struct {
	b storage.Backend
}

func (r invRepo) WithRead(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.b.WithRead(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Inventory()) })
}

func (r invRepo) WithWrite(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.b.WithWrite(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Inventory()) })
}

type custRepo struct {
	b storage.Backend
}

func (r custRepo) WithRead(ctx context.Context, fn func(context.Context, customers.TxRepository) error) error {
	return r.b.WithRead(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Customers()) })
}

func (r custRepo) WithWrite(ctx context.Context, fn func(context.Context, customers.TxRepository) error) error {
	return r.b.WithWrite(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Customers()) })
}

type salesRepo struct {
	b storage.Backend
}

func (r salesRepo) WithRead(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.b.WithRead(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Sales()) })
}

func (r salesRepo) WithWrite(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.b.WithWrite(ctx, func(tx storage.Tx) error { return fn(ctx, tx.Sales()) })
}
