package schema

import (
	"context"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/storage"
)

// DefaultSteps is the migration history of the store. New steps append here
// with the next version; existing steps never change once shipped.
func DefaultSteps(lowStockDefault int) []Step {
	agg := customers.NewAggregator()
	return []Step{
		{
			Version: 1,
			Name:    "base schema",
			Apply: func(ctx context.Context, tx storage.Tx) error {
				return tx.Schema().EnsureBaseSchema(ctx)
			},
		},
		{
			Version: 2,
			Name:    "low stock threshold",
			Apply: func(ctx context.Context, tx storage.Tx) error {
				return tx.Schema().EnsureLowStockThreshold(ctx, lowStockDefault)
			},
		},
		{
			Version: 3,
			Name:    "customer purchase aggregates",
			Apply: func(ctx context.Context, tx storage.Tx) error {
				if err := tx.Schema().EnsureCustomerAggregates(ctx); err != nil {
					return err
				}
				// Backfill from the ledger so pre-existing customers start
				// with correct statistics, not zeroes.
				return agg.RecomputeAll(ctx, tx.Customers())
			},
		},
		{
			Version: 4,
			Name:    "item attributes and status normalisation",
			Apply: func(ctx context.Context, tx storage.Tx) error {
				return tx.Schema().EnsureItemAttributes(ctx)
			},
		},
		{
			Version: 5,
			Name:    "sale line decrement tracking",
			Apply: func(ctx context.Context, tx storage.Tx) error {
				return tx.Schema().EnsureSaleLineDecrements(ctx)
			},
		},
	}
}
