package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()
	b, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		if err := tx.Schema().EnsureBaseSchema(ctx); err != nil {
			return err
		}
		if err := tx.Schema().EnsureLowStockThreshold(ctx, 10); err != nil {
			return err
		}
		if err := tx.Schema().EnsureCustomerAggregates(ctx); err != nil {
			return err
		}
		if err := tx.Schema().EnsureItemAttributes(ctx); err != nil {
			return err
		}
		if err := tx.Schema().EnsureSaleLineDecrements(ctx); err != nil {
			return err
		}
		return tx.Meta().SetSchemaVersion(ctx, 5)
	}))
	return b
}

func testItem(id string) inventory.Item {
	now := time.Date(2026, time.August, 1, 9, 30, 0, 0, time.UTC)
	return inventory.Item{
		ID:                id,
		Category:          "beverages",
		Description:       "item " + id,
		Quantity:          12,
		CostPrice:         decimal.RequireFromString("3.10"),
		SellingPrice:      decimal.RequireFromString("5.00"),
		Supplier:          "acme",
		LowStockThreshold: 10,
		Attributes:        map[string]string{"roast": "dark"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestItemRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	want := testItem("i1")
	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		return tx.Inventory().Insert(ctx, want)
	}))

	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		got, err := tx.Inventory().Get(ctx, "i1")
		require.NoError(t, err)
		require.Equal(t, want.Description, got.Description)
		require.Equal(t, want.Quantity, got.Quantity)
		require.True(t, got.SellingPrice.Equal(want.SellingPrice))
		require.Equal(t, want.Attributes, got.Attributes)
		require.True(t, got.CreatedAt.Equal(want.CreatedAt))
		return nil
	}))
}

func TestAdjustQuantityClampsAtZero(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		return tx.Inventory().Insert(ctx, testItem("i1"))
	}))

	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		item, applied, err := tx.Inventory().AdjustQuantity(ctx, "i1", -40)
		if err != nil {
			return err
		}
		require.Equal(t, 0, item.Quantity)
		require.Equal(t, -12, applied)
		return nil
	}))
}

func TestWriteErrorRollsBackEverything(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := b.WithWrite(ctx, func(tx storage.Tx) error {
		if err := tx.Inventory().Insert(ctx, testItem("i1")); err != nil {
			return err
		}
		if _, err := tx.Sales().NextInvoiceNumber(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		_, err := tx.Inventory().Get(ctx, "i1")
		require.ErrorIs(t, err, shared.ErrNotFound)
		return nil
	}))

	// The discarded counter bump must not leave a gap.
	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		seq, err := tx.Sales().NextInvoiceNumber(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), seq)
		return nil
	}))
}

func TestSaleRoundTripAndLedgerScan(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	when := time.Date(2026, time.August, 20, 14, 0, 0, 0, time.UTC)

	cust := customers.Customer{ID: "c1", Name: "Dewi", CreatedAt: when, UpdatedAt: when}
	cust.Stats.TotalPurchases = decimal.Zero
	cid := "c1"
	rec := sales.Record{
		ID:            "s1",
		InvoiceNo:     "INV-000001",
		OccurredAt:    when,
		CustomerID:    &cid,
		PaymentMethod: "cash",
		Status:        sales.StatusCompleted,
		Lines: []sales.SaleLine{
			{ItemID: "i1", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00"), LineTotal: decimal.RequireFromString("10.00"), Decremented: 2},
		},
		TotalAmount: decimal.RequireFromString("10.00"),
	}

	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		if err := tx.Customers().Insert(ctx, cust); err != nil {
			return err
		}
		return tx.Sales().InsertSale(ctx, rec)
	}))

	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		got, err := tx.Sales().GetSale(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, rec.InvoiceNo, got.InvoiceNo)
		require.NotNil(t, got.CustomerID)
		require.Equal(t, "c1", *got.CustomerID)
		require.Len(t, got.Lines, 1)
		require.True(t, got.Lines[0].LineTotal.Equal(rec.Lines[0].LineTotal))
		require.Equal(t, 2, got.Lines[0].Decremented)

		entries, err := tx.Customers().LedgerByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.True(t, entries[0].Total.Equal(rec.TotalAmount))
		require.True(t, entries[0].OccurredAt.Equal(when))
		return nil
	}))

	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		return tx.Sales().DeleteSale(ctx, "s1")
	}))
	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		_, err := tx.Sales().GetSale(ctx, "s1")
		require.ErrorIs(t, err, shared.ErrNotFound)
		entries, err := tx.Customers().LedgerByCustomer(ctx, "c1")
		require.NoError(t, err)
		require.Empty(t, entries)
		return nil
	}))
}

func TestAggregateRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	now := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)

	cust := customers.Customer{ID: "c1", Name: "Dewi", CreatedAt: now, UpdatedAt: now}
	cust.Stats.TotalPurchases = decimal.Zero
	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		return tx.Customers().Insert(ctx, cust)
	}))

	last := now.Add(72 * time.Hour)
	want := customers.Aggregate{
		TotalPurchases:   decimal.RequireFromString("42.50"),
		PurchaseCount:    3,
		LastPurchaseDate: &last,
	}
	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		return tx.Customers().SetAggregate(ctx, "c1", want)
	}))

	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		got, err := tx.Customers().GetAggregate(ctx, "c1")
		require.NoError(t, err)
		require.Equal(t, want.PurchaseCount, got.PurchaseCount)
		require.True(t, got.TotalPurchases.Equal(want.TotalPurchases))
		require.NotNil(t, got.LastPurchaseDate)
		require.True(t, got.LastPurchaseDate.Equal(last))
		return nil
	}))
}

func TestMigrationStepsAreIdempotent(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	// Re-running every structural step against a migrated store is a no-op.
	require.NoError(t, b.WithWrite(ctx, func(tx storage.Tx) error {
		if err := tx.Schema().EnsureBaseSchema(ctx); err != nil {
			return err
		}
		if err := tx.Schema().EnsureLowStockThreshold(ctx, 10); err != nil {
			return err
		}
		if err := tx.Schema().EnsureCustomerAggregates(ctx); err != nil {
			return err
		}
		if err := tx.Schema().EnsureItemAttributes(ctx); err != nil {
			return err
		}
		return tx.Schema().EnsureSaleLineDecrements(ctx)
	}))

	require.NoError(t, b.WithRead(ctx, func(tx storage.Tx) error {
		v, err := tx.Meta().SchemaVersion(ctx)
		require.NoError(t, err)
		require.Equal(t, 5, v)
		return nil
	}))
}
