package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/counterbook/counterbook/internal/app"
	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &app.Config{
		AppEnv:          "test",
		DataDir:         t.TempDir(),
		DBFile:          "counterbook.db",
		FallbackDir:     "fallback",
		ForceFallback:   true,
		DedupWindow:     time.Second,
		EventBufferLen:  16,
		LowStockDefault: 10,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func addItem(t *testing.T, eng *Engine, qty int, price string) inventory.Item {
	t.Helper()
	item, err := eng.Inventory.Create(context.Background(), inventory.CreateItemRequest{
		Category:     "beverages",
		Description:  "ground coffee 500g " + t.Name(),
		Quantity:     qty,
		CostPrice:    decimal.RequireFromString("3.10"),
		SellingPrice: decimal.RequireFromString(price),
		Supplier:     "acme",
	})
	require.NoError(t, err)
	return item
}

func addCustomer(t *testing.T, eng *Engine) customers.Customer {
	t.Helper()
	c, err := eng.Customers.Create(context.Background(), customers.CreateCustomerRequest{
		Name:  "Dewi " + t.Name(),
		Phone: "0812000",
	})
	require.NoError(t, err)
	return c
}

func TestStatusReportsFallbackAndMigration(t *testing.T) {
	eng := newTestEngine(t)

	status, err := eng.DatabaseStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, storage.KindBadger, status.Backend)
	require.True(t, status.FallbackActive)
	require.True(t, status.Migrated)
	require.Equal(t, status.TargetVersion, status.SchemaVersion)
}

func TestRecordSaleMovesInventoryAndAggregates(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 10, "5.00")
	cust := addCustomer(t, eng)

	rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		CustomerID:    &cust.ID,
		Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 3}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.Equal(t, "INV-000001", rec.InvoiceNo)
	require.True(t, rec.TotalAmount.Equal(decimal.RequireFromString("15.00")))

	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.Quantity)

	verified, err := eng.Customers.GetVerified(ctx, cust.ID)
	require.NoError(t, err)
	require.Equal(t, 1, verified.Stats.PurchaseCount)
	require.True(t, verified.Stats.TotalPurchases.Equal(rec.TotalAmount))
	require.NotNil(t, verified.Stats.LastPurchaseDate)
}

func TestOversellClampsQuantityAtZero(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 2, "4.00")

	rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 5}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	// The sale records what was asked for; only the stock clamps.
	require.Equal(t, 5, rec.Lines[0].Quantity)
	require.True(t, rec.TotalAmount.Equal(decimal.RequireFromString("20.00")))

	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Quantity)
}

func TestDeleteSaleAfterOversellRestoresClampedStock(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 5, "4.00")

	rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 10}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.Equal(t, 5, rec.Lines[0].Decremented)

	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Quantity)

	// Deleting the sale puts back the 5 units it removed, not the 10 the
	// caller asked for.
	require.NoError(t, eng.Sales.DeleteSale(ctx, rec.ID))

	got, err = eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Quantity)
}

func TestDeleteSaleRestoresInventoryAndRecomputes(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 10, "5.00")
	cust := addCustomer(t, eng)

	rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		CustomerID:    &cust.ID,
		Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 4}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	require.NoError(t, eng.Sales.DeleteSale(ctx, rec.ID))

	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.Quantity)

	verified, err := eng.Customers.GetVerified(ctx, cust.ID)
	require.NoError(t, err)
	require.Equal(t, 0, verified.Stats.PurchaseCount)
	require.True(t, verified.Stats.TotalPurchases.IsZero())

	_, err = eng.Sales.Get(ctx, rec.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordSaleUnknownItemRollsBackEverything(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 10, "5.00")

	_, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		Lines: []sales.LineInput{
			{ItemID: item.ID, Quantity: 2},
			{ItemID: "missing-item", Quantity: 1},
		},
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, sales.ErrUnknownItem)

	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.Quantity)

	recs, err := eng.Sales.List(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestRecordSaleUnknownCustomerIsRejected(t *testing.T) {
	eng := newTestEngine(t)

	missing := "no-such-customer"
	_, err := eng.Sales.RecordSale(context.Background(), sales.RecordSaleInput{
		CustomerID:    &missing,
		Lines:         []sales.LineInput{{ItemID: addItem(t, eng, 5, "2.00").ID, Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, sales.ErrUnknownCustomer)
}

func TestInvoiceNumbersAreSequential(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 100, "1.00")
	for i, want := range []string{"INV-000001", "INV-000002", "INV-000003"} {
		rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
			Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 1}},
			PaymentMethod: "cash",
		})
		require.NoError(t, err, "sale %d", i)
		require.Equal(t, want, rec.InvoiceNo)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	eng := newTestEngine(t)

	ch, cancel := eng.Subscribe(events.TopicInventoryCreated)
	defer cancel()

	item := addItem(t, eng, 5, "2.50")

	select {
	case evt := <-ch:
		require.Equal(t, events.TopicInventoryCreated, evt.Topic)
		require.Equal(t, item.ID, evt.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected an inventory-created event")
	}
}

func TestSaleLifecyclePublishesEvents(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	item := addItem(t, eng, 10, "5.00")
	cust := addCustomer(t, eng)

	ch, cancel := eng.Subscribe()
	defer cancel()

	rec, err := eng.Sales.RecordSale(ctx, sales.RecordSaleInput{
		CustomerID:    &cust.ID,
		Lines:         []sales.LineInput{{ItemID: item.ID, Quantity: 2}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	evt := nextEvent(t, ch)
	require.Equal(t, events.TopicSaleCreated, evt.Topic)
	require.Equal(t, rec.ID, evt.EntityID)

	evt = nextEvent(t, ch)
	require.Equal(t, events.TopicInventoryUpdated, evt.Topic)
	require.Equal(t, item.ID, evt.EntityID)

	evt = nextEvent(t, ch)
	require.Equal(t, events.TopicCustomerStatsUpdated, evt.Topic)
	require.Equal(t, cust.ID, evt.EntityID)

	require.NoError(t, eng.Sales.DeleteSale(ctx, rec.ID))

	evt = nextEvent(t, ch)
	require.Equal(t, events.TopicSaleDeleted, evt.Topic)
	require.Equal(t, rec.ID, evt.EntityID)

	evt = nextEvent(t, ch)
	require.Equal(t, events.TopicInventoryUpdated, evt.Topic)
	require.Equal(t, item.ID, evt.EntityID)

	evt = nextEvent(t, ch)
	require.Equal(t, events.TopicCustomerStatsUpdated, evt.Topic)
	require.Equal(t, cust.ID, evt.EntityID)

	rr := httptest.NewRecorder()
	eng.Metrics().Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	require.Contains(t, body, `counterbook_events_published_total{topic="sale-created"} 1`)
	require.Contains(t, body, `counterbook_events_published_total{topic="sale-deleted"} 1`)
	require.Contains(t, body, `counterbook_events_published_total{topic="inventory-updated"} 2`)
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an event")
		return events.Event{}
	}
}

func TestSqliteFailureEngagesFallback(t *testing.T) {
	dir := t.TempDir()
	cfg := &app.Config{
		AppEnv:          "test",
		DataDir:         dir,
		DBFile:          "counterbook.db",
		FallbackDir:     "fallback",
		DedupWindow:     time.Second,
		EventBufferLen:  16,
		LowStockDefault: 10,
	}
	// A directory at the database path makes the relational open fail.
	require.NoError(t, os.MkdirAll(cfg.DBPath(), 0o750))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	eng, err := Open(ctx, cfg, logger)
	require.NoError(t, err)
	defer eng.Close()

	status, err := eng.DatabaseStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, storage.KindBadger, status.Backend)
	require.True(t, status.FallbackActive)
	require.True(t, status.Migrated)

	item := addItem(t, eng, 6, "2.00")
	got, err := eng.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 6, got.Quantity)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := &app.Config{
		AppEnv:          "test",
		DataDir:         dir,
		DBFile:          "counterbook.db",
		FallbackDir:     "fallback",
		ForceFallback:   true,
		DedupWindow:     time.Second,
		EventBufferLen:  16,
		LowStockDefault: 10,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	eng, err := Open(ctx, cfg, logger)
	require.NoError(t, err)
	item := addItem(t, eng, 8, "3.00")
	require.NoError(t, eng.Close())

	eng2, err := Open(ctx, cfg, logger)
	require.NoError(t, err)
	defer eng2.Close()

	got, err := eng2.Inventory.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, 8, got.Quantity)
}
