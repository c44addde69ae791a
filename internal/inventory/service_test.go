package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/shared"
)

type memRepo struct {
	items map[string]Item
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[string]Item)}
}

func (m *memRepo) WithRead(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) WithWrite(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) Insert(ctx context.Context, item Item) error {
	m.items[item.ID] = item
	return nil
}

func (m *memRepo) Update(ctx context.Context, item Item) error {
	if _, ok := m.items[item.ID]; !ok {
		return shared.ErrNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) Get(ctx context.Context, id string) (Item, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (m *memRepo) List(ctx context.Context) ([]Item, error) {
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		out = append(out, item)
	}
	return out, nil
}

func (m *memRepo) ListBelowThreshold(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		if item.Quantity <= item.LowStockThreshold {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memRepo) FindEquivalent(ctx context.Context, description, category, supplier string) (Item, error) {
	for _, item := range m.items {
		if item.Description == description && item.Category == category && item.Supplier == supplier {
			return item, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (m *memRepo) AdjustQuantity(ctx context.Context, id string, delta int) (Item, int, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, 0, shared.ErrNotFound
	}
	before := item.Quantity
	item.Quantity += delta
	if item.Quantity < 0 {
		item.Quantity = 0
	}
	m.items[id] = item
	return item, item.Quantity - before, nil
}

type captureBus struct {
	events []events.Event
}

func (c *captureBus) Publish(evt events.Event) {
	c.events = append(c.events, evt)
}

func validCreate() CreateItemRequest {
	return CreateItemRequest{
		Category:     "beverages",
		Description:  "ground coffee 500g",
		Quantity:     12,
		CostPrice:    decimal.RequireFromString("3.10"),
		SellingPrice: decimal.RequireFromString("5.00"),
		Supplier:     "acme",
	}
}

func TestCreateAppliesDefaultThresholdAndPublishes(t *testing.T) {
	repo := newMemRepo()
	bus := &captureBus{}
	svc := NewService(repo, bus)

	item, err := svc.Create(context.Background(), validCreate())
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)
	require.Equal(t, DefaultLowStockThreshold, item.LowStockThreshold)
	require.False(t, item.CreatedAt.IsZero())

	require.Len(t, bus.events, 1)
	require.Equal(t, events.TopicInventoryCreated, bus.events[0].Topic)
	require.Equal(t, item.ID, bus.events[0].EntityID)
}

func TestCreateRejectsEquivalentItem(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, validCreate())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validCreate())
	require.ErrorIs(t, err, shared.ErrDuplicateItem)
	require.Len(t, repo.items, 1)
}

func TestCreateRejectsNegativePrice(t *testing.T) {
	svc := NewService(newMemRepo(), nil)

	req := validCreate()
	req.SellingPrice = decimal.RequireFromString("-1")
	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateMergesPartialFields(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	req := validCreate()
	req.Attributes = map[string]string{"roast": "medium", "origin": "java"}
	item, err := svc.Create(ctx, req)
	require.NoError(t, err)

	newQty := 30
	updated, err := svc.Update(ctx, item.ID, UpdateItemRequest{
		Quantity:   &newQty,
		Attributes: map[string]string{"roast": "dark", "grind": "fine"},
	})
	require.NoError(t, err)
	require.Equal(t, 30, updated.Quantity)
	require.Equal(t, item.Description, updated.Description)
	require.Equal(t, item.SellingPrice, updated.SellingPrice)
	// Attribute entries merge key by key.
	require.Equal(t, map[string]string{
		"roast":  "dark",
		"origin": "java",
		"grind":  "fine",
	}, updated.Attributes)
}

func TestUpdateUnknownItem(t *testing.T) {
	svc := NewService(newMemRepo(), nil)

	qty := 1
	_, err := svc.Update(context.Background(), "nope", UpdateItemRequest{Quantity: &qty})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeletePublishesEvent(t *testing.T) {
	repo := newMemRepo()
	bus := &captureBus{}
	svc := NewService(repo, bus)
	ctx := context.Background()

	item, err := svc.Create(ctx, validCreate())
	require.NoError(t, err)
	bus.events = nil

	require.NoError(t, svc.Delete(ctx, item.ID))
	require.Empty(t, repo.items)
	require.Len(t, bus.events, 1)
	require.Equal(t, events.TopicInventoryDeleted, bus.events[0].Topic)

	require.ErrorIs(t, svc.Delete(ctx, item.ID), shared.ErrNotFound)
}

func TestListBelowThreshold(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	low := validCreate()
	low.Quantity = 2
	_, err := svc.Create(ctx, low)
	require.NoError(t, err)

	ok := validCreate()
	ok.Description = "tea 250g"
	ok.Quantity = 50
	_, err = svc.Create(ctx, ok)
	require.NoError(t, err)

	items, err := svc.ListBelowThreshold(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)
}
