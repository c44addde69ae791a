package badgerstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/shared"
)

type invTx struct {
	t *tx
}

func (r *invTx) Insert(ctx context.Context, item inventory.Item) error {
	return r.put(item)
}

func (r *invTx) Update(ctx context.Context, item inventory.Item) error {
	if _, err := r.Get(ctx, item.ID); err != nil {
		return err
	}
	return r.put(item)
}

func (r *invTx) put(item inventory.Item) error {
	val, err := encodeItem(item)
	if err != nil {
		return err
	}
	return r.t.set(itemPrefix+item.ID, val)
}

func (r *invTx) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.t.delete(itemPrefix + id)
}

func (r *invTx) Get(ctx context.Context, id string) (inventory.Item, error) {
	val, err := r.t.get(itemPrefix + id)
	if errors.Is(err, errKeyMissing) {
		return inventory.Item{}, shared.ErrNotFound
	}
	if err != nil {
		return inventory.Item{}, err
	}
	return decodeItem(val)
}

func (r *invTx) List(ctx context.Context) ([]inventory.Item, error) {
	return r.listWhere(func(inventory.Item) bool { return true })
}

func (r *invTx) ListBelowThreshold(ctx context.Context) ([]inventory.Item, error) {
	return r.listWhere(func(item inventory.Item) bool {
		return item.Quantity <= item.LowStockThreshold
	})
}

func (r *invTx) listWhere(keep func(inventory.Item) bool) ([]inventory.Item, error) {
	var items []inventory.Item
	err := r.t.scanPrefix(itemPrefix, func(_ string, val []byte) error {
		item, err := decodeItem(val)
		if err != nil {
			return err
		}
		if keep(item) {
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (r *invTx) FindEquivalent(ctx context.Context, description, category, supplier string) (inventory.Item, error) {
	items, err := r.listWhere(func(item inventory.Item) bool {
		return item.Description == description && item.Category == category && item.Supplier == supplier
	})
	if err != nil {
		return inventory.Item{}, err
	}
	if len(items) == 0 {
		return inventory.Item{}, shared.ErrNotFound
	}
	return items[0], nil
}

func (r *invTx) AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Item, int, error) {
	item, err := r.Get(ctx, id)
	if err != nil {
		return inventory.Item{}, 0, err
	}
	qty := item.Quantity + delta
	if qty < 0 {
		qty = 0
	}
	applied := qty - item.Quantity
	item.Quantity = qty
	item.UpdatedAt = time.Now().UTC()
	if err := r.put(item); err != nil {
		return inventory.Item{}, 0, err
	}
	return item, applied, nil
}
