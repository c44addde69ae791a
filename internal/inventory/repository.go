package inventory

import "context"

// TxRepository exposes the transactional operations used by the service and,
// for quantity adjustment, by the sales ledger. AdjustQuantity is deliberately
// absent from the Service surface: the ledger is the only permitted caller.
type TxRepository interface {
	Insert(ctx context.Context, item Item) error
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	ListBelowThreshold(ctx context.Context) ([]Item, error)
	// FindEquivalent locates an item with the same description, category and
	// supplier. Returns shared.ErrNotFound when none exists.
	FindEquivalent(ctx context.Context, description, category, supplier string) (Item, error)
	// AdjustQuantity applies delta to the stored quantity, clamping the result
	// at zero. It returns the updated item and the delta actually applied,
	// which is smaller in magnitude than the requested one when the clamp hit.
	AdjustQuantity(ctx context.Context, id string, delta int) (Item, int, error)
}

// Repository abstracts backend transactions for the service.
type Repository interface {
	WithRead(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithWrite(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
