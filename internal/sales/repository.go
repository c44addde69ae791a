package sales

import (
	"context"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
)

// TxRepository is the transaction contract the ledger orchestrates over.
// It spans three entities on purpose: a sale, its inventory decrements and
// the customer aggregate update must commit or roll back as one unit.
type TxRepository interface {
	customers.StatsTx

	// NextInvoiceNumber advances the persisted invoice counter.
	NextInvoiceNumber(ctx context.Context) (int64, error)
	InsertSale(ctx context.Context, rec Record) error
	DeleteSale(ctx context.Context, id string) error
	GetSale(ctx context.Context, id string) (Record, error)
	ListSales(ctx context.Context) ([]Record, error)
	UpdateSaleStatus(ctx context.Context, id, status, notes string) error

	GetItem(ctx context.Context, itemID string) (inventory.Item, error)
	// AdjustItemQuantity applies delta to the item's stock, clamped at zero.
	// The returned int is the delta actually applied after clamping.
	AdjustItemQuantity(ctx context.Context, itemID string, delta int) (inventory.Item, int, error)
}

// Repository abstracts backend transactions for the ledger.
type Repository interface {
	WithRead(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithWrite(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
