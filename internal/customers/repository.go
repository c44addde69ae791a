package customers

import "context"

// StatsTx is the slice of a transaction the aggregator needs: aggregate
// read/write plus a scan of the sales ledger restricted to one customer.
// The sales ledger embeds this interface in its own transaction contract so
// aggregate updates commit atomically with the sale that caused them.
type StatsTx interface {
	CustomerExists(ctx context.Context, id string) (bool, error)
	GetAggregate(ctx context.Context, id string) (Aggregate, error)
	SetAggregate(ctx context.Context, id string, agg Aggregate) error
	LedgerByCustomer(ctx context.Context, id string) ([]LedgerEntry, error)
	ListCustomerIDs(ctx context.Context) ([]string, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	StatsTx
	Insert(ctx context.Context, c Customer) error
	Update(ctx context.Context, c Customer) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Customer, error)
	List(ctx context.Context) ([]Customer, error)
}

// Repository abstracts backend transactions for the service.
type Repository interface {
	WithRead(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WithWrite(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
