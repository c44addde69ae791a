package customers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a retail customer with ledger-derived purchase statistics.
// The aggregate fields are maintained incrementally on every sale write and
// remain fully recomputable from the sales ledger.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Address   string
	Tag       string
	Stats     Aggregate
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Aggregate holds the derived purchase statistics for one customer.
type Aggregate struct {
	TotalPurchases   decimal.Decimal
	PurchaseCount    int
	LastPurchaseDate *time.Time
}

// LedgerEntry is the aggregator's view of one sale referencing a customer.
type LedgerEntry struct {
	Total      decimal.Decimal
	OccurredAt time.Time
}

// CreateCustomerRequest describes a new customer record.
type CreateCustomerRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address string `json:"address,omitempty" validate:"omitempty,max=500"`
	Tag     string `json:"tag,omitempty" validate:"omitempty,max=50"`
}

// UpdateCustomerRequest carries a partial update; nil fields are preserved.
// Aggregate fields are deliberately absent: only the sales ledger moves them.
type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address *string `json:"address,omitempty" validate:"omitempty,max=500"`
	Tag     *string `json:"tag,omitempty" validate:"omitempty,max=50"`
}
