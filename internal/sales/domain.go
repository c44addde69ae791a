package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status values a sale record may carry.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// SaleLine is one ordered line of a sale. LineTotal is quantity times unit
// price, computed at creation and stored.
type SaleLine struct {
	ItemID    string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal

	// Decremented is the stock actually removed for this line. It is less
	// than Quantity when the decrement clamped at zero, and deletion restores
	// exactly this amount.
	Decremented int
}

// Record is one entry in the append-only sales ledger. TotalAmount equals
// the sum of line totals at creation time; readers never recompute it.
// Records are immutable after creation except for status and notes.
type Record struct {
	ID            string
	InvoiceNo     string
	OccurredAt    time.Time
	CustomerID    *string
	PaymentMethod string
	Status        string
	Notes         string
	Lines         []SaleLine
	TotalAmount   decimal.Decimal
}

// LineInput is one requested sale line; the unit price defaults to the
// item's selling price when zero.
type LineInput struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// RecordSaleInput describes a sale submission. Any caller-supplied total is
// ignored; the ledger computes it from the lines.
type RecordSaleInput struct {
	CustomerID    *string     `json:"customer_id,omitempty"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
	PaymentMethod string      `json:"payment_method" validate:"required,max=50"`
	Status        string      `json:"status,omitempty" validate:"omitempty,oneof=completed pending"`
	Notes         string      `json:"notes,omitempty" validate:"omitempty,max=1000"`
	OccurredAt    time.Time   `json:"occurred_at,omitempty"`
}

// ErrUnknownCustomer indicates the referenced customer does not exist.
var ErrUnknownCustomer = errors.New("sales: referenced customer does not exist")

// ErrUnknownItem indicates a sale line references a missing inventory item.
var ErrUnknownItem = errors.New("sales: line item does not exist")
