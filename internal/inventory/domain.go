package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stocked product. Quantity never goes negative: writes that would
// drive it below zero clamp to zero instead of failing.
type Item struct {
	ID                string
	Category          string
	Description       string
	Quantity          int
	CostPrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	Supplier          string
	LowStockThreshold int
	Attributes        map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DefaultLowStockThreshold applies when a create omits the threshold.
const DefaultLowStockThreshold = 10

// CreateItemRequest describes a new item. The engine assigns the id.
type CreateItemRequest struct {
	Category          string            `json:"category" validate:"required,max=100"`
	Description       string            `json:"description" validate:"required,max=500"`
	Quantity          int               `json:"quantity" validate:"gte=0"`
	CostPrice         decimal.Decimal   `json:"cost_price"`
	SellingPrice      decimal.Decimal   `json:"selling_price"`
	Supplier          string            `json:"supplier" validate:"max=200"`
	LowStockThreshold *int              `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}

// UpdateItemRequest carries a partial update. Nil fields are left untouched
// and Attributes entries are merged into the existing bag, not swapped for it.
type UpdateItemRequest struct {
	Category          *string           `json:"category,omitempty" validate:"omitempty,max=100"`
	Description       *string           `json:"description,omitempty" validate:"omitempty,max=500"`
	Quantity          *int              `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	CostPrice         *decimal.Decimal  `json:"cost_price,omitempty"`
	SellingPrice      *decimal.Decimal  `json:"selling_price,omitempty"`
	Supplier          *string           `json:"supplier,omitempty" validate:"omitempty,max=200"`
	LowStockThreshold *int              `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	Attributes        map[string]string `json:"attributes,omitempty"`
}
