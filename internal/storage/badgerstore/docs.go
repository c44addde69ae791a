package badgerstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/storage"
)

// Persisted document shapes. They are decoupled from the domain structs so
// the stored format stays stable when the domain types move.

type itemDoc struct {
	ID                string            `json:"id"`
	Category          string            `json:"category"`
	Description       string            `json:"description"`
	Quantity          int               `json:"quantity"`
	CostPrice         decimal.Decimal   `json:"cost_price"`
	SellingPrice      decimal.Decimal   `json:"selling_price"`
	Supplier          string            `json:"supplier"`
	LowStockThreshold int               `json:"low_stock_threshold"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type customerDoc struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Address          string          `json:"address,omitempty"`
	Tag              string          `json:"tag,omitempty"`
	TotalPurchases   decimal.Decimal `json:"total_purchases"`
	PurchaseCount    int             `json:"purchase_count"`
	LastPurchaseDate *time.Time      `json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type saleLineDoc struct {
	ItemID      string          `json:"item_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Decremented int             `json:"decremented"`
}

type saleDoc struct {
	ID            string          `json:"id"`
	InvoiceNo     string          `json:"invoice_no"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CustomerID    *string         `json:"customer_id,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	Lines         []saleLineDoc   `json:"lines"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

func encodeItem(item inventory.Item) ([]byte, error) {
	doc := itemDoc{
		ID:                item.ID,
		Category:          item.Category,
		Description:       item.Description,
		Quantity:          item.Quantity,
		CostPrice:         item.CostPrice,
		SellingPrice:      item.SellingPrice,
		Supplier:          item.Supplier,
		LowStockThreshold: item.LowStockThreshold,
		Attributes:        item.Attributes,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	return marshal("item", doc)
}

func decodeItem(val []byte) (inventory.Item, error) {
	var doc itemDoc
	if err := unmarshal("item", val, &doc); err != nil {
		return inventory.Item{}, err
	}
	return inventory.Item{
		ID:                doc.ID,
		Category:          doc.Category,
		Description:       doc.Description,
		Quantity:          doc.Quantity,
		CostPrice:         doc.CostPrice,
		SellingPrice:      doc.SellingPrice,
		Supplier:          doc.Supplier,
		LowStockThreshold: doc.LowStockThreshold,
		Attributes:        doc.Attributes,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}, nil
}

func encodeCustomer(c customers.Customer) ([]byte, error) {
	doc := customerDoc{
		ID:               c.ID,
		Name:             c.Name,
		Email:            c.Email,
		Phone:            c.Phone,
		Address:          c.Address,
		Tag:              c.Tag,
		TotalPurchases:   c.Stats.TotalPurchases,
		PurchaseCount:    c.Stats.PurchaseCount,
		LastPurchaseDate: c.Stats.LastPurchaseDate,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	return marshal("customer", doc)
}

func decodeCustomer(val []byte) (customers.Customer, error) {
	var doc customerDoc
	if err := unmarshal("customer", val, &doc); err != nil {
		return customers.Customer{}, err
	}
	return customers.Customer{
		ID:      doc.ID,
		Name:    doc.Name,
		Email:   doc.Email,
		Phone:   doc.Phone,
		Address: doc.Address,
		Tag:     doc.Tag,
		Stats: customers.Aggregate{
			TotalPurchases:   doc.TotalPurchases,
			PurchaseCount:    doc.PurchaseCount,
			LastPurchaseDate: doc.LastPurchaseDate,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func encodeSale(rec sales.Record) ([]byte, error) {
	doc := saleDoc{
		ID:            rec.ID,
		InvoiceNo:     rec.InvoiceNo,
		OccurredAt:    rec.OccurredAt,
		CustomerID:    rec.CustomerID,
		PaymentMethod: rec.PaymentMethod,
		Status:        rec.Status,
		Notes:         rec.Notes,
		TotalAmount:   rec.TotalAmount,
	}
	for _, l := range rec.Lines {
		doc.Lines = append(doc.Lines, saleLineDoc(l))
	}
	return marshal("sale", doc)
}

func decodeSale(val []byte) (sales.Record, error) {
	var doc saleDoc
	if err := unmarshal("sale", val, &doc); err != nil {
		return sales.Record{}, err
	}
	rec := sales.Record{
		ID:            doc.ID,
		InvoiceNo:     doc.InvoiceNo,
		OccurredAt:    doc.OccurredAt,
		CustomerID:    doc.CustomerID,
		PaymentMethod: doc.PaymentMethod,
		Status:        doc.Status,
		Notes:         doc.Notes,
		TotalAmount:   doc.TotalAmount,
	}
	for _, l := range doc.Lines {
		rec.Lines = append(rec.Lines, sales.SaleLine(l))
	}
	return rec, nil
}

func marshal(kind string, doc any) ([]byte, error) {
	val, err := json.Marshal(doc)
	if err != nil {
		return nil, storage.Fault("encode "+kind, err)
	}
	return val, nil
}

func unmarshal(kind string, val []byte, doc any) error {
	if err := json.Unmarshal(val, doc); err != nil {
		return storage.Fault("decode "+kind, err)
	}
	return nil
}
