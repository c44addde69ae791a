package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/events"
	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/shared"
)

// Ledger owns the append-only sales record and is the only component
// permitted to decrement inventory quantities or move customer aggregates.
type Ledger struct {
	repo     Repository
	agg      *customers.Aggregator
	bus      events.Publisher
	validate *validator.Validate
	now      func() time.Time
}

// NewLedger builds Ledger. bus may be nil.
func NewLedger(repo Repository, agg *customers.Aggregator, bus events.Publisher) *Ledger {
	return &Ledger{
		repo:     repo,
		agg:      agg,
		bus:      bus,
		validate: validator.New(),
		now:      time.Now,
	}
}

// RecordSale validates input, computes the total from the lines, then writes
// the sale, decrements inventory and updates the customer aggregate in one
// transaction. Nothing partially applies: any failure rolls the whole sale
// back and the caller may safely retry with the same input.
func (l *Ledger) RecordSale(ctx context.Context, input RecordSaleInput) (Record, error) {
	if err := l.validate.Struct(input); err != nil {
		return Record{}, shared.OpError("recordSale", "", shared.Validationf("%v", err))
	}
	for i, line := range input.Lines {
		if line.Quantity <= 0 {
			return Record{}, shared.OpError("recordSale", "",
				shared.Validationf("line %d: quantity must be positive", i))
		}
		if line.UnitPrice.IsNegative() {
			return Record{}, shared.OpError("recordSale", "",
				shared.Validationf("line %d: unit price must be non-negative", i))
		}
	}

	status := input.Status
	if status == "" {
		status = StatusCompleted
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = l.now().UTC()
	}

	rec := Record{
		ID:            uuid.NewString(),
		OccurredAt:    occurredAt,
		CustomerID:    input.CustomerID,
		PaymentMethod: input.PaymentMethod,
		Status:        status,
		Notes:         input.Notes,
	}

	var touched []inventory.Item
	err := l.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		if rec.CustomerID != nil {
			ok, err := tx.CustomerExists(ctx, *rec.CustomerID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrUnknownCustomer
			}
		}

		total := decimal.Zero
		rec.Lines = make([]SaleLine, 0, len(input.Lines))
		for _, in := range input.Lines {
			item, err := tx.GetItem(ctx, in.ItemID)
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownItem, in.ItemID)
			}
			if err != nil {
				return err
			}
			unitPrice := in.UnitPrice
			if unitPrice.IsZero() {
				unitPrice = item.SellingPrice
			}
			lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
			rec.Lines = append(rec.Lines, SaleLine{
				ItemID:    in.ItemID,
				Quantity:  in.Quantity,
				UnitPrice: unitPrice,
				LineTotal: lineTotal,
			})
			total = total.Add(lineTotal)
		}
		rec.TotalAmount = total

		seq, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		rec.InvoiceNo = fmt.Sprintf("INV-%06d", seq)

		// Decrement stock before inserting so each stored line carries the
		// amount actually removed. Oversells clamp at zero, and deletion
		// must restore the clamped amount, not the requested one.
		touched = touched[:0]
		for i, line := range rec.Lines {
			item, applied, err := tx.AdjustItemQuantity(ctx, line.ItemID, -line.Quantity)
			if err != nil {
				return err
			}
			rec.Lines[i].Decremented = -applied
			touched = append(touched, item)
		}

		if err := tx.InsertSale(ctx, rec); err != nil {
			return err
		}

		if rec.CustomerID != nil {
			if err := l.agg.ApplyNewSale(ctx, tx, *rec.CustomerID, rec.TotalAmount, rec.OccurredAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, shared.OpError("recordSale", "", err)
	}

	l.publish(events.Event{Topic: events.TopicSaleCreated, EntityID: rec.ID, Payload: rec})
	for _, item := range touched {
		l.publish(events.Event{Topic: events.TopicInventoryUpdated, EntityID: item.ID, Payload: item})
	}
	if rec.CustomerID != nil {
		l.publish(events.Event{Topic: events.TopicCustomerStatsUpdated, EntityID: *rec.CustomerID})
	}
	return rec, nil
}

// DeleteSale removes a sale, restores the inventory quantities it had
// decremented and recomputes the affected customer's aggregate from the
// ledger. The recompute, rather than a subtraction, keeps repeated deletes
// and historical clamping from introducing drift.
func (l *Ledger) DeleteSale(ctx context.Context, id string) error {
	var rec Record
	var touched []inventory.Item
	err := l.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.GetSale(ctx, id)
		if err != nil {
			return err
		}

		touched = touched[:0]
		for _, line := range rec.Lines {
			item, _, err := tx.AdjustItemQuantity(ctx, line.ItemID, line.Decremented)
			if err != nil {
				return err
			}
			touched = append(touched, item)
		}

		if err := tx.DeleteSale(ctx, id); err != nil {
			return err
		}

		if rec.CustomerID != nil {
			exists, err := tx.CustomerExists(ctx, *rec.CustomerID)
			if err != nil {
				return err
			}
			if exists {
				if _, err := l.agg.RecomputeFromLedger(ctx, tx, *rec.CustomerID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return shared.OpError("deleteSale", id, err)
	}

	l.publish(events.Event{Topic: events.TopicSaleDeleted, EntityID: id})
	for _, item := range touched {
		l.publish(events.Event{Topic: events.TopicInventoryUpdated, EntityID: item.ID, Payload: item})
	}
	if rec.CustomerID != nil {
		l.publish(events.Event{Topic: events.TopicCustomerStatsUpdated, EntityID: *rec.CustomerID})
	}
	return nil
}

// UpdateStatus edits the only mutable fields of a sale record.
func (l *Ledger) UpdateStatus(ctx context.Context, id, status, notes string) (Record, error) {
	if status != StatusCompleted && status != StatusPending {
		return Record{}, shared.OpError("updateSale", id,
			shared.Validationf("status must be %q or %q", StatusCompleted, StatusPending))
	}

	var rec Record
	err := l.repo.WithWrite(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateSaleStatus(ctx, id, status, notes); err != nil {
			return err
		}
		var err error
		rec, err = tx.GetSale(ctx, id)
		return err
	})
	if err != nil {
		return Record{}, shared.OpError("updateSale", id, err)
	}

	l.publish(events.Event{Topic: events.TopicSaleUpdated, EntityID: id, Payload: rec})
	return rec, nil
}

// Get returns one sale record.
func (l *Ledger) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := l.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rec, err = tx.GetSale(ctx, id)
		return err
	})
	if err != nil {
		return Record{}, shared.OpError("getSale", id, err)
	}
	return rec, nil
}

// List returns every sale record, newest first.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := l.repo.WithRead(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		recs, err = tx.ListSales(ctx)
		return err
	})
	if err != nil {
		return nil, shared.OpError("getSales", "", err)
	}
	return recs, nil
}

func (l *Ledger) publish(evt events.Event) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(evt)
}
