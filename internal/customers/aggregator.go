package customers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregator derives customer purchase statistics from the sales ledger.
// It is used incrementally on each new sale and in bulk by repair and
// migration paths. The ledger is the source of truth: anything Aggregator
// writes can be reproduced by RecomputeFromLedger.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator builds Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// ApplyNewSale folds one new sale into the stored aggregate. The last
// purchase date only moves forward: backfilled out-of-order sales must not
// drag it backwards.
func (a *Aggregator) ApplyNewSale(ctx context.Context, tx StatsTx, customerID string, amount decimal.Decimal, when time.Time) error {
	agg, err := tx.GetAggregate(ctx, customerID)
	if err != nil {
		return err
	}
	agg.TotalPurchases = agg.TotalPurchases.Add(amount)
	agg.PurchaseCount++
	if agg.LastPurchaseDate == nil || when.After(*agg.LastPurchaseDate) {
		w := when
		agg.LastPurchaseDate = &w
	}
	return tx.SetAggregate(ctx, customerID, agg)
}

// RecomputeFromLedger rebuilds one customer's aggregate by scanning every
// sale that references them, and stores the result.
func (a *Aggregator) RecomputeFromLedger(ctx context.Context, tx StatsTx, customerID string) (Aggregate, error) {
	entries, err := tx.LedgerByCustomer(ctx, customerID)
	if err != nil {
		return Aggregate{}, err
	}
	agg := Aggregate{TotalPurchases: decimal.Zero}
	for _, e := range entries {
		agg.TotalPurchases = agg.TotalPurchases.Add(e.Total)
		agg.PurchaseCount++
		if agg.LastPurchaseDate == nil || e.OccurredAt.After(*agg.LastPurchaseDate) {
			at := e.OccurredAt
			agg.LastPurchaseDate = &at
		}
	}
	if err := tx.SetAggregate(ctx, customerID, agg); err != nil {
		return Aggregate{}, err
	}
	return agg, nil
}

// RecomputeAll rebuilds the aggregate of every customer. Used once by the
// migration that introduces the aggregate fields and by on-demand repair.
func (a *Aggregator) RecomputeAll(ctx context.Context, tx StatsTx) error {
	ids, err := tx.ListCustomerIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := a.RecomputeFromLedger(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// Inconsistent reports whether a stored aggregate disagrees with the ledger
// and should be repaired. Policy: repair on negative totals, a future last
// purchase date, or a purchase count that does not match the ledger row count.
func (a *Aggregator) Inconsistent(agg Aggregate, ledgerCount int) bool {
	if agg.TotalPurchases.IsNegative() || agg.PurchaseCount < 0 {
		return true
	}
	if agg.LastPurchaseDate != nil && agg.LastPurchaseDate.After(a.now()) {
		return true
	}
	return agg.PurchaseCount != ledgerCount
}
