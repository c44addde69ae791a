package badgerstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/storage"
)

type metaTx struct {
	t *tx
}

func (r *metaTx) SchemaVersion(ctx context.Context) (int, error) {
	val, err := r.t.get(metaSchemaKey)
	if errors.Is(err, errKeyMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(string(val))
	if err != nil {
		return 0, storage.Fault("parse schema version", err)
	}
	return v, nil
}

func (r *metaTx) SetSchemaVersion(ctx context.Context, version int) error {
	return r.t.set(metaSchemaKey, []byte(strconv.Itoa(version)))
}

// schemaTx renders the relational column migrations as document rewrites.
// Documents are schemaless, so structural steps reduce to backfilling the
// fields the new version expects.
type schemaTx struct {
	t *tx
}

// EnsureBaseSchema is a no-op: documents are created lazily on first write.
func (r *schemaTx) EnsureBaseSchema(ctx context.Context) error { return nil }

func (r *schemaTx) EnsureLowStockThreshold(ctx context.Context, defaultThreshold int) error {
	inv := invTx{t: r.t}
	items, err := inv.listWhere(func(item inventory.Item) bool {
		return item.LowStockThreshold <= 0
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		item.LowStockThreshold = defaultThreshold
		if err := inv.put(item); err != nil {
			return err
		}
	}
	return nil
}

// EnsureCustomerAggregates is a no-op on the document store: the aggregate
// fields decode to their zero values on older documents, and the migration
// step recomputes them from the ledger afterwards.
func (r *schemaTx) EnsureCustomerAggregates(ctx context.Context) error { return nil }

func (r *schemaTx) EnsureItemAttributes(ctx context.Context) error {
	// Attribute bags decode to nil on older item documents, which the engine
	// treats as empty. Only the status normalisation needs a rewrite.
	st := salesTx{custTx{t: r.t}}
	recs, err := st.ListSales(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		lowered := strings.ToLower(rec.Status)
		if lowered == rec.Status {
			continue
		}
		rec.Status = lowered
		val, err := encodeSale(rec)
		if err != nil {
			return err
		}
		if err := r.t.set(salePrefix+rec.ID, val); err != nil {
			return err
		}
	}
	return nil
}

func (r *schemaTx) EnsureSaleLineDecrements(ctx context.Context) error {
	// The decremented field decodes to zero on sale documents written before
	// it existed. Those lines were restored at full quantity on deletion, so
	// backfill them to keep that behaviour.
	st := salesTx{custTx{t: r.t}}
	recs, err := st.ListSales(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		changed := false
		for i, line := range rec.Lines {
			if line.Decremented == 0 && line.Quantity > 0 {
				rec.Lines[i].Decremented = line.Quantity
				changed = true
			}
		}
		if !changed {
			continue
		}
		val, err := encodeSale(rec)
		if err != nil {
			return err
		}
		if err := r.t.set(salePrefix+rec.ID, val); err != nil {
			return err
		}
	}
	return nil
}
