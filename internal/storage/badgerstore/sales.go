package badgerstore

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

type salesTx struct {
	custTx
}

func (r *salesTx) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var seq int64
	val, err := r.t.get(metaInvoiceKey)
	switch {
	case errors.Is(err, errKeyMissing):
		seq = 0
	case err != nil:
		return 0, err
	default:
		seq, err = strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, storage.Fault("parse invoice counter", err)
		}
	}
	seq++
	if err := r.t.set(metaInvoiceKey, []byte(strconv.FormatInt(seq, 10))); err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *salesTx) InsertSale(ctx context.Context, rec sales.Record) error {
	val, err := encodeSale(rec)
	if err != nil {
		return err
	}
	return r.t.set(salePrefix+rec.ID, val)
}

func (r *salesTx) DeleteSale(ctx context.Context, id string) error {
	if _, err := r.GetSale(ctx, id); err != nil {
		return err
	}
	return r.t.delete(salePrefix + id)
}

func (r *salesTx) GetSale(ctx context.Context, id string) (sales.Record, error) {
	val, err := r.t.get(salePrefix + id)
	if errors.Is(err, errKeyMissing) {
		return sales.Record{}, shared.ErrNotFound
	}
	if err != nil {
		return sales.Record{}, err
	}
	return decodeSale(val)
}

func (r *salesTx) ListSales(ctx context.Context) ([]sales.Record, error) {
	var recs []sales.Record
	err := r.t.scanPrefix(salePrefix, func(_ string, val []byte) error {
		rec, err := decodeSale(val)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Newest first, matching the relational backend.
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].OccurredAt.Equal(recs[j].OccurredAt) {
			return recs[i].OccurredAt.After(recs[j].OccurredAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

func (r *salesTx) UpdateSaleStatus(ctx context.Context, id, status, notes string) error {
	rec, err := r.GetSale(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Notes = notes
	val, err := encodeSale(rec)
	if err != nil {
		return err
	}
	return r.t.set(salePrefix+id, val)
}

func (r *salesTx) GetItem(ctx context.Context, itemID string) (inventory.Item, error) {
	inv := invTx{t: r.t}
	return inv.Get(ctx, itemID)
}

func (r *salesTx) AdjustItemQuantity(ctx context.Context, itemID string, delta int) (inventory.Item, int, error) {
	inv := invTx{t: r.t}
	return inv.AdjustQuantity(ctx, itemID, delta)
}
