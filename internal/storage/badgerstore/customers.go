package badgerstore

import (
	"context"
	"errors"
	"sort"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/shared"
)

type custTx struct {
	t *tx
}

func (r *custTx) Insert(ctx context.Context, c customers.Customer) error {
	return r.put(c)
}

func (r *custTx) Update(ctx context.Context, c customers.Customer) error {
	if _, err := r.Get(ctx, c.ID); err != nil {
		return err
	}
	return r.put(c)
}

func (r *custTx) put(c customers.Customer) error {
	val, err := encodeCustomer(c)
	if err != nil {
		return err
	}
	return r.t.set(customerPrefix+c.ID, val)
}

func (r *custTx) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.t.delete(customerPrefix + id)
}

func (r *custTx) Get(ctx context.Context, id string) (customers.Customer, error) {
	val, err := r.t.get(customerPrefix + id)
	if errors.Is(err, errKeyMissing) {
		return customers.Customer{}, shared.ErrNotFound
	}
	if err != nil {
		return customers.Customer{}, err
	}
	return decodeCustomer(val)
}

func (r *custTx) List(ctx context.Context) ([]customers.Customer, error) {
	var out []customers.Customer
	err := r.t.scanPrefix(customerPrefix, func(_ string, val []byte) error {
		c, err := decodeCustomer(val)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *custTx) CustomerExists(ctx context.Context, id string) (bool, error) {
	_, err := r.t.get(customerPrefix + id)
	if errors.Is(err, errKeyMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *custTx) GetAggregate(ctx context.Context, id string) (customers.Aggregate, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return customers.Aggregate{}, err
	}
	return c.Stats, nil
}

func (r *custTx) SetAggregate(ctx context.Context, id string, agg customers.Aggregate) error {
	c, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	c.Stats = agg
	return r.put(c)
}

func (r *custTx) LedgerByCustomer(ctx context.Context, id string) ([]customers.LedgerEntry, error) {
	var entries []customers.LedgerEntry
	err := r.t.scanPrefix(salePrefix, func(_ string, val []byte) error {
		rec, err := decodeSale(val)
		if err != nil {
			return err
		}
		if rec.CustomerID == nil || *rec.CustomerID != id {
			return nil
		}
		entries = append(entries, customers.LedgerEntry{
			Total:      rec.TotalAmount,
			OccurredAt: rec.OccurredAt,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})
	return entries, nil
}

func (r *custTx) ListCustomerIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.t.scanPrefix(customerPrefix, func(key string, _ []byte) error {
		ids = append(ids, key[len(customerPrefix):])
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
