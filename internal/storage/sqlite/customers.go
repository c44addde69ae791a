package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/counterbook/counterbook/internal/customers"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

type custTx struct {
	t *tx
}

const customerColumns = `id, name, email, phone, address, tag,
	total_purchases, purchase_count, last_purchase_date, created_at, updated_at`

func (r *custTx) Insert(ctx context.Context, c customers.Customer) error {
	_, err := r.t.sq.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.Tag,
		c.Stats.TotalPurchases.String(), c.Stats.PurchaseCount, nullableTime(c.Stats.LastPurchaseDate),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return storage.Fault("insert customer", err)
	}
	return nil
}

func (r *custTx) Update(ctx context.Context, c customers.Customer) error {
	res, err := r.t.sq.ExecContext(ctx,
		`UPDATE customers SET name = ?, email = ?, phone = ?, address = ?, tag = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Email, c.Phone, c.Address, c.Tag, formatTime(c.UpdatedAt), c.ID)
	if err != nil {
		return storage.Fault("update customer", err)
	}
	return requireRow(res, "update customer")
}

func (r *custTx) Delete(ctx context.Context, id string) error {
	res, err := r.t.sq.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return storage.Fault("delete customer", err)
	}
	return requireRow(res, "delete customer")
}

func (r *custTx) Get(ctx context.Context, id string) (customers.Customer, error) {
	row := r.t.sq.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	return scanCustomer(row)
}

func (r *custTx) List(ctx context.Context) ([]customers.Customer, error) {
	rows, err := r.t.sq.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, storage.Fault("list customers", err)
	}
	defer rows.Close()

	var out []customers.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("list customers", err)
	}
	return out, nil
}

func (r *custTx) CustomerExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.t.sq.QueryRowContext(ctx, `SELECT 1 FROM customers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storage.Fault("check customer", err)
	}
	return true, nil
}

func (r *custTx) GetAggregate(ctx context.Context, id string) (customers.Aggregate, error) {
	row := r.t.sq.QueryRowContext(ctx,
		`SELECT total_purchases, purchase_count, last_purchase_date FROM customers WHERE id = ?`, id)

	var (
		totalStr string
		agg      customers.Aggregate
		lastStr  sql.NullString
	)
	err := row.Scan(&totalStr, &agg.PurchaseCount, &lastStr)
	if errors.Is(err, sql.ErrNoRows) {
		return customers.Aggregate{}, shared.ErrNotFound
	}
	if err != nil {
		return customers.Aggregate{}, storage.Fault("read aggregate", err)
	}
	if agg.TotalPurchases, err = decimal.NewFromString(totalStr); err != nil {
		return customers.Aggregate{}, storage.Fault("read aggregate total", err)
	}
	if lastStr.Valid && lastStr.String != "" {
		at, err := parseTime(lastStr.String)
		if err != nil {
			return customers.Aggregate{}, storage.Fault("read aggregate date", err)
		}
		agg.LastPurchaseDate = &at
	}
	return agg, nil
}

func (r *custTx) SetAggregate(ctx context.Context, id string, agg customers.Aggregate) error {
	res, err := r.t.sq.ExecContext(ctx,
		`UPDATE customers SET total_purchases = ?, purchase_count = ?, last_purchase_date = ? WHERE id = ?`,
		agg.TotalPurchases.String(), agg.PurchaseCount, nullableTime(agg.LastPurchaseDate), id)
	if err != nil {
		return storage.Fault("write aggregate", err)
	}
	return requireRow(res, "write aggregate")
}

func (r *custTx) LedgerByCustomer(ctx context.Context, id string) ([]customers.LedgerEntry, error) {
	rows, err := r.t.sq.QueryContext(ctx,
		`SELECT total_amount, occurred_at FROM sales WHERE customer_id = ? ORDER BY occurred_at`, id)
	if err != nil {
		return nil, storage.Fault("scan ledger", err)
	}
	defer rows.Close()

	var entries []customers.LedgerEntry
	for rows.Next() {
		var totalStr, atStr string
		if err := rows.Scan(&totalStr, &atStr); err != nil {
			return nil, storage.Fault("scan ledger", err)
		}
		var entry customers.LedgerEntry
		if entry.Total, err = decimal.NewFromString(totalStr); err != nil {
			return nil, storage.Fault("scan ledger total", err)
		}
		if entry.OccurredAt, err = parseTime(atStr); err != nil {
			return nil, storage.Fault("scan ledger date", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("scan ledger", err)
	}
	return entries, nil
}

func (r *custTx) ListCustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.t.sq.QueryContext(ctx, `SELECT id FROM customers ORDER BY id`)
	if err != nil {
		return nil, storage.Fault("list customer ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.Fault("list customer ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("list customer ids", err)
	}
	return ids, nil
}

func scanCustomer(row rowScanner) (customers.Customer, error) {
	var (
		c                  customers.Customer
		totalStr           string
		lastStr            sql.NullString
		createdStr, updStr string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Tag,
		&totalStr, &c.Stats.PurchaseCount, &lastStr, &createdStr, &updStr)
	if errors.Is(err, sql.ErrNoRows) {
		return customers.Customer{}, shared.ErrNotFound
	}
	if err != nil {
		return customers.Customer{}, storage.Fault("scan customer", err)
	}

	if c.Stats.TotalPurchases, err = decimal.NewFromString(totalStr); err != nil {
		return customers.Customer{}, storage.Fault("scan customer total", err)
	}
	if lastStr.Valid && lastStr.String != "" {
		at, err := parseTime(lastStr.String)
		if err != nil {
			return customers.Customer{}, storage.Fault("scan customer date", err)
		}
		c.Stats.LastPurchaseDate = &at
	}
	if c.CreatedAt, err = parseTime(createdStr); err != nil {
		return customers.Customer{}, storage.Fault("scan customer created_at", err)
	}
	if c.UpdatedAt, err = parseTime(updStr); err != nil {
		return customers.Customer{}, storage.Fault("scan customer updated_at", err)
	}
	return c, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
