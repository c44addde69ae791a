package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

type invTx struct {
	t *tx
}

const itemColumns = `id, category, description, quantity, cost_price, selling_price,
	supplier, low_stock_threshold, attributes, created_at, updated_at`

func (r *invTx) Insert(ctx context.Context, item inventory.Item) error {
	attrs, err := marshalAttrs(item.Attributes)
	if err != nil {
		return storage.Fault("insert item", err)
	}
	_, err = r.t.sq.ExecContext(ctx,
		`INSERT INTO inventory_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Category, item.Description, item.Quantity,
		item.CostPrice.String(), item.SellingPrice.String(),
		item.Supplier, item.LowStockThreshold, attrs,
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	if err != nil {
		return storage.Fault("insert item", err)
	}
	return nil
}

func (r *invTx) Update(ctx context.Context, item inventory.Item) error {
	attrs, err := marshalAttrs(item.Attributes)
	if err != nil {
		return storage.Fault("update item", err)
	}
	res, err := r.t.sq.ExecContext(ctx,
		`UPDATE inventory_items SET category = ?, description = ?, quantity = ?, cost_price = ?,
			selling_price = ?, supplier = ?, low_stock_threshold = ?, attributes = ?, updated_at = ?
		 WHERE id = ?`,
		item.Category, item.Description, item.Quantity,
		item.CostPrice.String(), item.SellingPrice.String(),
		item.Supplier, item.LowStockThreshold, attrs,
		formatTime(item.UpdatedAt), item.ID)
	if err != nil {
		return storage.Fault("update item", err)
	}
	return requireRow(res, "update item")
}

func (r *invTx) Delete(ctx context.Context, id string) error {
	res, err := r.t.sq.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return storage.Fault("delete item", err)
	}
	return requireRow(res, "delete item")
}

func (r *invTx) Get(ctx context.Context, id string) (inventory.Item, error) {
	row := r.t.sq.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id)
	return scanItem(row)
}

func (r *invTx) List(ctx context.Context) ([]inventory.Item, error) {
	return r.listWhere(ctx, ``)
}

func (r *invTx) ListBelowThreshold(ctx context.Context) ([]inventory.Item, error) {
	return r.listWhere(ctx, `WHERE quantity <= low_stock_threshold`)
}

func (r *invTx) listWhere(ctx context.Context, where string) ([]inventory.Item, error) {
	rows, err := r.t.sq.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items `+where+` ORDER BY created_at, id`)
	if err != nil {
		return nil, storage.Fault("list items", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("list items", err)
	}
	return items, nil
}

func (r *invTx) FindEquivalent(ctx context.Context, description, category, supplier string) (inventory.Item, error) {
	row := r.t.sq.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE description = ? AND category = ? AND supplier = ? LIMIT 1`,
		description, category, supplier)
	return scanItem(row)
}

func (r *invTx) AdjustQuantity(ctx context.Context, id string, delta int) (inventory.Item, int, error) {
	item, err := r.Get(ctx, id)
	if err != nil {
		return inventory.Item{}, 0, err
	}
	qty := item.Quantity + delta
	if qty < 0 {
		qty = 0
	}
	applied := qty - item.Quantity
	item.Quantity = qty
	item.UpdatedAt = time.Now().UTC()
	if _, err := r.t.sq.ExecContext(ctx,
		`UPDATE inventory_items SET quantity = ?, updated_at = ? WHERE id = ?`,
		qty, formatTime(item.UpdatedAt), id); err != nil {
		return inventory.Item{}, 0, storage.Fault("adjust quantity", err)
	}
	return item, applied, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (inventory.Item, error) {
	var (
		item               inventory.Item
		costStr, sellStr   string
		attrsStr           string
		createdStr, updStr string
	)
	err := row.Scan(&item.ID, &item.Category, &item.Description, &item.Quantity,
		&costStr, &sellStr, &item.Supplier, &item.LowStockThreshold,
		&attrsStr, &createdStr, &updStr)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Item{}, shared.ErrNotFound
	}
	if err != nil {
		return inventory.Item{}, storage.Fault("scan item", err)
	}

	if item.CostPrice, err = decimal.NewFromString(costStr); err != nil {
		return inventory.Item{}, storage.Fault("scan item cost", err)
	}
	if item.SellingPrice, err = decimal.NewFromString(sellStr); err != nil {
		return inventory.Item{}, storage.Fault("scan item price", err)
	}
	if item.Attributes, err = unmarshalAttrs(attrsStr); err != nil {
		return inventory.Item{}, storage.Fault("scan item attributes", err)
	}
	if item.CreatedAt, err = parseTime(createdStr); err != nil {
		return inventory.Item{}, storage.Fault("scan item created_at", err)
	}
	if item.UpdatedAt, err = parseTime(updStr); err != nil {
		return inventory.Item{}, storage.Fault("scan item updated_at", err)
	}
	return item, nil
}

func marshalAttrs(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalAttrs(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Fault(op, err)
	}
	if n == 0 {
		return shared.ErrNotFound
	}
	return nil
}
