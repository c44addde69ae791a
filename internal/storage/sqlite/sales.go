package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/counterbook/counterbook/internal/inventory"
	"github.com/counterbook/counterbook/internal/sales"
	"github.com/counterbook/counterbook/internal/shared"
	"github.com/counterbook/counterbook/internal/storage"
)

// salesTx embeds custTx so the customer aggregate operations the ledger
// needs share this transaction.
type salesTx struct {
	custTx
}

func (r *salesTx) NextInvoiceNumber(ctx context.Context) (int64, error) {
	var value int64
	err := r.t.sq.QueryRowContext(ctx,
		`INSERT INTO counters (name, value) VALUES ('invoice', 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1
		 RETURNING value`).Scan(&value)
	if err != nil {
		return 0, storage.Fault("next invoice number", err)
	}
	return value, nil
}

func (r *salesTx) InsertSale(ctx context.Context, rec sales.Record) error {
	_, err := r.t.sq.ExecContext(ctx,
		`INSERT INTO sales (id, invoice_no, occurred_at, customer_id, payment_method, status, notes, total_amount)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.InvoiceNo, formatTime(rec.OccurredAt), rec.CustomerID,
		rec.PaymentMethod, rec.Status, rec.Notes, rec.TotalAmount.String())
	if err != nil {
		return storage.Fault("insert sale", err)
	}
	for _, line := range rec.Lines {
		_, err := r.t.sq.ExecContext(ctx,
			`INSERT INTO sale_lines (sale_id, item_id, quantity, unit_price, line_total, decremented)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, line.ItemID, line.Quantity, line.UnitPrice.String(), line.LineTotal.String(), line.Decremented)
		if err != nil {
			return storage.Fault("insert sale line", err)
		}
	}
	return nil
}

func (r *salesTx) DeleteSale(ctx context.Context, id string) error {
	if _, err := r.t.sq.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = ?`, id); err != nil {
		return storage.Fault("delete sale lines", err)
	}
	res, err := r.t.sq.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return storage.Fault("delete sale", err)
	}
	return requireRow(res, "delete sale")
}

func (r *salesTx) GetSale(ctx context.Context, id string) (sales.Record, error) {
	row := r.t.sq.QueryRowContext(ctx,
		`SELECT id, invoice_no, occurred_at, customer_id, payment_method, status, notes, total_amount
		 FROM sales WHERE id = ?`, id)
	rec, err := scanSale(row)
	if err != nil {
		return sales.Record{}, err
	}
	if rec.Lines, err = r.saleLines(ctx, id); err != nil {
		return sales.Record{}, err
	}
	return rec, nil
}

func (r *salesTx) ListSales(ctx context.Context) ([]sales.Record, error) {
	rows, err := r.t.sq.QueryContext(ctx,
		`SELECT id, invoice_no, occurred_at, customer_id, payment_method, status, notes, total_amount
		 FROM sales ORDER BY occurred_at DESC, id`)
	if err != nil {
		return nil, storage.Fault("list sales", err)
	}
	defer rows.Close()

	var recs []sales.Record
	for rows.Next() {
		rec, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("list sales", err)
	}
	for i := range recs {
		if recs[i].Lines, err = r.saleLines(ctx, recs[i].ID); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (r *salesTx) UpdateSaleStatus(ctx context.Context, id, status, notes string) error {
	res, err := r.t.sq.ExecContext(ctx,
		`UPDATE sales SET status = ?, notes = ? WHERE id = ?`, status, notes, id)
	if err != nil {
		return storage.Fault("update sale status", err)
	}
	return requireRow(res, "update sale status")
}

func (r *salesTx) GetItem(ctx context.Context, itemID string) (inventory.Item, error) {
	inv := invTx{t: r.t}
	return inv.Get(ctx, itemID)
}

func (r *salesTx) AdjustItemQuantity(ctx context.Context, itemID string, delta int) (inventory.Item, int, error) {
	inv := invTx{t: r.t}
	return inv.AdjustQuantity(ctx, itemID, delta)
}

func (r *salesTx) saleLines(ctx context.Context, saleID string) ([]sales.SaleLine, error) {
	rows, err := r.t.sq.QueryContext(ctx,
		`SELECT item_id, quantity, unit_price, line_total, decremented FROM sale_lines WHERE sale_id = ? ORDER BY id`,
		saleID)
	if err != nil {
		return nil, storage.Fault("list sale lines", err)
	}
	defer rows.Close()

	var lines []sales.SaleLine
	for rows.Next() {
		var line sales.SaleLine
		var priceStr, totalStr string
		if err := rows.Scan(&line.ItemID, &line.Quantity, &priceStr, &totalStr, &line.Decremented); err != nil {
			return nil, storage.Fault("scan sale line", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(priceStr); err != nil {
			return nil, storage.Fault("scan sale line price", err)
		}
		if line.LineTotal, err = decimal.NewFromString(totalStr); err != nil {
			return nil, storage.Fault("scan sale line total", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Fault("list sale lines", err)
	}
	return lines, nil
}

func scanSale(row rowScanner) (sales.Record, error) {
	var (
		rec        sales.Record
		atStr      string
		customerID sql.NullString
		totalStr   string
	)
	err := row.Scan(&rec.ID, &rec.InvoiceNo, &atStr, &customerID,
		&rec.PaymentMethod, &rec.Status, &rec.Notes, &totalStr)
	if errors.Is(err, sql.ErrNoRows) {
		return sales.Record{}, shared.ErrNotFound
	}
	if err != nil {
		return sales.Record{}, storage.Fault("scan sale", err)
	}

	if customerID.Valid {
		rec.CustomerID = &customerID.String
	}
	if rec.OccurredAt, err = parseTime(atStr); err != nil {
		return sales.Record{}, storage.Fault("scan sale date", err)
	}
	if rec.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return sales.Record{}, storage.Fault("scan sale total", err)
	}
	return rec, nil
}
