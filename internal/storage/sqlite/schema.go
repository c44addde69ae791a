package sqlite

import (
	"context"
	"strconv"

	"github.com/counterbook/counterbook/internal/storage"
)

type metaTx struct {
	t *tx
}

func (m *metaTx) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := m.t.sq.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&version)
	if err != nil {
		return 0, storage.Fault("read schema version", err)
	}
	return version, nil
}

func (m *metaTx) SetSchemaVersion(ctx context.Context, version int) error {
	if _, err := m.t.sq.ExecContext(ctx, `UPDATE schema_version SET version = ? WHERE id = 1`, version); err != nil {
		return storage.Fault("set schema version", err)
	}
	return nil
}

type schemaTx struct {
	t *tx
}

func (s *schemaTx) columnExists(ctx context.Context, table, column string) (bool, error) {
	var count int
	err := s.t.sq.QueryRowContext(ctx,
		`SELECT count(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&count)
	if err != nil {
		return false, storage.Fault("check column "+table+"."+column, err)
	}
	return count > 0, nil
}

func (s *schemaTx) EnsureBaseSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS inventory_items (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			cost_price TEXT NOT NULL DEFAULT '0',
			selling_price TEXT NOT NULL DEFAULT '0',
			supplier TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			invoice_no TEXT NOT NULL UNIQUE,
			occurred_at TEXT NOT NULL,
			customer_id TEXT,
			payment_method TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'completed',
			notes TEXT NOT NULL DEFAULT '',
			total_amount TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE TABLE IF NOT EXISTS sale_lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
			item_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price TEXT NOT NULL,
			line_total TEXT NOT NULL,
			decremented INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.t.sq.ExecContext(ctx, stmt); err != nil {
			return storage.Fault("create base schema", err)
		}
	}
	return nil
}

func (s *schemaTx) EnsureLowStockThreshold(ctx context.Context, defaultThreshold int) error {
	exists, err := s.columnExists(ctx, "inventory_items", "low_stock_threshold")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := s.t.sq.ExecContext(ctx,
			`ALTER TABLE inventory_items ADD COLUMN low_stock_threshold INTEGER NOT NULL DEFAULT `+strconv.Itoa(defaultThreshold)); err != nil {
			return storage.Fault("add low_stock_threshold", err)
		}
	}
	// Older rows written before the column gained a sane default.
	if _, err := s.t.sq.ExecContext(ctx,
		`UPDATE inventory_items SET low_stock_threshold = ? WHERE low_stock_threshold IS NULL OR low_stock_threshold < 0`,
		defaultThreshold); err != nil {
		return storage.Fault("backfill low_stock_threshold", err)
	}
	return nil
}

func (s *schemaTx) EnsureCustomerAggregates(ctx context.Context) error {
	cols := []struct{ name, ddl string }{
		{"total_purchases", `ALTER TABLE customers ADD COLUMN total_purchases TEXT NOT NULL DEFAULT '0'`},
		{"purchase_count", `ALTER TABLE customers ADD COLUMN purchase_count INTEGER NOT NULL DEFAULT 0`},
		{"last_purchase_date", `ALTER TABLE customers ADD COLUMN last_purchase_date TEXT`},
	}
	for _, col := range cols {
		exists, err := s.columnExists(ctx, "customers", col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.t.sq.ExecContext(ctx, col.ddl); err != nil {
			return storage.Fault("add "+col.name, err)
		}
	}
	return nil
}

func (s *schemaTx) EnsureItemAttributes(ctx context.Context) error {
	exists, err := s.columnExists(ctx, "inventory_items", "attributes")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := s.t.sq.ExecContext(ctx,
			`ALTER TABLE inventory_items ADD COLUMN attributes TEXT NOT NULL DEFAULT '{}'`); err != nil {
			return storage.Fault("add attributes", err)
		}
	}
	// Legacy installs stored sale status in upper case.
	if _, err := s.t.sq.ExecContext(ctx,
		`UPDATE sales SET status = lower(status) WHERE status != lower(status)`); err != nil {
		return storage.Fault("normalise sale status", err)
	}
	return nil
}

func (s *schemaTx) EnsureSaleLineDecrements(ctx context.Context) error {
	exists, err := s.columnExists(ctx, "sale_lines", "decremented")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := s.t.sq.ExecContext(ctx,
		`ALTER TABLE sale_lines ADD COLUMN decremented INTEGER NOT NULL DEFAULT 0`); err != nil {
		return storage.Fault("add decremented", err)
	}
	// Lines written before the column existed were restored at full quantity
	// on deletion, so carry that behaviour forward for them.
	if _, err := s.t.sq.ExecContext(ctx,
		`UPDATE sale_lines SET decremented = quantity`); err != nil {
		return storage.Fault("backfill decremented", err)
	}
	return nil
}
