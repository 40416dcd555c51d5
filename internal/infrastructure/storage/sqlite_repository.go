package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"SalesAnalytics/internal/domain"
	"SalesAnalytics/internal/ports"
)

// loadedAtLayout is fixed width so text order matches time order.
const loadedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const insertBatch = 500

var salesColumns = []string{
	"load_id", "order_id", "ts", "last_change_ts",
	"warehouse_label", "warehouse_name", "warehouse_type",
	"region", "category", "subcategory", "brand",
	"seller_sku", "product_name", "unit_price", "discount_percent",
	"is_cancelled", "is_return", "sales_channel",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS load_runs (
		load_id   TEXT PRIMARY KEY,
		loaded_at TEXT NOT NULL,
		location  TEXT NOT NULL,
		row_count INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales_rows (
		load_id          TEXT NOT NULL,
		order_id         TEXT NOT NULL,
		ts               TEXT,
		last_change_ts   TEXT,
		warehouse_label  TEXT NOT NULL,
		warehouse_name   TEXT NOT NULL,
		warehouse_type   TEXT NOT NULL,
		region           TEXT NOT NULL,
		category         TEXT NOT NULL,
		subcategory      TEXT NOT NULL,
		brand            TEXT NOT NULL,
		seller_sku       TEXT NOT NULL,
		product_name     TEXT,
		unit_price       TEXT NOT NULL,
		discount_percent TEXT,
		is_cancelled     INTEGER NOT NULL,
		is_return        INTEGER NOT NULL,
		sales_channel    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_rows_ts ON sales_rows(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_rows_sku ON sales_rows(seller_sku)`,
}

// Run is a recorded snapshot load.
type Run struct {
	LoadID   string
	LoadedAt time.Time
	Location string
	Rows     int
}

// SQLiteRepository keeps the latest merged dataset in a local SQLite file so
// other tools can query it.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.SnapshotRepository = (*SQLiteRepository)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	repo := NewSQLiteRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteRepository wires a sql.DB implementation.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Migrate creates the tables when missing.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored rows with ds and records the run, all in
// one transaction.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, ds *domain.Dataset) (err error) {
	if r.db == nil || ds == nil {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = sq.Delete("sales_rows").RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}

	insert := sq.Insert("sales_rows").Columns(salesColumns...)
	pending := 0
	for _, row := range ds.Rows() {
		insert = insert.Values(rowValues(ds.LoadID, row)...)
		pending++
		if pending == insertBatch {
			if _, err = insert.RunWith(tx).ExecContext(ctx); err != nil {
				return fmt.Errorf("insert rows: %w", err)
			}
			insert = sq.Insert("sales_rows").Columns(salesColumns...)
			pending = 0
		}
	}
	if pending > 0 {
		if _, err = insert.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
	}

	_, err = sq.Insert("load_runs").
		Columns("load_id", "loaded_at", "location", "row_count").
		Values(ds.LoadID, ds.LoadedAt.UTC().Format(loadedAtLayout), ds.Location.String(), ds.Len()).
		RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LatestRun returns the most recent recorded load.
func (r *SQLiteRepository) LatestRun(ctx context.Context) (Run, bool, error) {
	row := sq.Select("load_id", "loaded_at", "location", "row_count").
		From("load_runs").
		OrderBy("loaded_at DESC").
		Limit(1).
		RunWith(r.db).
		QueryRowContext(ctx)

	var (
		run      Run
		loadedAt string
	)
	if err := row.Scan(&run.LoadID, &loadedAt, &run.Location, &run.Rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("query latest run: %w", err)
	}
	t, err := time.Parse(loadedAtLayout, loadedAt)
	if err != nil {
		return Run{}, false, fmt.Errorf("parse loaded_at %q: %w", loadedAt, err)
	}
	run.LoadedAt = t
	return run, true, nil
}

// CountRows reports how many sales rows are stored.
func (r *SQLiteRepository) CountRows(ctx context.Context) (int, error) {
	var n int
	err := sq.Select("COUNT(*)").From("sales_rows").RunWith(r.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func rowValues(loadID string, r domain.MergedRow) []any {
	var product, discount any
	if r.ProductName != nil {
		product = *r.ProductName
	}
	if r.DiscountPercent.Valid {
		discount = r.DiscountPercent.Decimal.String()
	}
	return []any{
		loadID,
		r.OrderID,
		timeValue(r.Timestamp),
		timeValue(r.LastChangeDate),
		r.WarehouseLabel,
		r.WarehouseName,
		r.WarehouseType,
		r.Region,
		r.Category,
		r.Subcategory,
		r.Brand,
		r.SellerSKU,
		product,
		r.UnitPrice.String(),
		discount,
		r.IsCancelled,
		r.IsReturn,
		r.SalesChannel,
	}
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
