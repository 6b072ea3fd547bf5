package analytics

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads analytics inputs from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Load reads products, sale lines and purchases inside one read-only
// repeatable-read transaction, so the per-product breakdown and the window
// totals never straddle a concurrent write.
func (r *PGRepository) Load(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		if out.Products, err = loadProducts(ctx, tx); err != nil {
			return err
		}
		if out.History.Lines, err = loadSaleLines(ctx, tx); err != nil {
			return err
		}
		out.History.Purchases, err = loadPurchases(ctx, tx)
		return err
	})
	return out, err
}

func loadProducts(ctx context.Context, tx pgx.Tx) ([]ProductSnapshot, error) {
	rows, err := tx.Query(ctx, `SELECT id, name, unit_selling_price, cost_per_batch, units_per_batch, current_stock, total_units_sold
FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProductSnapshot, error) {
		var p ProductSnapshot
		err := row.Scan(&p.ID, &p.Name, &p.UnitSellingPrice, &p.CostPerBatch, &p.UnitsPerBatch, &p.CurrentStock, &p.TotalUnitsSold)
		return p, err
	})
}

func loadSaleLines(ctx context.Context, tx pgx.Tx) ([]SaleLine, error) {
	rows, err := tx.Query(ctx, `SELECT si.sale_id, si.product_id, s.sold_at, si.quantity, si.subtotal
FROM sale_items si
JOIN sales s ON s.id = si.sale_id
ORDER BY s.sold_at, si.line_no`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SaleLine, error) {
		var l SaleLine
		err := row.Scan(&l.SaleID, &l.ProductID, &l.SoldAt, &l.Quantity, &l.Subtotal)
		return l, err
	})
}

func loadPurchases(ctx context.Context, tx pgx.Tx) ([]PurchaseRecord, error) {
	rows, err := tx.Query(ctx, `SELECT product_id, purchased_at, total_cost FROM stock_purchases ORDER BY purchased_at`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseRecord, error) {
		var p PurchaseRecord
		err := row.Scan(&p.ProductID, &p.PurchasedAt, &p.TotalCost)
		return p, err
	})
}
