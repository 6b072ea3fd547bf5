package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homestock/homestock/internal/platform/db"
)

const productColumns = `id, name, description, unit_selling_price, cost_per_batch, units_per_batch, current_stock, total_units_sold, created_at, updated_at`

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertProduct(ctx context.Context, product Product) error
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	UpdateProduct(ctx context.Context, product Product) error
	DeleteProduct(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	RecomputeSaleTotals(ctx context.Context, saleIDs []uuid.UUID) error
	InsertPurchase(ctx context.Context, purchase StockPurchase) error
	InsertSale(ctx context.Context, sale Sale) error
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error)
	DeleteSale(ctx context.Context, id uuid.UUID) error
	AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int64) (StockLevel, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int64) (StockLevel, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// ListProducts returns a page of products ordered by name.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = ` WHERE name ILIKE $1 OR description ILIKE $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY name, id`
	query, args = paginate(query, args, filter.Page, filter.PerPage)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// GetSale loads a sale and its items.
func (r *Repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return loadSale(ctx, r.pool, id, false)
}

// ListSales returns a page of sales, newest first, with items attached.
func (r *Repository) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, int, error) {
	from := pgtype.Timestamptz{Time: filter.From, Valid: !filter.From.IsZero()}
	to := pgtype.Timestamptz{Time: filter.To, Valid: !filter.To.IsZero()}
	const where = ` WHERE ($1::timestamptz IS NULL OR sold_at >= $1) AND ($2::timestamptz IS NULL OR sold_at < $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := paginate(`SELECT id, sold_at, total_amount, notes FROM sales`+where+` ORDER BY sold_at DESC, id`, []any{from, to}, filter.Page, filter.PerPage)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	sales := make([]Sale, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]string, 0)
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.SoldAt, &s.TotalAmount, &s.Notes); err != nil {
			rows.Close()
			return nil, 0, err
		}
		index[s.ID] = len(sales)
		ids = append(ids, s.ID.String())
		s.Items = []SaleItem{}
		sales = append(sales, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return sales, total, nil
	}

	itemRows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity, unit_price, subtotal FROM sale_items WHERE sale_id = ANY($1::uuid[]) ORDER BY sale_id, line_no`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		item, err := scanSaleItem(itemRows)
		if err != nil {
			return nil, 0, err
		}
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	return sales, total, itemRows.Err()
}

// ListPurchases returns a page of purchases, newest first.
func (r *Repository) ListPurchases(ctx context.Context, filter PurchaseFilter) ([]StockPurchase, int, error) {
	productID := pgtype.UUID{Bytes: [16]byte(filter.ProductID), Valid: filter.ProductID != uuid.Nil}
	const where = ` WHERE ($1::uuid IS NULL OR product_id = $1)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_purchases`+where, productID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args := paginate(`SELECT id, product_id, batches_purchased, cost_per_batch, total_cost, units_added, purchased_at, notes FROM stock_purchases`+where+` ORDER BY purchased_at DESC, id`, []any{productID}, filter.Page, filter.PerPage)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	purchases := make([]StockPurchase, 0)
	for rows.Next() {
		var p StockPurchase
		if err := rows.Scan(&p.ID, &p.ProductID, &p.BatchesPurchased, &p.CostPerBatch, &p.TotalCost, &p.UnitsAdded, &p.PurchasedAt, &p.Notes); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Name, p.Description, p.UnitSellingPrice, p.CostPerBatch, p.UnitsPerBatch, p.CurrentStock, p.TotalUnitsSold, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *txRepo) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET name = $2, description = $3, unit_selling_price = $4, cost_per_batch = $5, units_per_batch = $6, updated_at = $7 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.UnitSellingPrice, p.CostPerBatch, p.UnitsPerBatch, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepo) DeleteProduct(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT sale_id FROM sale_items WHERE product_id = $1`, id)
	if err != nil {
		return nil, err
	}
	saleIDs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}
	return saleIDs, nil
}

func (r *txRepo) RecomputeSaleTotals(ctx context.Context, saleIDs []uuid.UUID) error {
	if len(saleIDs) == 0 {
		return nil
	}
	ids := uuidStrings(saleIDs)
	if _, err := r.tx.Exec(ctx, `UPDATE sales s SET total_amount = COALESCE((SELECT SUM(si.subtotal) FROM sale_items si WHERE si.sale_id = s.id), 0) WHERE s.id = ANY($1::uuid[])`, ids); err != nil {
		return fmt.Errorf("inventory: recompute sale totals: %w", err)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM sales s WHERE s.id = ANY($1::uuid[]) AND NOT EXISTS (SELECT 1 FROM sale_items si WHERE si.sale_id = s.id)`, ids); err != nil {
		return fmt.Errorf("inventory: prune empty sales: %w", err)
	}
	return nil
}

func (r *txRepo) InsertPurchase(ctx context.Context, p StockPurchase) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_purchases (id, product_id, batches_purchased, cost_per_batch, total_cost, units_added, purchased_at, notes) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ProductID, p.BatchesPurchased, p.CostPerBatch, p.TotalCost, p.UnitsAdded, p.PurchasedAt, p.Notes)
	return err
}

func (r *txRepo) InsertSale(ctx context.Context, s Sale) error {
	if _, err := r.tx.Exec(ctx, `INSERT INTO sales (id, sold_at, total_amount, notes) VALUES ($1, $2, $3, $4)`,
		s.ID, s.SoldAt, s.TotalAmount, s.Notes); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i, item := range s.Items {
		batch.Queue(`INSERT INTO sale_items (id, sale_id, product_id, line_no, quantity, unit_price, subtotal) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.SaleID, item.ProductID, i+1, item.Quantity, item.UnitPrice, item.Subtotal)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range s.Items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("inventory: insert sale item: %w", err)
		}
	}
	return results.Close()
}

func (r *txRepo) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error) {
	return loadSale(ctx, r.tx, id, true)
}

func (r *txRepo) DeleteSale(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *txRepo) AdjustStock(ctx context.Context, productID uuid.UUID, stockDelta, soldDelta int64) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx, `UPDATE products SET current_stock = current_stock + $2, total_units_sold = total_units_sold + $3 WHERE id = $1 RETURNING id, name, current_stock, total_units_sold`,
		productID, stockDelta, soldDelta).Scan(&level.ProductID, &level.Name, &level.CurrentStock, &level.TotalUnitsSold)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, ErrProductNotFound
	}
	return level, err
}

// RestoreStock reverses one sale item: stock comes back and the sold counter
// drops by the same quantity.
func (r *txRepo) RestoreStock(ctx context.Context, productID uuid.UUID, qty int64) (StockLevel, error) {
	if qty <= 0 {
		return StockLevel{}, ErrInvalidQuantity
	}
	return r.AdjustStock(ctx, productID, qty, -qty)
}

func loadSale(ctx context.Context, q querier, id uuid.UUID, lock bool) (Sale, error) {
	query := `SELECT id, sold_at, total_amount, notes FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var s Sale
	if err := q.QueryRow(ctx, query, id).Scan(&s.ID, &s.SoldAt, &s.TotalAmount, &s.Notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, quantity, unit_price, subtotal FROM sale_items WHERE sale_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	s.Items = []SaleItem{}
	for rows.Next() {
		item, err := scanSaleItem(rows)
		if err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UnitSellingPrice, &p.CostPerBatch, &p.UnitsPerBatch, &p.CurrentStock, &p.TotalUnitsSold, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func scanSaleItem(row pgx.Row) (SaleItem, error) {
	var item SaleItem
	err := row.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal)
	return item, err
}

func paginate(query string, args []any, page, perPage int) (string, []any) {
	if perPage <= 0 {
		return query, args
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	n := len(args)
	return query + ` LIMIT $` + strconv.Itoa(n-1) + ` OFFSET $` + strconv.Itoa(n), args
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
