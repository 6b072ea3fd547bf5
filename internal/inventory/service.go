package inventory

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/homestock/homestock/internal/shared"
)

const idempotencyModule = "sales"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]Sale, int, error)
	ListPurchases(ctx context.Context, filter PurchaseFilter) ([]StockPurchase, int, error)
}

// IdempotencyPort guards sale creation against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Service is the ledger engine: every write that moves stock counters runs
// here inside a single transaction.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, idem IdempotencyPort, cfg ServiceConfig, integration IntegrationHandler) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, idempotency: idem, integration: integration, logger: logger, now: clock}
}

// CreateProduct registers a product with zeroed stock counters.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	input, err := normalizeProductInput(input)
	if err != nil {
		return Product{}, err
	}
	now := s.now().UTC()
	product := Product{
		ID:               uuid.New(),
		Name:             input.Name,
		Description:      input.Description,
		UnitSellingPrice: input.UnitSellingPrice,
		CostPerBatch:     input.CostPerBatch,
		UnitsPerBatch:    input.UnitsPerBatch,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertProduct(ctx, product)
	})
	if err != nil {
		return Product{}, err
	}
	s.publish(ctx, LedgerChangedEvent{Change: ChangeProduct, OccurredAt: now})
	return product, nil
}

// UpdateProduct edits pricing and descriptive fields. Stock counters and
// historical purchases and sales are left untouched.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (Product, error) {
	input, err := normalizeProductInput(input)
	if err != nil {
		return Product{}, err
	}
	var product Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current.Name = input.Name
		current.Description = input.Description
		current.UnitSellingPrice = input.UnitSellingPrice
		current.CostPerBatch = input.CostPerBatch
		current.UnitsPerBatch = input.UnitsPerBatch
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateProduct(ctx, current); err != nil {
			return err
		}
		product = current
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.publish(ctx, LedgerChangedEvent{
		Change:     ChangeProduct,
		Levels:     []StockLevel{{ProductID: product.ID, Name: product.Name, CurrentStock: product.CurrentStock, TotalUnitsSold: product.TotalUnitsSold}},
		OccurredAt: product.UpdatedAt,
	})
	return product, nil
}

// GetProduct loads a product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products matching filter.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	filter.Search = strings.TrimSpace(filter.Search)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// DeleteProduct removes a product together with its purchases and sale
// items. Sales that lose items get their totals recomputed; sales left empty
// are removed.
func (s *Service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	var removed Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		removed = product
		saleIDs, err := tx.DeleteProduct(ctx, id)
		if err != nil {
			return err
		}
		return tx.RecomputeSaleTotals(ctx, saleIDs)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, LedgerChangedEvent{
		Change:     ChangeProduct,
		Removed:    []StockLevel{{ProductID: removed.ID, Name: removed.Name, CurrentStock: removed.CurrentStock, TotalUnitsSold: removed.TotalUnitsSold}},
		OccurredAt: s.now().UTC(),
	})
	return nil
}

// RecordPurchase restocks a product: current_stock grows by
// batches x units_per_batch.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (StockPurchase, error) {
	if input.ProductID == uuid.Nil {
		return StockPurchase{}, ErrProductNotFound
	}
	if input.BatchesPurchased <= 0 || input.BatchesPurchased > MaxQuantity {
		return StockPurchase{}, fieldErr("batches_purchased", ErrInvalidQuantity)
	}
	if input.CostPerBatch != nil {
		if input.CostPerBatch.IsNegative() {
			return StockPurchase{}, fieldErr("cost_per_batch", ErrInvalidCost)
		}
		if !fitsMoney(roundMoney(*input.CostPerBatch)) {
			return StockPurchase{}, fieldErr("cost_per_batch", ErrAmountTooLarge)
		}
	}
	purchasedAt := s.timestamp(input.PurchasedAt)

	var (
		purchase StockPurchase
		level    StockLevel
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		cost := product.CostPerBatch
		if input.CostPerBatch != nil {
			cost = roundMoney(*input.CostPerBatch)
		}
		unitsAdded, ok := mulUnits(input.BatchesPurchased, product.UnitsPerBatch)
		if !ok {
			return fieldErr("batches_purchased", ErrCounterOverflow)
		}
		if _, ok := addUnits(product.CurrentStock, unitsAdded); !ok {
			return fieldErr("batches_purchased", ErrCounterOverflow)
		}
		totalCost := roundMoney(cost.Mul(decimal.NewFromInt(input.BatchesPurchased)))
		if !fitsMoney(totalCost) {
			return fieldErr("total_cost", ErrAmountTooLarge)
		}
		purchase = StockPurchase{
			ID:               uuid.New(),
			ProductID:        product.ID,
			BatchesPurchased: input.BatchesPurchased,
			CostPerBatch:     cost,
			TotalCost:        totalCost,
			UnitsAdded:       unitsAdded,
			PurchasedAt:      purchasedAt,
			Notes:            strings.TrimSpace(input.Notes),
		}
		if err := tx.InsertPurchase(ctx, purchase); err != nil {
			return err
		}
		level, err = tx.AdjustStock(ctx, product.ID, purchase.UnitsAdded, 0)
		return err
	})
	if err != nil {
		return StockPurchase{}, err
	}
	s.publish(ctx, LedgerChangedEvent{
		Change:     ChangePurchase,
		Levels:     []StockLevel{level},
		UnitsMoved: purchase.UnitsAdded,
		OccurredAt: purchasedAt,
	})
	return purchase, nil
}

// ListPurchases lists purchases, optionally for one product.
func (s *Service) ListPurchases(ctx context.Context, filter PurchaseFilter) ([]StockPurchase, shared.Pagination, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	purchases, total, err := s.repo.ListPurchases(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return purchases, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// RecordSale records a multi-item sale. Each item snapshots the product's
// selling price and moves quantity from current_stock to total_units_sold.
// A sale that would drive any product below zero is rejected as a whole.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (Sale, error) {
	requested, order, err := collectSaleItems(input.Items)
	if err != nil {
		return Sale{}, err
	}
	soldAt := s.timestamp(input.SoldAt)

	key := strings.TrimSpace(input.IdempotencyKey)
	claimed := false
	if key != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Sale{}, err
		}
		claimed = true
	}

	var (
		sale   Sale
		levels []StockLevel
		units  int64
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products := make(map[uuid.UUID]Product, len(order))
		for _, id := range order {
			product, err := tx.GetProductForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if requested[id] > product.CurrentStock {
				return &InsufficientStockError{
					ProductID: id,
					Name:      product.Name,
					Available: product.CurrentStock,
					Requested: requested[id],
				}
			}
			if _, ok := addUnits(product.TotalUnitsSold, requested[id]); !ok {
				return ErrCounterOverflow
			}
			products[id] = product
		}

		sale = Sale{ID: uuid.New(), SoldAt: soldAt, Notes: strings.TrimSpace(input.Notes), TotalAmount: decimal.Zero}
		for i, item := range input.Items {
			price := products[item.ProductID].UnitSellingPrice
			line := SaleItem{
				ID:        uuid.New(),
				SaleID:    sale.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: price,
				Subtotal:  roundMoney(price.Mul(decimal.NewFromInt(item.Quantity))),
			}
			if !fitsMoney(line.Subtotal) {
				return fieldErr(fmt.Sprintf("items[%d].subtotal", i), ErrAmountTooLarge)
			}
			sale.Items = append(sale.Items, line)
			sale.TotalAmount = sale.TotalAmount.Add(line.Subtotal)
		}
		if !fitsMoney(sale.TotalAmount) {
			return fieldErr("total_amount", ErrAmountTooLarge)
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}

		levels = levels[:0]
		units = 0
		for _, id := range order {
			level, err := tx.AdjustStock(ctx, id, -requested[id], requested[id])
			if err != nil {
				return err
			}
			levels = append(levels, level)
			units += requested[id]
		}
		return nil
	})
	if err != nil {
		if claimed {
			if delErr := s.idempotency.Delete(ctx, key, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return Sale{}, err
	}
	s.publish(ctx, LedgerChangedEvent{Change: ChangeSale, Levels: levels, UnitsMoved: units, OccurredAt: soldAt})
	return sale, nil
}

// GetSale loads a sale with its items.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales lists sales within the filter's [From, To) range.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) ([]Sale, shared.Pagination, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, shared.Pagination{}, ErrInvalidRange
	}
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return sales, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// DeleteSale removes a sale and compensates stock: every item's quantity is
// restored to its product before the cascading delete removes the items.
func (s *Service) DeleteSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	var (
		sale   Sale
		levels []StockLevel
		units  int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		items := make([]SaleItem, len(sale.Items))
		copy(items, sale.Items)
		sort.SliceStable(items, func(i, j int) bool {
			return bytes.Compare(items[i].ProductID[:], items[j].ProductID[:]) < 0
		})
		byProduct := make(map[uuid.UUID]int, len(items))
		levels = levels[:0]
		units = 0
		for _, item := range items {
			level, err := tx.RestoreStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if idx, ok := byProduct[item.ProductID]; ok {
				levels[idx] = level
			} else {
				byProduct[item.ProductID] = len(levels)
				levels = append(levels, level)
			}
			units += item.Quantity
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		return Sale{}, err
	}
	s.publish(ctx, LedgerChangedEvent{Change: ChangeSaleDeleted, Levels: levels, UnitsMoved: units, OccurredAt: s.now().UTC()})
	return sale, nil
}

func (s *Service) publish(ctx context.Context, evt LedgerChangedEvent) {
	if s.integration == nil {
		return
	}
	if err := s.integration.HandleLedgerChanged(ctx, evt); err != nil {
		s.logger.Warn("ledger integration", slog.String("change", string(evt.Change)), slog.Any("error", err))
	}
}

func (s *Service) timestamp(at *time.Time) time.Time {
	if at != nil && !at.IsZero() {
		return at.UTC()
	}
	return s.now().UTC()
}

func normalizeProductInput(input ProductInput) (ProductInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return ProductInput{}, ErrNameRequired
	}
	if input.UnitSellingPrice.IsNegative() {
		return ProductInput{}, ErrInvalidPrice
	}
	if input.CostPerBatch.IsNegative() {
		return ProductInput{}, ErrInvalidCost
	}
	if input.UnitsPerBatch <= 0 || input.UnitsPerBatch > MaxQuantity {
		return ProductInput{}, fieldErr("units_per_batch", ErrInvalidBatchSize)
	}
	input.UnitSellingPrice = roundMoney(input.UnitSellingPrice)
	input.CostPerBatch = roundMoney(input.CostPerBatch)
	if !fitsMoney(input.UnitSellingPrice) {
		return ProductInput{}, fieldErr("unit_selling_price", ErrAmountTooLarge)
	}
	if !fitsMoney(input.CostPerBatch) {
		return ProductInput{}, fieldErr("cost_per_batch", ErrAmountTooLarge)
	}
	return input, nil
}

// collectSaleItems validates lines and returns the per-product requested
// quantity plus the product ids in lock order.
func collectSaleItems(items []SaleItemInput) (map[uuid.UUID]int64, []uuid.UUID, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptySale
	}
	requested := make(map[uuid.UUID]int64, len(items))
	order := make([]uuid.UUID, 0, len(items))
	for i, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, nil, ErrProductNotFound
		}
		field := fmt.Sprintf("items[%d].quantity", i)
		if item.Quantity <= 0 || item.Quantity > MaxQuantity {
			return nil, nil, fieldErr(field, ErrInvalidQuantity)
		}
		if _, ok := requested[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		// lines for one product are summed; both operands are already bounded
		requested[item.ProductID] += item.Quantity
		if requested[item.ProductID] > MaxQuantity {
			return nil, nil, fieldErr(field, ErrInvalidQuantity)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		return bytes.Compare(order[i][:], order[j][:]) < 0
	})
	return requested, order, nil
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func fitsMoney(d decimal.Decimal) bool {
	return d.LessThan(MaxAmount)
}

// mulUnits multiplies two positive counts, reporting overflow.
func mulUnits(a, b int64) (int64, bool) {
	if a <= 0 || b <= 0 || a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// addUnits adds a non-negative count to a counter, reporting overflow.
func addUnits(counter, n int64) (int64, bool) {
	if n < 0 || counter > math.MaxInt64-n {
		return 0, false
	}
	return counter + n, true
}
