package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/homestock/homestock/internal/analytics"
	"github.com/homestock/homestock/internal/app"
	"github.com/homestock/homestock/internal/inventory"
	"github.com/homestock/homestock/internal/platform/cache"
	"github.com/homestock/homestock/internal/platform/db"
)

type seedProduct struct {
	name          string
	description   string
	price         string
	costPerBatch  string
	unitsPerBatch int64
	batches       int64
}

var catalog = []seedProduct{
	{name: "Lavender Soy Candle", description: "8oz jar, 45h burn", price: "18.00", costPerBatch: "96.00", unitsPerBatch: 12, batches: 3},
	{name: "Oatmeal Goat Milk Soap", description: "4oz bar", price: "7.50", costPerBatch: "54.00", unitsPerBatch: 24, batches: 2},
	{name: "Beeswax Lip Balm", description: "Unflavoured, 0.15oz tube", price: "4.00", costPerBatch: "30.00", unitsPerBatch: 50, batches: 1},
	{name: "Cedar Beard Oil", description: "1oz dropper bottle", price: "16.00", costPerBatch: "66.00", unitsPerBatch: 10, batches: 1},
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Default().Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	service := inventory.NewService(inventory.NewRepository(pool), nil, inventory.ServiceConfig{Logger: logger}, nil)
	now := time.Now().In(cfg.Location())
	rng := rand.New(rand.NewSource(now.UnixNano()))

	logger.Info("seeding products")
	products := make([]inventory.Product, 0, len(catalog))
	for _, item := range catalog {
		product, err := service.CreateProduct(ctx, inventory.ProductInput{
			Name:             item.name,
			Description:      item.description,
			UnitSellingPrice: decimal.RequireFromString(item.price),
			CostPerBatch:     decimal.RequireFromString(item.costPerBatch),
			UnitsPerBatch:    item.unitsPerBatch,
		})
		if err != nil {
			return fmt.Errorf("create %s: %w", item.name, err)
		}
		purchasedAt := now.AddDate(0, 0, -14)
		if _, err := service.RecordPurchase(ctx, inventory.PurchaseInput{
			ProductID:        product.ID,
			BatchesPurchased: item.batches,
			PurchasedAt:      &purchasedAt,
			Notes:            "opening stock",
		}); err != nil {
			return fmt.Errorf("purchase %s: %w", item.name, err)
		}
		products = append(products, product)
	}

	logger.Info("seeding sales")
	sales := 0
	for day := 13; day >= 0; day-- {
		for n := rng.Intn(3); n >= 0; n-- {
			soldAt := startOfDay(now.AddDate(0, 0, -day)).Add(time.Duration(9+rng.Intn(10)) * time.Hour)
			if soldAt.After(now) {
				soldAt = now
			}
			items := pickItems(rng, products)
			_, err := service.RecordSale(ctx, inventory.SaleInput{
				SoldAt: &soldAt,
				Items:  items,
			})
			if err != nil {
				// oversold mixes are skipped
				logger.Warn("skip sale", slog.Any("error", err))
				continue
			}
			sales++
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err == nil {
		_ = analytics.NewCache(redisClient, cfg.CacheTTL).Bump(ctx)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("seed complete", slog.Int("products", len(products)), slog.Int("sales", sales), slog.String("at", now.Format(time.RFC3339)))
	return nil
}

func pickItems(rng *rand.Rand, products []inventory.Product) []inventory.SaleItemInput {
	count := 1 + rng.Intn(2)
	seen := make(map[uuid.UUID]bool, count)
	items := make([]inventory.SaleItemInput, 0, count)
	for len(items) < count {
		p := products[rng.Intn(len(products))]
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		items = append(items, inventory.SaleItemInput{ProductID: p.ID, Quantity: int64(1 + rng.Intn(3))})
	}
	return items
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
