// Package notify raises low-stock alerts and delivers operator notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "notify:low_stock:"

// StockLevel is the stock of one product after a ledger write.
type StockLevel struct {
	ProductID    uuid.UUID
	Name         string
	CurrentStock int64
}

// LowStockAlert is the payload of a queued low-stock notification.
type LowStockAlert struct {
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	CurrentStock int64     `json:"current_stock"`
	Threshold    int64     `json:"threshold"`
	DetectedAt   time.Time `json:"detected_at"`
}

// Enqueuer hands alerts to the background queue.
type Enqueuer interface {
	EnqueueLowStock(ctx context.Context, alert LowStockAlert) error
}

// NotifierConfig tunes the low-stock notifier.
type NotifierConfig struct {
	Threshold int64
	Cooldown  time.Duration
	Logger    *slog.Logger
	Clock     func() time.Time
}

// LowStockNotifier queues one alert per product whose stock is at or below
// the threshold, at most once per cooldown. A product that recovers above the
// threshold is re-armed immediately.
type LowStockNotifier struct {
	threshold int64
	cooldown  time.Duration
	enqueuer  Enqueuer
	redis     *redis.Client
	logger    *slog.Logger
	now       func() time.Time
}

// NewLowStockNotifier constructs the notifier. A nil redis client disables
// deduplication.
func NewLowStockNotifier(enqueuer Enqueuer, client *redis.Client, cfg NotifierConfig) *LowStockNotifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 6 * time.Hour
	}
	return &LowStockNotifier{
		threshold: cfg.Threshold,
		cooldown:  cooldown,
		enqueuer:  enqueuer,
		redis:     client,
		logger:    logger,
		now:       clock,
	}
}

// Threshold returns the configured alert threshold.
func (n *LowStockNotifier) Threshold() int64 {
	return n.threshold
}

// Check evaluates levels and returns how many alerts were queued.
func (n *LowStockNotifier) Check(ctx context.Context, levels []StockLevel) (int, error) {
	if n == nil || n.enqueuer == nil || n.threshold < 0 {
		return 0, nil
	}
	var (
		queued int
		errs   []error
	)
	for _, level := range levels {
		key := dedupePrefix + level.ProductID.String()
		if level.CurrentStock > n.threshold {
			if n.redis != nil {
				if err := n.redis.Del(ctx, key).Err(); err != nil {
					errs = append(errs, fmt.Errorf("notify: rearm %s: %w", level.Name, err))
				}
			}
			continue
		}
		claimed, err := n.claim(ctx, key)
		if err != nil {
			errs = append(errs, fmt.Errorf("notify: dedupe %s: %w", level.Name, err))
			continue
		}
		if !claimed {
			continue
		}
		alert := LowStockAlert{
			ProductID:    level.ProductID,
			Name:         level.Name,
			CurrentStock: level.CurrentStock,
			Threshold:    n.threshold,
			DetectedAt:   n.now().UTC(),
		}
		if err := n.enqueuer.EnqueueLowStock(ctx, alert); err != nil {
			n.release(ctx, key)
			errs = append(errs, fmt.Errorf("notify: enqueue %s: %w", level.Name, err))
			continue
		}
		queued++
		n.logger.Info("low stock alert queued",
			slog.String("product", level.Name),
			slog.Int64("stock", level.CurrentStock),
			slog.Int64("threshold", n.threshold))
	}
	return queued, errors.Join(errs...)
}

func (n *LowStockNotifier) claim(ctx context.Context, key string) (bool, error) {
	if n.redis == nil {
		return true, nil
	}
	return n.redis.SetNX(ctx, key, n.now().UTC().Format(time.RFC3339), n.cooldown).Result()
}

func (n *LowStockNotifier) release(ctx context.Context, key string) {
	if n.redis == nil {
		return
	}
	if err := n.redis.Del(ctx, key).Err(); err != nil {
		n.logger.Warn("release low stock dedupe key", slog.String("key", key), slog.Any("error", err))
	}
}
