package service

import (
	"context"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"go.uber.org/zap"
)

const invalidationTimeout = 5 * time.Second

// Invalidator drops cache entries after writes. It runs on its own context so a
// client that hung up after a committed write does not leave stale entries.
type Invalidator struct {
	cache  cache.Cache
	logger *zap.Logger
}

func NewInvalidator(c cache.Cache, logger *zap.Logger) *Invalidator {
	return &Invalidator{cache: c, logger: logger}
}

func (i *Invalidator) InvalidateCart(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()

	i.cache.Delete(ctx, cache.CartKey(userID))
}

// InvalidateAfterOrder drops the buyer's cart, every product listing and the
// single-product entries whose stock changed.
func (i *Invalidator) InvalidateAfterOrder(userID int64, productIDs []int64) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()

	keys := make([]string, 0, len(productIDs)+1)
	keys = append(keys, cache.CartKey(userID))
	for _, id := range productIDs {
		keys = append(keys, cache.ProductKey(id))
	}
	i.cache.Delete(ctx, keys...)
	i.cache.DeletePattern(ctx, cache.ProductListPattern)

	i.logger.Debug("cache invalidated after order",
		zap.Int64("user_id", userID),
		zap.Int64s("product_ids", productIDs))
}
