package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type testEnv struct {
	store   *repository.MemoryStore
	cache   *cache.RedisCache
	redis   *miniredis.Miniredis
	catalog *CatalogService
	carts   *CartService
	orders  *OrderService
}

func setupEnv(t *testing.T) *testEnv {
	return setupEnvWithOrderRepo(t, nil)
}

// setupEnvWithOrderRepo wires the services over a memory store and miniredis.
// A non-nil wrap replaces the order repository seen by OrderService.
func setupEnvWithOrderRepo(t *testing.T, wrap func(repository.OrderRepository) repository.OrderRepository) *testEnv {
	logger := zaptest.NewLogger(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := repository.NewMemoryStore()
	c := cache.NewRedisCache(client, cache.DefaultConfig(), logger)
	inv := NewInvalidator(c, logger)

	var orderRepo repository.OrderRepository = store
	if wrap != nil {
		orderRepo = wrap(store)
	}

	cfg := DefaultOrderConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond

	return &testEnv{
		store:   store,
		cache:   c,
		redis:   mr,
		catalog: NewCatalogService(store, c),
		carts:   NewCartService(store, store, c, inv, logger),
		orders:  NewOrderService(orderRepo, inv, cfg, logger),
	}
}

func (e *testEnv) addProduct(name, category, price string, stock int) int64 {
	return e.store.AddProduct(domain.Product{
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	})
}

// flakyOrderRepo fails the first failures transactions with a transient error.
type flakyOrderRepo struct {
	repository.OrderRepository
	failures int32
	calls    atomic.Int32
}

func (f *flakyOrderRepo) WithOrderTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	if f.calls.Add(1) <= f.failures {
		return fmt.Errorf("%w: serialization failure", domain.ErrTransient)
	}
	return f.OrderRepository.WithOrderTx(ctx, fn)
}
