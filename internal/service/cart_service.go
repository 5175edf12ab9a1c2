package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	cache    cache.Cache
	inv      *Invalidator
	sfg      singleflight.Group
	logger   *zap.Logger
}

func NewCartService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	c cache.Cache,
	inv *Invalidator,
	logger *zap.Logger,
) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		cache:    c,
		inv:      inv,
		logger:   logger,
	}
}

// GetCart returns the user's cart view. A user without a cart gets an empty
// view, which is cached like any other.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.CartView, domain.Source, error) {
	key := cache.CartKey(userID)

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		var view domain.CartView
		if s.cache.Get(ctx, key, &view) {
			if view.Items == nil {
				view.Items = []domain.CartLine{}
			}
			return sourced[*domain.CartView]{&view, domain.SourceCache}, nil
		}

		lines, err := s.carts.GetCartLines(ctx, userID)
		if err != nil {
			return nil, err
		}
		cv := domain.NewCartView(lines)
		s.cache.Set(ctx, key, cv)
		return sourced[*domain.CartView]{cv, domain.SourceDatabase}, nil
	})
	if err != nil {
		return nil, "", err
	}

	res := v.(sourced[*domain.CartView])
	return res.value, res.source, nil
}

// AddItem puts quantity units of a product in the cart, adding to any
// quantity already there. Only the requested quantity is checked against stock.
func (s *CartService) AddItem(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Stock < quantity {
		return &domain.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Requested:   quantity,
		}
	}

	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	if err = s.carts.UpsertCartItem(ctx, cart.ID, productID, quantity); err != nil {
		s.logger.Error("add cart item failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	s.inv.InvalidateCart(userID)
	return nil
}

// UpdateItem sets an item's quantity. A quantity below one removes the item.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID int64, quantity int) error {
	if quantity < 1 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	item, err := s.carts.GetCartItemStock(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if item.Stock < quantity {
		return &domain.InsufficientStockError{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Available:   item.Stock,
			Requested:   quantity,
		}
	}

	if err = s.carts.SetCartItemQuantity(ctx, userID, itemID, quantity); err != nil {
		return err
	}

	s.inv.InvalidateCart(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID int64) error {
	if err := s.carts.RemoveCartItem(ctx, userID, itemID); err != nil {
		return err
	}

	s.inv.InvalidateCart(userID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger.Error("clear cart failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	s.inv.InvalidateCart(userID)
	return nil
}
