package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/logger"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const MinShippingAddressLength = 10

type OrderConfig struct {
	// MaxRetries bounds how often a transient store failure is retried.
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func DefaultOrderConfig() OrderConfig {
	return OrderConfig{
		MaxRetries:           3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     time.Second,
	}
}

type OrderService struct {
	repo   repository.OrderRepository
	inv    *Invalidator
	cfg    OrderConfig
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOrderService(repo repository.OrderRepository, inv *Invalidator, cfg OrderConfig, logger *zap.Logger) *OrderService {
	return &OrderService{
		repo:   repo,
		inv:    inv,
		cfg:    cfg,
		tracer: otel.Tracer("fulfillment-service/orders"),
		logger: logger,
	}
}

// PlaceOrder converts the user's cart into an order in one transaction:
// stock is decremented, the cart is emptied and an order.placed event is
// queued, or nothing changes at all.
func (s *OrderService) PlaceOrder(ctx context.Context, userID int64, shippingAddress string) (*domain.Order, error) {
	address := strings.TrimSpace(shippingAddress)
	if len(address) < MinShippingAddressLength {
		return nil, fmt.Errorf("%w: shipping address must be at least %d characters",
			domain.ErrValidation, MinShippingAddressLength)
	}

	ctx, span := s.tracer.Start(ctx, "order.place",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("user_id", userID))

	var order *domain.Order
	attempt := 0
	op := func() error {
		attempt++
		placed, err := s.placeOnce(ctx, userID, address)
		if err == nil {
			order = placed
			return nil
		}
		if errors.Is(err, domain.ErrTransient) {
			log.Warn("order transaction failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.cfg.MaxRetries)), ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not placed")
		span.SetAttributes(attribute.Int("order.attempts", attempt))
		if isBusinessError(err) {
			log.Info("order rejected", zap.Error(err))
		} else {
			log.Error("order transaction failed", zap.Int("attempts", attempt), zap.Error(err))
		}
		return nil, err
	}

	productIDs := make([]int64, 0, len(order.Items))
	for _, it := range order.Items {
		productIDs = append(productIDs, it.ProductID)
	}
	s.inv.InvalidateAfterOrder(userID, productIDs)

	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.Int("order.items", len(order.Items)),
		attribute.String("order.total", order.TotalAmount.String()),
		attribute.Int("order.attempts", attempt),
	)
	log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.String()),
		zap.Int("items", len(order.Items)))
	return order, nil
}

func (s *OrderService) placeOnce(ctx context.Context, userID int64, address string) (*domain.Order, error) {
	var placed *domain.Order

	err := s.repo.WithOrderTx(ctx, func(tx repository.OrderTx) error {
		cartID, err := tx.GetCartID(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.ErrEmptyCart
		}
		if err != nil {
			return err
		}

		lines, err := tx.LockCheckoutLines(ctx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}

		// validate everything before the first write
		for _, l := range lines {
			if l.Stock < l.Quantity {
				return &domain.InsufficientStockError{
					ProductID:   l.ProductID,
					ProductName: l.ProductName,
					Available:   l.Stock,
					Requested:   l.Quantity,
				}
			}
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			items = append(items, domain.OrderItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.Price,
				Name:      l.ProductName,
			})
		}

		order := &domain.Order{
			UserID:          userID,
			TotalAmount:     domain.OrderTotal(items),
			ShippingAddress: address,
			Status:          domain.OrderStatusPending,
		}
		if err = tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err = tx.InsertOrderItem(ctx, &items[i]); err != nil {
				return err
			}
			if err = tx.DecrementStock(ctx, items[i].ProductID, items[i].Quantity); err != nil {
				var stockErr *domain.InsufficientStockError
				if errors.As(err, &stockErr) {
					stockErr.ProductName = lines[i].ProductName
					stockErr.Available = lines[i].Stock
				}
				return err
			}
		}

		if err = tx.ClearCartItems(ctx, cartID); err != nil {
			return err
		}

		event, err := newOrderPlacedEvent(order, items)
		if err != nil {
			return err
		}
		if err = tx.InsertOutboxEvent(ctx, event); err != nil {
			return err
		}

		order.Items = items
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func newOrderPlacedEvent(order *domain.Order, items []domain.OrderItem) (*domain.OutboxEvent, error) {
	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.String(),
		Items:       items,
		PlacedAt:    order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order placed event: %w", err)
	}

	return &domain.OutboxEvent{
		ID:          uuid.New().String(),
		AggregateID: strconv.FormatInt(order.ID, 10),
		EventType:   domain.EventOrderPlaced,
		Payload:     payload,
	}, nil
}

func (s *OrderService) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitialInterval
	b.MaxInterval = s.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.repo.ListOrdersByUserID(ctx, userID)
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	return s.repo.GetOrderForUser(ctx, userID, orderID)
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrEmptyCart) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation)
}
