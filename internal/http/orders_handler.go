package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, userID int64, shippingAddress string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error)
}

type OrdersHandler struct {
	orders OrderService
	logger *zap.Logger
}

func NewOrdersHandler(orders OrderService, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, logger: logger}
}

type CreateOrderRequestDTO struct {
	ShippingAddress string `json:"shipping_address"`
}

type OrderSummaryDTO struct {
	ID          int64              `json:"id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Status      domain.OrderStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
}

type CreateOrderResponse struct {
	Message string          `json:"message"`
	Order   OrderSummaryDTO `json:"order"`
}

type OrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
}

type OrderResponse struct {
	Order *domain.Order `json:"order"`
}

func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	var req CreateOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(strings.TrimSpace(req.ShippingAddress)) < service.MinShippingAddressLength {
		respondError(w, http.StatusBadRequest, "invalid_shipping_address",
			"shipping_address must be at least 10 characters")
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), userID, req.ShippingAddress)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to create order")
		return
	}

	respondJSON(w, http.StatusCreated, CreateOrderResponse{
		Message: "Order created successfully",
		Order: OrderSummaryDTO{
			ID:          order.ID,
			TotalAmount: order.TotalAmount,
			Status:      order.Status,
			CreatedAt:   order.CreatedAt,
		},
	})
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch orders")
		return
	}

	respondJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	orderID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch order")
		return
	}

	respondJSON(w, http.StatusOK, OrderResponse{Order: order})
}
