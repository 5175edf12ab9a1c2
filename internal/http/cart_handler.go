package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, userID int64) (*domain.CartView, domain.Source, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) error
	UpdateItem(ctx context.Context, userID, itemID int64, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

type CartHandler struct {
	carts  CartService
	logger *zap.Logger
}

func NewCartHandler(carts CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, logger: logger}
}

type AddItemRequestDTO struct {
	ProductID *int64 `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartResponse struct {
	Cart   *domain.CartView `json:"cart"`
	Source domain.Source    `json:"source"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	cart, source, err := h.carts.GetCart(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch cart")
		return
	}

	respondJSON(w, http.StatusOK, CartResponse{Cart: cart, Source: source})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == nil || *req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}
	if req.Quantity == nil || *req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a positive integer")
		return
	}

	if err := h.carts.AddItem(r.Context(), userID, *req.ProductID, *req.Quantity); err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to add product to cart")
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Product added to cart"})
}

// UpdateItem sets the quantity of a cart item; zero removes it.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be a non-negative integer")
		return
	}

	if err := h.carts.UpdateItem(r.Context(), userID, itemID, *req.Quantity); err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to update cart item")
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Cart item updated"})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(r.Context(), userID, itemID); err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to remove item from cart")
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Item removed from cart"})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())

	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to clear cart")
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Cart cleared"})
}
