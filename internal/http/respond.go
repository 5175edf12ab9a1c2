package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/fjod/go_cart/fulfillment-service/internal/repository"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleServiceError maps service errors to HTTP responses. failMsg is the
// client-facing message for unexpected failures, whose details only go to the log.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, failMsg string) {
	var stockErr *domain.InsufficientStockError

	switch {
	case errors.As(err, &stockErr):
		respondError(w, http.StatusBadRequest, "insufficient_stock", stockErr.Error())
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "Cart is empty")
	case errors.Is(err, domain.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Product not found")
	case errors.Is(err, repository.ErrCartItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Cart item not found")
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Not found")
	case errors.Is(err, domain.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		logger.Warn(failMsg,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable, please retry")
	default:
		logger.Error(failMsg,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", failMsg)
	}
}
