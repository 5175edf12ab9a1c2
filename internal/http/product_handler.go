package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductService interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, domain.Source, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, domain.Source, error)
	ListCategories(ctx context.Context) ([]string, domain.Source, error)
}

type ProductHandler struct {
	products ProductService
	logger   *zap.Logger
}

func NewProductHandler(products ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

type ProductsResponse struct {
	Products []*domain.Product `json:"products"`
	Source   domain.Source     `json:"source"`
}

type ProductResponse struct {
	Product *domain.Product `json:"product"`
	Source  domain.Source   `json:"source"`
}

type CategoriesResponse struct {
	Categories []string      `json:"categories"`
	Source     domain.Source `json:"source"`
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := domain.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	}

	products, source, err := h.products.ListProducts(r.Context(), filter)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch products")
		return
	}

	respondJSON(w, http.StatusOK, ProductsResponse{Products: products, Source: source})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, source, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch product")
		return
	}

	respondJSON(w, http.StatusOK, ProductResponse{Product: product, Source: source})
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, source, err := h.products.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, err, "Failed to fetch categories")
		return
	}

	respondJSON(w, http.StatusOK, CategoriesResponse{Categories: categories, Source: source})
}

// pathID parses a positive integer URL parameter, answering 400 otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
