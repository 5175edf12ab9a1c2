package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_cart/fulfillment-service/internal/cache"
	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type stubProducts struct {
	products   []*domain.Product
	product    *domain.Product
	categories []string
	source     domain.Source
	err        error
	lastFilter domain.ProductFilter
}

func (s *stubProducts) ListProducts(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, domain.Source, error) {
	s.lastFilter = filter
	return s.products, s.source, s.err
}

func (s *stubProducts) GetProduct(context.Context, int64) (*domain.Product, domain.Source, error) {
	return s.product, s.source, s.err
}

func (s *stubProducts) ListCategories(context.Context) ([]string, domain.Source, error) {
	return s.categories, s.source, s.err
}

type stubCarts struct {
	view       *domain.CartView
	source     domain.Source
	err        error
	lastUser   int64
	lastItem   int64
	lastQty    int
	cleared    bool
	addedItems int
}

func (s *stubCarts) GetCart(_ context.Context, userID int64) (*domain.CartView, domain.Source, error) {
	s.lastUser = userID
	return s.view, s.source, s.err
}

func (s *stubCarts) AddItem(_ context.Context, userID, productID int64, quantity int) error {
	s.lastUser, s.lastItem, s.lastQty = userID, productID, quantity
	s.addedItems++
	return s.err
}

func (s *stubCarts) UpdateItem(_ context.Context, userID, itemID int64, quantity int) error {
	s.lastUser, s.lastItem, s.lastQty = userID, itemID, quantity
	return s.err
}

func (s *stubCarts) RemoveItem(_ context.Context, userID, itemID int64) error {
	s.lastUser, s.lastItem = userID, itemID
	return s.err
}

func (s *stubCarts) ClearCart(_ context.Context, userID int64) error {
	s.lastUser = userID
	s.cleared = true
	return s.err
}

type stubOrders struct {
	order    *domain.Order
	orders   []*domain.Order
	err      error
	lastUser int64
	lastAddr string
}

func (s *stubOrders) PlaceOrder(_ context.Context, userID int64, shippingAddress string) (*domain.Order, error) {
	s.lastUser, s.lastAddr = userID, shippingAddress
	return s.order, s.err
}

func (s *stubOrders) ListOrders(_ context.Context, userID int64) ([]*domain.Order, error) {
	s.lastUser = userID
	return s.orders, s.err
}

func (s *stubOrders) GetOrder(_ context.Context, userID, _ int64) (*domain.Order, error) {
	s.lastUser = userID
	return s.order, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCache struct {
	cache.Cache
	pingErr error
}

func (c stubCache) Ping(context.Context) error { return c.pingErr }
func (c stubCache) Stats() cache.StatsSnapshot { return cache.StatsSnapshot{Hits: 3} }

type testServer struct {
	handler  http.Handler
	products *stubProducts
	carts    *stubCarts
	orders   *stubOrders
}

func newTestServer(t *testing.T) *testServer {
	logger := zaptest.NewLogger(t)
	ts := &testServer{
		products: &stubProducts{source: domain.SourceDatabase},
		carts:    &stubCarts{source: domain.SourceDatabase},
		orders:   &stubOrders{},
	}
	ts.handler = NewRouter(Handlers{
		Products: NewProductHandler(ts.products, logger),
		Cart:     NewCartHandler(ts.carts, logger),
		Orders:   NewOrdersHandler(ts.orders, logger),
		Health:   NewHealthHandler(stubPinger{}, stubCache{}),
	}, NewAuthenticator(testSecret), 5*time.Second, logger)
	return ts
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func userToken(t *testing.T, userID int64) string {
	return signToken(t, jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}
