package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Products *ProductHandler
	Cart     *CartHandler
	Orders   *OrdersHandler
	Health   *HealthHandler
}

func NewRouter(h Handlers, auth *Authenticator, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.Health.Health)
	r.Get("/health/ready", h.Health.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.ListProducts)
			r.Get("/categories", h.Products.ListCategories)
			r.Get("/{id}", h.Products.GetProduct)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/", h.Cart.AddItem)
				r.Delete("/", h.Cart.ClearCart)
				r.Put("/{id}", h.Cart.UpdateItem)
				r.Delete("/{id}", h.Cart.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Orders.CreateOrder)
				r.Get("/", h.Orders.ListOrders)
				r.Get("/{id}", h.Orders.GetOrder)
			})
		})
	})

	return otelhttp.NewHandler(r, "fulfillment-http")
}
