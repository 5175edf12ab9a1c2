package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/fulfillment-service/internal/domain"
)

var (
	ErrProductNotFound  = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrCartNotFound     = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrCartItemNotFound = fmt.Errorf("cart item %w", domain.ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", domain.ErrNotFound)
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartItemStock is a cart item resolved through its owning cart, with the
// product's current stock.
type CartItemStock struct {
	ItemID      int64
	ProductID   int64
	ProductName string
	Stock       int
	Quantity    int
}

type ProductRepository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type CartRepository interface {
	// GetOrCreateCart returns the user's cart, creating it on first use.
	GetOrCreateCart(ctx context.Context, userID int64) (*domain.Cart, error)
	// GetCartLines returns an empty slice when the user has no cart.
	GetCartLines(ctx context.Context, userID int64) ([]domain.CartLine, error)
	// UpsertCartItem inserts the item or adds quantity to the existing one.
	UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int) error
	GetCartItemStock(ctx context.Context, userID, itemID int64) (*CartItemStock, error)
	SetCartItemQuantity(ctx context.Context, userID, itemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

// OrderTx is the transactional scope of one order placement. Every call runs in
// the same database transaction; nothing is visible to other sessions until
// WithOrderTx commits.
type OrderTx interface {
	GetCartID(ctx context.Context, userID int64) (int64, error)
	// LockCheckoutLines reads the cart items with current product price and
	// stock and locks the item and product rows until the transaction ends.
	LockCheckoutLines(ctx context.Context, cartID int64) ([]domain.CheckoutLine, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOrderItem(ctx context.Context, item *domain.OrderItem) error
	// DecrementStock never takes stock below zero; it fails with
	// *domain.InsufficientStockError instead.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	ClearCartItems(ctx context.Context, cartID int64) error
	InsertOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
}

type OrderRepository interface {
	// WithOrderTx runs fn inside one transaction. The transaction is committed
	// when fn returns nil and rolled back on error or panic.
	WithOrderTx(ctx context.Context, fn func(tx OrderTx) error) error
	ListOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error)
	// GetOrderForUser reports ErrOrderNotFound for orders owned by someone else.
	GetOrderForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

// Store is the catalog store of record.
type Store interface {
	ProductRepository
	CartRepository
	OrderRepository
	OutboxRepository
	Ping(ctx context.Context) error
	Close() error
}
