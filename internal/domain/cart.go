package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CartLine is a cart item joined with the product fields shown to the user.
type CartLine struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CartView is the cached read model of a user's cart.
type CartView struct {
	Items []CartLine      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// NewCartView computes subtotals and the total for the given lines.
func NewCartView(lines []CartLine) *CartView {
	view := &CartView{
		Items: make([]CartLine, 0, len(lines)),
		Total: decimal.Zero,
	}
	for _, line := range lines {
		line.Subtotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Total = view.Total.Add(line.Subtotal)
		view.Items = append(view.Items, line)
	}
	return view
}

// CheckoutLine is a cart item read inside the order transaction, carrying the
// product's current price and stock.
type CheckoutLine struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Stock       int
}
