package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProductFilter narrows a product listing. Empty fields match everything.
type ProductFilter struct {
	Category string
	Search   string
}

// Source tells the caller where a read was served from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)
