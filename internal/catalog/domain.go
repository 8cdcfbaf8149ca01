// Package catalog exposes the newspaper and booklet product definitions that
// billing prices deliveries against.
package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the product no longer exists in the catalog.
var ErrNotFound = errors.New("catalog: product not found")

// Newspaper carries a per-weekday price schedule keyed sunday..saturday.
type Newspaper struct {
	ID       int64                      `json:"id"`
	Name     string                     `json:"name"`
	Language string                     `json:"language"`
	Prices   map[string]decimal.Decimal `json:"prices"`
	IsActive bool                       `json:"isActive"`
}

// Booklet carries a single flat price.
type Booklet struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"isActive"`
}

// Reader resolves catalog products by id. Missing products return ErrNotFound.
type Reader interface {
	Newspaper(ctx context.Context, id int64) (Newspaper, error)
	Booklet(ctx context.Context, id int64) (Booklet, error)
}
