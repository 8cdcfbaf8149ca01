package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads the catalog tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Newspaper loads a newspaper with its weekday price map.
func (r *Repository) Newspaper(ctx context.Context, id int64) (Newspaper, error) {
	var (
		n      Newspaper
		prices []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, language, prices, is_active FROM newspapers WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &n.Language, &prices, &n.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Newspaper{}, ErrNotFound
		}
		return Newspaper{}, fmt.Errorf("catalog: load newspaper %d: %w", id, err)
	}
	n.Prices = map[string]decimal.Decimal{}
	if len(prices) > 0 {
		if err := json.Unmarshal(prices, &n.Prices); err != nil {
			return Newspaper{}, fmt.Errorf("catalog: decode prices for newspaper %d: %w", id, err)
		}
	}
	return n, nil
}

// Booklet loads a booklet.
func (r *Repository) Booklet(ctx context.Context, id int64) (Booklet, error) {
	var (
		b     Booklet
		price string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, title, price::text, is_active FROM booklets WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &price, &b.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booklet{}, ErrNotFound
		}
		return Booklet{}, fmt.Errorf("catalog: load booklet %d: %w", id, err)
	}
	b.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Booklet{}, fmt.Errorf("catalog: decode booklet %d price: %w", id, err)
	}
	return b, nil
}
