// Package customers provides the contact details snapshotted onto bills.
package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates an unknown customer.
var ErrNotFound = errors.New("customers: not found")

// Contact is the subset of a customer profile printed on a bill.
type Contact struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
}

// Directory resolves customer contacts.
type Directory interface {
	Contact(ctx context.Context, customerID int64) (Contact, error)
}

// Repository reads the customers table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Contact implements Directory.
func (r *Repository) Contact(ctx context.Context, customerID int64) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(mobile, ''), COALESCE(address, '') FROM customers WHERE id = $1`, customerID).
		Scan(&c.ID, &c.Name, &c.Mobile, &c.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("customers: load contact: %w", err)
	}
	return c, nil
}
