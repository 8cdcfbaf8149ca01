// Package allotments answers whether an agent currently serves a customer.
// An active allotment is the only authorization gate for billing a customer.
package allotments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoActive indicates the customer has no active agent.
	ErrNoActive = errors.New("allotments: no active allotment")
	// ErrMultipleActive indicates a customer has more than one active agent.
	ErrMultipleActive = errors.New("allotments: more than one active allotment")
)

// Allotment links one agent to one customer.
type Allotment struct {
	ID         int64
	AgentID    int64
	CustomerID int64
	IsActive   bool
	CreatedAt  time.Time
}

// Registry is the authorization gate consumed by billing.
type Registry interface {
	IsActive(ctx context.Context, agentID, customerID int64) (bool, error)
	ActiveForCustomer(ctx context.Context, customerID int64) (Allotment, error)
}

// CheckSingleActive verifies that no customer appears in more than one active
// allotment. The database enforces the same rule with a partial unique index.
func CheckSingleActive(list []Allotment) error {
	seen := make(map[int64]int64, len(list))
	for _, a := range list {
		if !a.IsActive {
			continue
		}
		if agent, ok := seen[a.CustomerID]; ok {
			return fmt.Errorf("%w: customer %d has agents %d and %d", ErrMultipleActive, a.CustomerID, agent, a.AgentID)
		}
		seen[a.CustomerID] = a.AgentID
	}
	return nil
}

// Lister returns a customer's allotment history.
type Lister interface {
	ListForCustomer(ctx context.Context, customerID int64) ([]Allotment, error)
}

// VerifyCustomers loads each customer's allotments and runs CheckSingleActive
// over them.
func VerifyCustomers(ctx context.Context, lister Lister, customerIDs ...int64) error {
	var all []Allotment
	for _, id := range customerIDs {
		list, err := lister.ListForCustomer(ctx, id)
		if err != nil {
			return err
		}
		all = append(all, list...)
	}
	return CheckSingleActive(all)
}

// Repository reads the allotments table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IsActive reports whether agentID holds the active allotment for customerID.
func (r *Repository) IsActive(ctx context.Context, agentID, customerID int64) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM allotments WHERE agent_id = $1 AND customer_id = $2 AND is_active)`, agentID, customerID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("allotments: check active: %w", err)
	}
	return active, nil
}

// ActiveForCustomer returns the customer's active allotment.
func (r *Repository) ActiveForCustomer(ctx context.Context, customerID int64) (Allotment, error) {
	var a Allotment
	err := r.pool.QueryRow(ctx, `SELECT id, agent_id, customer_id, is_active, created_at
		FROM allotments WHERE customer_id = $1 AND is_active`, customerID).
		Scan(&a.ID, &a.AgentID, &a.CustomerID, &a.IsActive, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allotment{}, ErrNoActive
		}
		return Allotment{}, fmt.Errorf("allotments: active for customer: %w", err)
	}
	return a, nil
}

// ListForCustomer returns every allotment a customer has held, newest first.
func (r *Repository) ListForCustomer(ctx context.Context, customerID int64) ([]Allotment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, agent_id, customer_id, is_active, created_at
		FROM allotments WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("allotments: list: %w", err)
	}
	defer rows.Close()
	var out []Allotment
	for rows.Next() {
		var a Allotment
		if err := rows.Scan(&a.ID, &a.AgentID, &a.CustomerID, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
