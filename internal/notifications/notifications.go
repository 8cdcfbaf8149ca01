// Package notifications stores in-app messages produced by billing events.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsline/newsline/internal/shared"
)

// ErrNotFound indicates an unknown or foreign notification.
var ErrNotFound = errors.New("notifications: not found")

// Notification is one inbox entry for a user.
type Notification struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"userId"`
	Role      shared.Role `json:"role"`
	Kind      string      `json:"kind"`
	BillID    int64       `json:"billId"`
	Message   string      `json:"message"`
	DedupeKey string      `json:"-"`
	CreatedAt time.Time   `json:"createdAt"`
	ReadAt    *time.Time  `json:"readAt,omitempty"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n Notification) (bool, error)
	ListForUser(ctx context.Context, userID int64, role shared.Role, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID int64, at time.Time) error
	PurgeRead(ctx context.Context, before time.Time) (int64, error)
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts n unless a notification with the same dedupe key exists. It
// reports whether a row was written.
func (r *Repository) Create(ctx context.Context, n Notification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO notifications (user_id, role, kind, bill_id, message, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (dedupe_key) DO NOTHING`,
		n.UserID, string(n.Role), n.Kind, n.BillID, n.Message, n.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("notifications: create: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListForUser returns the newest notifications addressed to the user in role.
func (r *Repository) ListForUser(ctx context.Context, userID int64, role shared.Role, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, role, kind, bill_id, message, created_at, read_at
		FROM notifications
		WHERE user_id = $1 AND role = $2 AND ($3 = false OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC LIMIT $4`, userID, string(role), unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("notifications: list: %w", err)
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var (
			n    Notification
			role string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &role, &n.Kind, &n.BillID, &n.Message, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.Role = shared.Role(role)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks the user's notification as read.
func (r *Repository) MarkRead(ctx context.Context, id, userID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return fmt.Errorf("notifications: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeRead deletes notifications read before the cutoff.
func (r *Repository) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE read_at IS NOT NULL AND read_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("notifications: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
