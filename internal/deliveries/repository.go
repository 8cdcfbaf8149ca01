package deliveries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads delivery_records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListForPeriod implements Reader.
func (r *Repository) ListForPeriod(ctx context.Context, agentID, customerID int64, from, to time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, agent_id, runner_id, delivery_date, newspapers, booklets, extra, remarks, created_at
		FROM delivery_records
		WHERE agent_id = $1 AND customer_id = $2 AND delivery_date >= $3 AND delivery_date < $4
		ORDER BY delivery_date, id`, agentID, customerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("deliveries: list period: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                       Record
			newspapers, booklets, ext []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.AgentID, &rec.RunnerID, &rec.Date,
			&newspapers, &booklets, &ext, &rec.Remarks, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeItems(newspapers, &rec.Newspapers); err != nil {
			return nil, fmt.Errorf("deliveries: record %d newspapers: %w", rec.ID, err)
		}
		if err := decodeItems(booklets, &rec.Booklets); err != nil {
			return nil, fmt.Errorf("deliveries: record %d booklets: %w", rec.ID, err)
		}
		if len(ext) > 0 && string(ext) != "null" {
			rec.Extra = &Extra{}
			if err := json.Unmarshal(ext, rec.Extra); err != nil {
				return nil, fmt.Errorf("deliveries: record %d extra: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func decodeItems(raw []byte, dest any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
