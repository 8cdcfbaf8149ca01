// Package deliveries reads the per-day delivery facts captured by runners.
// Records are written by the delivery capture workflow and never mutated here.
package deliveries

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// NewspaperDelivered is one newspaper handed over on a delivery day.
type NewspaperDelivered struct {
	NewspaperID      int64  `json:"newspaperId"`
	Qty              int    `json:"qty"`
	NameSnapshot     string `json:"name,omitempty"`
	LanguageSnapshot string `json:"language,omitempty"`
}

// BookletDelivered is one booklet handed over on a delivery day. The price is
// captured at delivery time.
type BookletDelivered struct {
	BookletID     int64           `json:"bookletId"`
	Qty           int             `json:"qty"`
	PriceSnapshot decimal.Decimal `json:"price"`
	TitleSnapshot string          `json:"title,omitempty"`
}

// Extra records an ad-hoc delivery kept for audit only.
type Extra struct {
	Reason string          `json:"reason"`
	Qty    int             `json:"qty"`
	Price  decimal.Decimal `json:"price"`
}

// Record is an immutable delivery fact for one customer on one day.
type Record struct {
	ID         int64
	CustomerID int64
	AgentID    int64
	RunnerID   int64
	Date       time.Time
	Newspapers []NewspaperDelivered
	Booklets   []BookletDelivered
	Extra      *Extra
	Remarks    *string
	CreatedAt  time.Time
}

// Reader lists delivery records for a customer/agent pair with Date in
// [from, to), ordered by date then id.
type Reader interface {
	ListForPeriod(ctx context.Context, agentID, customerID int64, from, to time.Time) ([]Record, error)
}
