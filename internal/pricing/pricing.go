// Package pricing resolves unit prices for delivered items.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/deliveries"
)

var dayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayKey maps a date to the weekday key of a newspaper price schedule.
func DayKey(date time.Time) string {
	return dayKeys[date.Weekday()]
}

// DayKeys lists every schedule key, Sunday first.
func DayKeys() []string {
	out := make([]string, len(dayKeys))
	copy(out, dayKeys[:])
	return out
}

// PriceOn returns the newspaper's price for the weekday of date.
func PriceOn(n catalog.Newspaper, date time.Time) (decimal.Decimal, bool) {
	price, ok := n.Prices[DayKey(date)]
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}

// Resolver prices deliveries. Newspapers are priced against the current
// catalog; booklets use the price captured on the delivery record.
type Resolver struct {
	catalog catalog.Reader
}

// NewResolver constructs a resolver over the catalog reader.
func NewResolver(reader catalog.Reader) *Resolver {
	return &Resolver{catalog: reader}
}

// NewspaperPrice returns the unit price for the newspaper on date. A missing
// newspaper or weekday entry yields zero with found=false rather than an error.
func (r *Resolver) NewspaperPrice(ctx context.Context, newspaperID int64, date time.Time) (decimal.Decimal, bool, error) {
	n, err := r.catalog.Newspaper(ctx, newspaperID)
	if errors.Is(err, catalog.ErrNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	price, ok := PriceOn(n, date)
	return price, ok, nil
}

// BookletPrice returns the price captured at delivery time.
func (r *Resolver) BookletPrice(item deliveries.BookletDelivered) decimal.Decimal {
	return item.PriceSnapshot
}
