package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/deliveries"
	"github.com/newsline/newsline/internal/pricing"
)

// Aggregator folds a period of delivery records into priced line items.
type Aggregator struct {
	deliveries deliveries.Reader
	catalog    catalog.Reader
}

// NewAggregator constructs an aggregator.
func NewAggregator(records deliveries.Reader, products catalog.Reader) *Aggregator {
	return &Aggregator{deliveries: records, catalog: products}
}

type bucket struct {
	firstSeen time.Time
	id        int64
	line      LineItem
}

// Aggregate prices every delivery between the agent and customer in period.
// Products missing from the catalog are skipped and extra deliveries are never
// billed. An empty period yields no items and a zero total.
func (a *Aggregator) Aggregate(ctx context.Context, agentID, customerID int64, period Period) (Aggregation, error) {
	records, err := a.deliveries.ListForPeriod(ctx, agentID, customerID, period.Start, period.End)
	if err != nil {
		return Aggregation{}, fmt.Errorf("billing: load deliveries: %w", err)
	}

	products := catalog.NewMemo(a.catalog)
	resolver := pricing.NewResolver(products)
	newspapers := map[int64]*bucket{}
	booklets := map[int64]*bucket{}

	for _, rec := range records {
		for _, item := range rec.Newspapers {
			if item.Qty <= 0 {
				continue
			}
			paper, err := products.Newspaper(ctx, item.NewspaperID)
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			if err != nil {
				return Aggregation{}, fmt.Errorf("billing: load newspaper %d: %w", item.NewspaperID, err)
			}
			price, _, err := resolver.NewspaperPrice(ctx, item.NewspaperID, rec.Date)
			if err != nil {
				return Aggregation{}, fmt.Errorf("billing: price newspaper %d: %w", item.NewspaperID, err)
			}
			b, ok := newspapers[item.NewspaperID]
			if !ok {
				b = &bucket{firstSeen: rec.Date, id: item.NewspaperID, line: NewspaperLine{
					ID:       item.NewspaperID,
					Name:     firstNonEmpty(paper.Name, item.NameSnapshot),
					Language: firstNonEmpty(paper.Language, item.LanguageSnapshot),
					Amount:   decimal.Zero,
				}}
				newspapers[item.NewspaperID] = b
			}
			line := b.line.(NewspaperLine)
			line.Qty += item.Qty
			line.Amount = line.Amount.Add(price.Mul(decimal.NewFromInt(int64(item.Qty))))
			b.line = line
		}

		for _, item := range rec.Booklets {
			if item.Qty <= 0 {
				continue
			}
			booklet, err := products.Booklet(ctx, item.BookletID)
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			if err != nil {
				return Aggregation{}, fmt.Errorf("billing: load booklet %d: %w", item.BookletID, err)
			}
			price := resolver.BookletPrice(item)
			b, ok := booklets[item.BookletID]
			if !ok {
				b = &bucket{firstSeen: rec.Date, id: item.BookletID, line: BookletLine{
					ID:     item.BookletID,
					Title:  firstNonEmpty(booklet.Title, item.TitleSnapshot),
					Amount: decimal.Zero,
				}}
				booklets[item.BookletID] = b
			}
			line := b.line.(BookletLine)
			line.Qty += item.Qty
			line.Price = price
			line.Amount = line.Amount.Add(price.Mul(decimal.NewFromInt(int64(item.Qty))))
			b.line = line
		}
	}

	items := append(ordered(newspapers), ordered(booklets)...)
	return Aggregation{
		Period: period,
		Items:  items,
		Summary: Summary{
			TotalAmount:     items.Total(),
			TotalDeliveries: len(records),
		},
	}, nil
}

func ordered(buckets map[int64]*bucket) LineItems {
	list := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].firstSeen.Equal(list[j].firstSeen) {
			return list[i].firstSeen.Before(list[j].firstSeen)
		}
		return list[i].id < list[j].id
	})
	items := make(LineItems, 0, len(list))
	for _, b := range list {
		items = append(items, b.line)
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
