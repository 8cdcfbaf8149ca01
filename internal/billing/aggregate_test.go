package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/newsline/newsline/internal/deliveries"
)

func mustPeriod(t *testing.T, month, year int) Period {
	t.Helper()
	p, err := NewPeriod(month, year)
	require.NoError(t, err)
	return p
}

func TestAggregatePricesByWeekdayAndSnapshot(t *testing.T) {
	agg := NewAggregator(&memoryDeliveries{records: scenarioA()}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.NoError(t, err)

	require.Len(t, got.Items, 2)
	paper, ok := got.Items[0].(NewspaperLine)
	require.True(t, ok)
	require.Equal(t, "Paper A", paper.Name)
	require.Equal(t, 2, paper.Qty)
	require.True(t, paper.Amount.Equal(decimal.NewFromInt(11)), paper.Amount.String())

	booklet, ok := got.Items[1].(BookletLine)
	require.True(t, ok)
	require.Equal(t, 2, booklet.Qty)
	require.True(t, booklet.Price.Equal(decimal.NewFromInt(20)), "snapshot price wins over catalog price")
	require.True(t, booklet.Amount.Equal(decimal.NewFromInt(40)))

	require.True(t, got.Summary.TotalAmount.Equal(decimal.NewFromInt(51)), got.Summary.TotalAmount.String())
	require.Equal(t, 3, got.Summary.TotalDeliveries)
	require.Equal(t, "March 2025", got.Period.Label)
}

func TestAggregateSkipsUnknownProductsAndExtras(t *testing.T) {
	records := []deliveries.Record{
		{ID: 1, AgentID: agentID, CustomerID: customerID, Date: day(3),
			Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 99, Qty: 1}, {NewspaperID: 1, Qty: 1}},
			Booklets:   []deliveries.BookletDelivered{{BookletID: 77, Qty: 3, PriceSnapshot: decimal.NewFromInt(10)}},
			Extra:      &deliveries.Extra{Reason: "festival issue", Qty: 1, Price: decimal.NewFromInt(100)},
		},
	}
	agg := NewAggregator(&memoryDeliveries{records: records}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, int64(1), got.Items[0].(NewspaperLine).ID)
	require.True(t, got.Summary.TotalAmount.Equal(decimal.NewFromInt(5)))
}

func TestAggregateMissingWeekdayPriceCountsQuantityAtZero(t *testing.T) {
	// Paper C only has a Monday price; 2025-03-04 is a Tuesday.
	records := []deliveries.Record{
		{ID: 1, AgentID: agentID, CustomerID: customerID, Date: day(4), Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 3, Qty: 2}}},
	}
	agg := NewAggregator(&memoryDeliveries{records: records}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, 2, got.Items[0].Quantity())
	require.True(t, got.Items[0].LineAmount().IsZero())
}

func TestAggregateOrdersByFirstDeliveryThenID(t *testing.T) {
	records := []deliveries.Record{
		{ID: 1, AgentID: agentID, CustomerID: customerID, Date: day(2),
			Booklets: []deliveries.BookletDelivered{{BookletID: 2, Qty: 1, PriceSnapshot: decimal.NewFromInt(20)}}},
		{ID: 2, AgentID: agentID, CustomerID: customerID, Date: day(3),
			Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 3, Qty: 1}, {NewspaperID: 1, Qty: 1}}},
		{ID: 3, AgentID: agentID, CustomerID: customerID, Date: day(10),
			Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 1, Qty: 1}}},
	}
	agg := NewAggregator(&memoryDeliveries{records: records}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	require.Equal(t, KindNewspaper, got.Items[0].Kind())
	require.Equal(t, int64(1), got.Items[0].(NewspaperLine).ID)
	require.Equal(t, int64(3), got.Items[1].(NewspaperLine).ID)
	require.Equal(t, KindBooklet, got.Items[2].Kind())
	require.Equal(t, 2, got.Items[0].Quantity())
}

func TestAggregateEmptyPeriod(t *testing.T) {
	agg := NewAggregator(&memoryDeliveries{records: scenarioA()}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 4, 2025))
	require.NoError(t, err)
	require.Empty(t, got.Items)
	require.True(t, got.Summary.TotalAmount.IsZero())
	require.Zero(t, got.Summary.TotalDeliveries)
}

func TestAggregateIgnoresOtherPairs(t *testing.T) {
	records := append(scenarioA(), deliveries.Record{
		ID: 9, AgentID: agentID, CustomerID: 99, Date: day(3),
		Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 1, Qty: 5}},
	})
	agg := NewAggregator(&memoryDeliveries{records: records}, testCatalog())

	got, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.NoError(t, err)
	require.True(t, got.Summary.TotalAmount.Equal(decimal.NewFromInt(51)))
}

func TestAggregatePropagatesLoadFailure(t *testing.T) {
	boom := errors.New("connection reset")
	agg := NewAggregator(&memoryDeliveries{err: boom}, testCatalog())

	_, err := agg.Aggregate(context.Background(), agentID, customerID, mustPeriod(t, 3, 2025))
	require.ErrorIs(t, err, boom)
}

func BenchmarkAggregateMonth(b *testing.B) {
	var records []deliveries.Record
	for d := 1; d <= 31; d++ {
		records = append(records, deliveries.Record{
			ID: int64(d), AgentID: agentID, CustomerID: customerID, Date: day(d),
			Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 1, Qty: 1}, {NewspaperID: 3, Qty: 1}},
			Booklets:   []deliveries.BookletDelivered{{BookletID: 2, Qty: 1, PriceSnapshot: decimal.NewFromInt(20)}},
		})
	}
	agg := NewAggregator(&memoryDeliveries{records: records}, testCatalog())
	period, err := NewPeriod(3, 2025)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := agg.Aggregate(ctx, agentID, customerID, period); err != nil {
			b.Fatal(err)
		}
	}
}
