package billing

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/deliveries"
	"github.com/newsline/newsline/internal/shared"
)

const (
	agentID    int64 = 10
	customerID int64 = 20
)

var (
	agent    = shared.Identity{UserID: agentID, Role: shared.RoleAgent}
	customer = shared.Identity{UserID: customerID, Role: shared.RoleCustomer}
	march    = PeriodQuery{AgentID: agentID, CustomerID: customerID, Month: 3, Year: 2025}
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func testCatalog() memoryCatalog {
	return memoryCatalog{
		newspapers: map[int64]catalog.Newspaper{
			1: {ID: 1, Name: "Paper A", Language: "English", Prices: map[string]decimal.Decimal{
				"monday": decimal.NewFromInt(5), "tuesday": decimal.NewFromInt(6), "sunday": decimal.RequireFromString("7.50"),
			}},
			3: {ID: 3, Name: "Paper C", Language: "Marathi", Prices: map[string]decimal.Decimal{
				"monday": decimal.NewFromInt(4),
			}},
		},
		booklets: map[int64]catalog.Booklet{
			2: {ID: 2, Title: "Booklet B", Price: decimal.NewFromInt(25)},
		},
	}
}

// scenarioA: Monday paper at 5, Tuesday paper at 6, two booklets at a
// snapshot price of 20.
func scenarioA() []deliveries.Record {
	return []deliveries.Record{
		{ID: 1, AgentID: agentID, CustomerID: customerID, Date: day(3), Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 1, Qty: 1}}},
		{ID: 2, AgentID: agentID, CustomerID: customerID, Date: day(4), Newspapers: []deliveries.NewspaperDelivered{{NewspaperID: 1, Qty: 1}}},
		{ID: 3, AgentID: agentID, CustomerID: customerID, Date: day(5), Booklets: []deliveries.BookletDelivered{{BookletID: 2, Qty: 2, PriceSnapshot: decimal.NewFromInt(20)}}},
	}
}

type fixture struct {
	repo       *memoryRepo
	deliveries *memoryDeliveries
	publisher  *recordingPublisher
	audit      *recordingAudit
	svc        *Service
}

func newFixture(t *testing.T, records []deliveries.Record) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newMemoryRepo(),
		deliveries: &memoryDeliveries{records: records},
		publisher:  &recordingPublisher{},
		audit:      &recordingAudit{},
	}
	f.svc = NewService(ServiceDeps{
		Repo:       f.repo,
		Aggregator: NewAggregator(f.deliveries, testCatalog()),
		Allotments: memoryAllotments{active: map[[2]int64]bool{{agentID, customerID}: true}},
		Customers:  memoryContacts{customerID: {ID: customerID, Name: "Asha Rao", Mobile: "9800000000", Address: "Pune"}},
		Publisher:  f.publisher,
		Audit:      f.audit,
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		DBTimeout:  time.Second,
	})
	f.svc.now = func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) }
	return f
}
