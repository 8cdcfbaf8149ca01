//go:build integration

package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsline/newsline/internal/allotments"
	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/customers"
	"github.com/newsline/newsline/internal/deliveries"
	"github.com/newsline/newsline/internal/platform/db/dbtest"
	"github.com/newsline/newsline/internal/shared"
)

func TestPgBillingLifecycle(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO customers (id, name, mobile, address) VALUES ($1, 'Asha Rao', '9800000000', 'Pune')`, customerID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO allotments (agent_id, customer_id) VALUES ($1, $2)`, agentID, customerID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO newspapers (id, name, language, prices) VALUES
		(1, 'Paper A', 'English', '{"monday":"5","tuesday":"6"}')`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO booklets (id, title, price) VALUES (2, 'Booklet B', 25)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO delivery_records (customer_id, agent_id, runner_id, delivery_date, newspapers, booklets, extra) VALUES
		($1, $2, 7, '2025-03-03', '[{"newspaperId":1,"qty":1}]', '[]', NULL),
		($1, $2, 7, '2025-03-04', '[{"newspaperId":1,"qty":1}]', '[]', '{"reason":"festival","qty":1,"price":"100"}'),
		($1, $2, 7, '2025-03-05', '[]', '[{"bookletId":2,"qty":2,"price":"20"}]', NULL)`, customerID, agentID)
	require.NoError(t, err)

	repo := NewRepository(pool)
	svc := NewService(ServiceDeps{
		Repo:       repo,
		Aggregator: NewAggregator(deliveries.NewRepository(pool), catalog.NewRepository(pool)),
		Allotments: allotments.NewRepository(pool),
		Customers:  customers.NewRepository(pool),
		Audit:      shared.NewAuditLogger(pool),
		Metrics:    NewMetrics(prometheus.NewRegistry()),
		DBTimeout:  5 * time.Second,
	})

	const workers = 6
	results := make([]GenerateResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Generate(ctx, agent, march)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var billID int64
	wins := 0
	for _, res := range results {
		if res.Success {
			wins++
			billID = res.BillID
			continue
		}
		assert.Contains(t, []error{ErrAlreadyGenerated, ErrConcurrentUpdate}, res.Reason)
	}
	require.Equal(t, 1, wins)

	bill, err := repo.GetBill(ctx, billID)
	require.NoError(t, err)
	assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(51)), bill.TotalAmount.String())
	assert.Equal(t, 3, bill.TotalDeliveries)
	assert.Equal(t, "Asha Rao", bill.Customer.Name)
	require.Len(t, bill.Items, 2)
	assert.Equal(t, KindNewspaper, bill.Items[0].Kind())

	req, err := svc.RequestPayment(ctx, customer, billID)
	require.NoError(t, err)
	require.True(t, req.Success)

	err = repo.WithLockingTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertRequest(ctx, PaymentRequest{BillID: billID, CustomerID: customerID, Amount: decimal.NewFromInt(1), Status: RequestPending, RequestedAt: time.Now()})
		return err
	})
	require.ErrorIs(t, err, ErrRequestPending)

	outcomes := make([]Outcome, 2)
	for i, action := range []ResolveAction{ActionAccept, ActionReject} {
		wg.Add(1)
		go func(i int, action ResolveAction) {
			defer wg.Done()
			out, err := svc.ResolveRequest(ctx, agent, req.RequestID, action)
			assert.NoError(t, err)
			outcomes[i] = out
		}(i, action)
	}
	wg.Wait()
	require.NotEqual(t, outcomes[0].Success, outcomes[1].Success)

	pending, err := repo.ListRequests(ctx, RequestFilter{AgentID: agentID, Status: RequestPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	page, err := svc.ListBills(ctx, customer, BillFilter{Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Total)

	var audits int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE entity = 'bill'`).Scan(&audits))
	assert.Equal(t, 1, audits)
}

func TestPgInsertBillMapsPeriodConstraint(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	bill := Bill{AgentID: agentID, CustomerID: customerID, Month: 3, Year: 2025, PeriodLabel: "March 2025",
		Items: LineItems{}, TotalAmount: decimal.NewFromInt(10), Status: BillPending, PaidAmount: decimal.Zero,
		GeneratedAt: time.Now().UTC()}
	insert := func() error {
		return repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.InsertBill(ctx, bill)
			return err
		})
	}
	require.NoError(t, insert())
	require.ErrorIs(t, insert(), ErrAlreadyGenerated)

	found, err := repo.FindBillByPeriod(ctx, agentID, customerID, 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, BillPending, found.Status)

	_, err = repo.FindBillByPeriod(ctx, agentID, customerID, 4, 2025)
	require.ErrorIs(t, err, ErrBillNotFound)
}
