package billing

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/allotments"
	"github.com/newsline/newsline/internal/catalog"
	"github.com/newsline/newsline/internal/customers"
	"github.com/newsline/newsline/internal/deliveries"
	"github.com/newsline/newsline/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	bills    map[int64]Bill
	requests map[int64]PaymentRequest
	nextBill int64
	nextReq  int64
	findErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{bills: map[int64]Bill{}, requests: map[int64]PaymentRequest{}}
}

func (m *memoryRepo) run(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bills := make(map[int64]Bill, len(m.bills))
	for k, v := range m.bills {
		bills[k] = v
	}
	requests := make(map[int64]PaymentRequest, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	nextBill, nextReq := m.nextBill, m.nextReq
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.bills, m.requests, m.nextBill, m.nextReq = bills, requests, nextBill, nextReq
		return err
	}
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.run(ctx, fn)
}

func (m *memoryRepo) WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.run(ctx, fn)
}

func (m *memoryRepo) findByPeriod(agentID, customerID int64, month, year int) (Bill, error) {
	for _, b := range m.bills {
		if b.AgentID == agentID && b.CustomerID == customerID && b.Month == month && b.Year == year {
			return b, nil
		}
	}
	return Bill{}, ErrBillNotFound
}

func (m *memoryRepo) FindBillByPeriod(_ context.Context, agentID, customerID int64, month, year int) (Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Bill{}, m.findErr
	}
	return m.findByPeriod(agentID, customerID, month, year)
}

func (m *memoryRepo) GetBill(_ context.Context, id int64) (Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return b, nil
}

func (m *memoryRepo) GetRequest(_ context.Context, id int64) (PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return PaymentRequest{}, ErrRequestNotFound
	}
	return r, nil
}

func (m *memoryRepo) ListBills(_ context.Context, filter BillFilter) ([]Bill, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Bill
	for id := int64(1); id <= m.nextBill; id++ {
		b, ok := m.bills[id]
		if !ok {
			continue
		}
		if (filter.AgentID > 0 && b.AgentID != filter.AgentID) ||
			(filter.CustomerID > 0 && b.CustomerID != filter.CustomerID) ||
			(filter.Status != "" && b.Status != filter.Status) ||
			(filter.Year > 0 && b.Year != filter.Year) {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListRequests(_ context.Context, filter RequestFilter) ([]PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PaymentRequest
	for id := int64(1); id <= m.nextReq; id++ {
		r, ok := m.requests[id]
		if !ok {
			continue
		}
		bill := m.bills[r.BillID]
		if (filter.AgentID > 0 && bill.AgentID != filter.AgentID) ||
			(filter.CustomerID > 0 && r.CustomerID != filter.CustomerID) ||
			(filter.Status != "" && r.Status != filter.Status) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRepo) pendingRequests(billID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.BillID == billID && r.Status == RequestPending {
			n++
		}
	}
	return n
}

// memoryTx runs with memoryRepo.mu held.
type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) FindBillByPeriod(_ context.Context, agentID, customerID int64, month, year int) (Bill, error) {
	return t.repo.findByPeriod(agentID, customerID, month, year)
}

func (t *memoryTx) InsertBill(_ context.Context, bill Bill) (int64, error) {
	if _, err := t.repo.findByPeriod(bill.AgentID, bill.CustomerID, bill.Month, bill.Year); err == nil {
		return 0, ErrAlreadyGenerated
	}
	t.repo.nextBill++
	bill.ID = t.repo.nextBill
	t.repo.bills[bill.ID] = bill
	return bill.ID, nil
}

func (t *memoryTx) LockBill(_ context.Context, id int64) (Bill, error) {
	b, ok := t.repo.bills[id]
	if !ok {
		return Bill{}, ErrBillNotFound
	}
	return b, nil
}

func (t *memoryTx) MarkBillPaid(_ context.Context, id int64, amount decimal.Decimal, at time.Time) error {
	b, ok := t.repo.bills[id]
	if !ok || b.Status != BillPending {
		return ErrAlreadyPaid
	}
	b.Status, b.PaidAmount, b.PaidAt = BillPaid, amount, &at
	t.repo.bills[id] = b
	return nil
}

func (t *memoryTx) LockRequest(_ context.Context, id int64) (PaymentRequest, error) {
	r, ok := t.repo.requests[id]
	if !ok {
		return PaymentRequest{}, ErrRequestNotFound
	}
	return r, nil
}

func (t *memoryTx) InsertRequest(_ context.Context, req PaymentRequest) (int64, error) {
	for _, r := range t.repo.requests {
		if r.BillID == req.BillID && r.Status == RequestPending {
			return 0, ErrRequestPending
		}
	}
	t.repo.nextReq++
	req.ID = t.repo.nextReq
	t.repo.requests[req.ID] = req
	return req.ID, nil
}

func (t *memoryTx) ResolveRequest(_ context.Context, id int64, status RequestStatus, at time.Time, by int64) error {
	r, ok := t.repo.requests[id]
	if !ok || r.Status != RequestPending {
		return ErrAlreadyResolved
	}
	r.Status, r.ResolvedAt, r.ResolvedBy = status, &at, &by
	t.repo.requests[id] = r
	return nil
}

func (t *memoryTx) CloseBillRequests(ctx context.Context, billID int64, status RequestStatus, at time.Time, by int64) (int64, error) {
	var n int64
	for id, r := range t.repo.requests {
		if r.BillID == billID && r.Status == RequestPending {
			if err := t.ResolveRequest(ctx, id, status, at, by); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

type memoryDeliveries struct {
	mu      sync.Mutex
	records []deliveries.Record
	calls   int
	err     error

	// When set, loads announce themselves on entered and block until release
	// is closed.
	entered chan struct{}
	release chan struct{}
}

func (d *memoryDeliveries) ListForPeriod(ctx context.Context, agentID, customerID int64, from, to time.Time) ([]deliveries.Record, error) {
	if d.release != nil {
		select {
		case d.entered <- struct{}{}:
		default:
		}
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	var out []deliveries.Record
	for _, r := range d.records {
		if r.AgentID == agentID && r.CustomerID == customerID && !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memoryCatalog struct {
	newspapers map[int64]catalog.Newspaper
	booklets   map[int64]catalog.Booklet
}

func (c memoryCatalog) Newspaper(_ context.Context, id int64) (catalog.Newspaper, error) {
	n, ok := c.newspapers[id]
	if !ok {
		return catalog.Newspaper{}, catalog.ErrNotFound
	}
	return n, nil
}

func (c memoryCatalog) Booklet(_ context.Context, id int64) (catalog.Booklet, error) {
	b, ok := c.booklets[id]
	if !ok {
		return catalog.Booklet{}, catalog.ErrNotFound
	}
	return b, nil
}

type memoryAllotments struct {
	active map[[2]int64]bool
}

func (a memoryAllotments) IsActive(_ context.Context, agentID, customerID int64) (bool, error) {
	return a.active[[2]int64{agentID, customerID}], nil
}

func (a memoryAllotments) ActiveForCustomer(_ context.Context, customerID int64) (allotments.Allotment, error) {
	for k, v := range a.active {
		if v && k[1] == customerID {
			return allotments.Allotment{AgentID: k[0], CustomerID: customerID, IsActive: true}, nil
		}
	}
	return allotments.Allotment{}, allotments.ErrNoActive
}

type memoryContacts map[int64]customers.Contact

func (c memoryContacts) Contact(_ context.Context, id int64) (customers.Contact, error) {
	contact, ok := c[id]
	if !ok {
		return customers.Contact{}, customers.ErrNotFound
	}
	return contact, nil
}

type failingContacts struct{ err error }

func (c failingContacts) Contact(context.Context, int64) (customers.Contact, error) {
	return customers.Contact{}, c.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) add(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind)
	return nil
}

func (p *recordingPublisher) BillGenerated(context.Context, Bill) error { return p.add("generated") }
func (p *recordingPublisher) PaymentRequested(context.Context, Bill, PaymentRequest) error {
	return p.add("requested")
}
func (p *recordingPublisher) PaymentResolved(_ context.Context, _ Bill, _ PaymentRequest, action ResolveAction) error {
	return p.add("resolved:" + string(action))
}
func (p *recordingPublisher) BillSettled(context.Context, Bill) error { return p.add("settled") }

type recordingAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, entry shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}
