package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/newsline/newsline/internal/allotments"
	"github.com/newsline/newsline/internal/customers"
	"github.com/newsline/newsline/internal/shared"
)

// ServiceDeps wires the collaborators of Service.
type ServiceDeps struct {
	Repo       Repository
	Aggregator *Aggregator
	Allotments allotments.Registry
	Customers  customers.Directory
	Publisher  Publisher
	Audit      AuditRecorder
	Metrics    *Metrics
	Logger     *slog.Logger
	// DBTimeout bounds each storage interaction. Zero leaves the caller's deadline.
	DBTimeout time.Duration
}

// Service implements bill generation and settlement.
type Service struct {
	repo       Repository
	aggregator *Aggregator
	allotments allotments.Registry
	customers  customers.Directory
	publisher  Publisher
	audit      AuditRecorder
	metrics    *Metrics
	logger     *slog.Logger
	dbTimeout  time.Duration
	now        func() time.Time
	previews   singleflight.Group
}

// NewService constructs a billing service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		aggregator: deps.Aggregator,
		allotments: deps.Allotments,
		customers:  deps.Customers,
		publisher:  deps.Publisher,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     logger,
		dbTimeout:  deps.DBTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.dbTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.dbTimeout)
}

// parties fills the agent and customer of q from the caller and checks that
// the caller may act for them.
func (s *Service) parties(ctx context.Context, caller shared.Identity, q PeriodQuery) (PeriodQuery, error) {
	switch caller.Role {
	case shared.RoleAgent:
		if q.AgentID == 0 {
			q.AgentID = caller.UserID
		}
		if q.AgentID != caller.UserID {
			return q, ErrForbidden
		}
	case shared.RoleCustomer:
		if q.CustomerID == 0 {
			q.CustomerID = caller.UserID
		}
		if q.CustomerID != caller.UserID {
			return q, ErrForbidden
		}
		if q.AgentID == 0 {
			allot, err := s.allotments.ActiveForCustomer(ctx, q.CustomerID)
			if errors.Is(err, allotments.ErrNoActive) {
				return q, ErrNotAllotted
			}
			if err != nil {
				return q, err
			}
			q.AgentID = allot.AgentID
		}
	case shared.RoleAdmin:
	default:
		return q, ErrForbidden
	}
	if q.AgentID <= 0 || q.CustomerID <= 0 {
		return q, fmt.Errorf("%w: agentId and customerId are required", ErrInvalidInput)
	}
	return q, nil
}

func (s *Service) requireAllotment(ctx context.Context, agentID, customerID int64) error {
	active, err := s.allotments.IsActive(ctx, agentID, customerID)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotAllotted
	}
	return nil
}

// Preview aggregates the period without persisting anything and reports any
// bill already generated for it. Concurrent identical previews share one run.
func (s *Service) Preview(ctx context.Context, caller shared.Identity, q PeriodQuery) (Preview, error) {
	period, err := NewPeriod(q.Month, q.Year)
	if err != nil {
		return Preview{}, err
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	q, err = s.parties(ctx, caller, q)
	if err != nil {
		return Preview{}, err
	}
	if err := s.requireAllotment(ctx, q.AgentID, q.CustomerID); err != nil {
		return Preview{}, err
	}

	// The shared run outlives any single caller; each caller stops waiting on
	// its own cancellation.
	key := fmt.Sprintf("%d:%d:%d:%d", q.AgentID, q.CustomerID, q.Month, q.Year)
	ch := s.previews.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := s.storageCtx(context.WithoutCancel(ctx))
		defer cancel()
		return s.buildPreview(runCtx, q, period)
	})
	select {
	case <-ctx.Done():
		return Preview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Preview{}, res.Err
		}
		return res.Val.(Preview), nil
	}
}

func (s *Service) buildPreview(ctx context.Context, q PeriodQuery, period Period) (Preview, error) {
	var (
		agg      Aggregation
		existing Bill
		found    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = s.aggregator.Aggregate(gctx, q.AgentID, q.CustomerID, period)
		return err
	})
	g.Go(func() error {
		bill, err := s.repo.FindBillByPeriod(gctx, q.AgentID, q.CustomerID, q.Month, q.Year)
		if errors.Is(err, ErrBillNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing, found = bill, true
		return nil
	})
	if err := g.Wait(); err != nil {
		return Preview{}, err
	}

	preview := Preview{
		Period:     period.Label,
		Items:      agg.Items,
		Summary:    agg.Summary,
		PaidAmount: decimal.Zero,
	}
	if found {
		id := existing.ID
		preview.IsGenerated = true
		preview.BillID = &id
		preview.Status = existing.Status
		preview.PaidAmount = existing.PaidAmount
	}
	return preview, nil
}

// Generate aggregates the period and persists it as a pending bill. A second
// bill for the same period is refused by the storage uniqueness constraint.
func (s *Service) Generate(ctx context.Context, caller shared.Identity, q PeriodQuery) (GenerateResult, error) {
	result, err := s.generate(ctx, caller, q)
	if err != nil {
		if outcome, ok := businessOutcome(err); ok {
			s.metrics.observe("generate", outcome.Reason)
			return GenerateResult{Outcome: outcome}, nil
		}
		s.metrics.observe("generate", err)
		return GenerateResult{}, err
	}
	s.metrics.observe("generate", nil)
	return result, nil
}

func (s *Service) generate(ctx context.Context, caller shared.Identity, q PeriodQuery) (GenerateResult, error) {
	period, err := NewPeriod(q.Month, q.Year)
	if err != nil {
		return GenerateResult{}, err
	}
	if caller.IsCustomer() {
		return GenerateResult{}, ErrForbidden
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	q, err = s.parties(ctx, caller, q)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := s.requireAllotment(ctx, q.AgentID, q.CustomerID); err != nil {
		return GenerateResult{}, err
	}

	if _, err := s.repo.FindBillByPeriod(ctx, q.AgentID, q.CustomerID, q.Month, q.Year); err == nil {
		return GenerateResult{}, ErrAlreadyGenerated
	} else if !errors.Is(err, ErrBillNotFound) {
		return GenerateResult{}, err
	}

	agg, err := s.aggregator.Aggregate(ctx, q.AgentID, q.CustomerID, period)
	if err != nil {
		return GenerateResult{}, err
	}
	if len(agg.Items) == 0 {
		return GenerateResult{}, ErrNoDeliveries
	}

	bill := Bill{
		AgentID:         q.AgentID,
		CustomerID:      q.CustomerID,
		Month:           period.Month,
		Year:            period.Year,
		PeriodLabel:     period.Label,
		Items:           agg.Items,
		TotalAmount:     agg.Summary.TotalAmount,
		TotalDeliveries: agg.Summary.TotalDeliveries,
		Status:          BillPending,
		PaidAmount:      decimal.Zero,
		GeneratedAt:     s.now(),
	}
	bill.Customer, err = s.contactSnapshot(ctx, q.CustomerID)
	if err != nil {
		return GenerateResult{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindBillByPeriod(ctx, q.AgentID, q.CustomerID, q.Month, q.Year); err == nil {
			return ErrAlreadyGenerated
		} else if !errors.Is(err, ErrBillNotFound) {
			return err
		}
		id, err := tx.InsertBill(ctx, bill)
		if err != nil {
			return err
		}
		bill.ID = id
		return nil
	})
	if err != nil {
		return GenerateResult{}, err
	}

	s.metrics.billGenerated(bill.Month)
	s.logger.Info("bill generated", slog.Int64("bill_id", bill.ID), slog.Int64("agent_id", bill.AgentID),
		slog.Int64("customer_id", bill.CustomerID), slog.String("period", bill.PeriodLabel), slog.String("total", bill.TotalAmount.String()))
	s.afterCommit(ctx, caller, "bill.generate", bill.ID, map[string]any{"total": bill.TotalAmount.String(), "period": bill.PeriodLabel},
		func(ctx context.Context) error { return s.publisher.BillGenerated(ctx, bill) })

	total := bill.TotalAmount
	return GenerateResult{
		Outcome:     Outcome{Success: true, Message: "bill generated"},
		BillID:      bill.ID,
		TotalAmount: &total,
		ItemsCount:  len(bill.Items),
	}, nil
}

// contactSnapshot captures the customer's contact details for the bill. An
// unknown customer yields a blank snapshot; storage failures abort generation.
func (s *Service) contactSnapshot(ctx context.Context, customerID int64) (CustomerSnapshot, error) {
	if s.customers == nil {
		return CustomerSnapshot{}, nil
	}
	contact, err := s.customers.Contact(ctx, customerID)
	if errors.Is(err, customers.ErrNotFound) {
		s.logger.Warn("customer contact missing for bill snapshot", slog.Int64("customer_id", customerID))
		return CustomerSnapshot{}, nil
	}
	if err != nil {
		return CustomerSnapshot{}, fmt.Errorf("billing: customer snapshot: %w", err)
	}
	return CustomerSnapshot{Name: contact.Name, Mobile: contact.Mobile, Address: contact.Address}, nil
}

// MarkPaid settles a pending bill directly. Only the owning agent may settle.
// amount defaults to the bill total.
func (s *Service) MarkPaid(ctx context.Context, caller shared.Identity, billID int64, amount *decimal.Decimal) (Outcome, error) {
	if amount != nil && amount.IsNegative() {
		return Outcome{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if !caller.IsAgent() {
		return Outcome{}, ErrForbidden
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	var bill Bill
	err := s.repo.WithLockingTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = tx.LockBill(ctx, billID)
		if err != nil {
			return err
		}
		if bill.AgentID != caller.UserID {
			return ErrForbidden
		}
		if bill.Status == BillPaid {
			return ErrAlreadyPaid
		}
		paid := bill.TotalAmount
		if amount != nil {
			paid = *amount
		}
		at := s.now()
		if err := tx.MarkBillPaid(ctx, billID, paid, at); err != nil {
			return err
		}
		if _, err := tx.CloseBillRequests(ctx, billID, RequestAccepted, at, caller.UserID); err != nil {
			return err
		}
		bill.Status, bill.PaidAmount, bill.PaidAt = BillPaid, paid, &at
		return nil
	})
	outcome, err := s.finish("mark_paid", err)
	if err != nil || !outcome.Success {
		return outcome, err
	}
	s.afterCommit(ctx, caller, "bill.mark_paid", bill.ID, map[string]any{"amount": bill.PaidAmount.String()},
		func(ctx context.Context) error { return s.publisher.BillSettled(ctx, bill) })
	outcome.Message = "bill marked as paid"
	return outcome, nil
}

// ViewBill returns the bill when the caller is its agent, its customer, or an admin.
func (s *Service) ViewBill(ctx context.Context, caller shared.Identity, billID int64) (Bill, error) {
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	bill, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return Bill{}, err
	}
	if !caller.IsAdmin() && !bill.OwnedBy(caller) {
		return Bill{}, ErrForbidden
	}
	return bill, nil
}

// ListBills lists the caller's bills.
func (s *Service) ListBills(ctx context.Context, caller shared.Identity, filter BillFilter) (BillPage, error) {
	switch caller.Role {
	case shared.RoleAgent:
		filter.AgentID = caller.UserID
	case shared.RoleCustomer:
		filter.CustomerID = caller.UserID
	case shared.RoleAdmin:
	default:
		return BillPage{}, ErrForbidden
	}
	if filter.Status != "" && filter.Status != BillPending && filter.Status != BillPaid {
		return BillPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	bills, total, err := s.repo.ListBills(ctx, filter)
	if err != nil {
		return BillPage{}, err
	}
	if bills == nil {
		bills = []Bill{}
	}
	return BillPage{Bills: bills, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// RequestPayment records the customer's request that the agent confirm
// payment of the outstanding amount. At most one request per bill is pending.
func (s *Service) RequestPayment(ctx context.Context, caller shared.Identity, billID int64) (RequestResult, error) {
	if !caller.IsCustomer() {
		return RequestResult{}, ErrForbidden
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	var (
		bill Bill
		req  PaymentRequest
	)
	err := s.repo.WithLockingTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = tx.LockBill(ctx, billID)
		if err != nil {
			return err
		}
		if bill.CustomerID != caller.UserID {
			return ErrForbidden
		}
		if bill.Status != BillPending {
			return ErrBillNotPending
		}
		req = PaymentRequest{
			BillID:      billID,
			CustomerID:  caller.UserID,
			Amount:      bill.Outstanding(),
			Status:      RequestPending,
			RequestedAt: s.now(),
		}
		req.ID, err = tx.InsertRequest(ctx, req)
		return err
	})
	outcome, err := s.finish("request_payment", err)
	if err != nil || !outcome.Success {
		return RequestResult{Outcome: outcome}, err
	}
	s.afterCommit(ctx, caller, "payment_request.create", req.ID, map[string]any{"bill_id": billID, "amount": req.Amount.String()},
		func(ctx context.Context) error { return s.publisher.PaymentRequested(ctx, bill, req) })
	outcome.Message = "payment request sent"
	amount := req.Amount
	return RequestResult{Outcome: outcome, RequestID: req.ID, Amount: &amount}, nil
}

// ResolveRequest applies the owning agent's decision. Accepting marks the bill
// paid with the requested amount; both changes commit together. Rows are
// locked bill first, then request, matching MarkPaid.
func (s *Service) ResolveRequest(ctx context.Context, caller shared.Identity, requestID int64, action ResolveAction) (Outcome, error) {
	if action != ActionAccept && action != ActionReject {
		return Outcome{}, fmt.Errorf("%w: action must be accept or reject", ErrInvalidInput)
	}
	if !caller.IsAgent() {
		return Outcome{}, ErrForbidden
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()

	current, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return Outcome{}, err
	}

	var (
		bill Bill
		req  PaymentRequest
	)
	err = s.repo.WithLockingTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		bill, err = tx.LockBill(ctx, current.BillID)
		if err != nil {
			return err
		}
		if bill.AgentID != caller.UserID {
			return ErrForbidden
		}
		req, err = tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return ErrAlreadyResolved
		}
		at := s.now()
		switch action {
		case ActionAccept:
			if bill.Status != BillPending {
				return ErrAlreadyPaid
			}
			if err := tx.MarkBillPaid(ctx, bill.ID, req.Amount, at); err != nil {
				return err
			}
			if err := tx.ResolveRequest(ctx, req.ID, RequestAccepted, at, caller.UserID); err != nil {
				return err
			}
			bill.Status, bill.PaidAmount, bill.PaidAt = BillPaid, req.Amount, &at
			req.Status = RequestAccepted
		case ActionReject:
			if err := tx.ResolveRequest(ctx, req.ID, RequestRejected, at, caller.UserID); err != nil {
				return err
			}
			req.Status = RequestRejected
		}
		by := caller.UserID
		req.ResolvedAt, req.ResolvedBy = &at, &by
		return nil
	})
	outcome, err := s.finish("resolve_request", err)
	if err != nil || !outcome.Success {
		return outcome, err
	}
	s.metrics.requestResolved(action)
	s.afterCommit(ctx, caller, "payment_request."+string(action), req.ID, map[string]any{"bill_id": bill.ID, "amount": req.Amount.String()},
		func(ctx context.Context) error { return s.publisher.PaymentResolved(ctx, bill, req, action) })
	if action == ActionAccept {
		outcome.Message = "payment accepted, bill marked as paid"
	} else {
		outcome.Message = "payment request rejected"
	}
	return outcome, nil
}

// ListRequests lists payment requests on the caller's bills.
func (s *Service) ListRequests(ctx context.Context, caller shared.Identity, status RequestStatus) ([]PaymentRequest, error) {
	filter := RequestFilter{Status: status}
	switch caller.Role {
	case shared.RoleAgent:
		filter.AgentID = caller.UserID
	case shared.RoleCustomer:
		filter.CustomerID = caller.UserID
	case shared.RoleAdmin:
	default:
		return nil, ErrForbidden
	}
	switch status {
	case "", RequestPending, RequestAccepted, RequestRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	ctx, cancel := s.storageCtx(ctx)
	defer cancel()
	out, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []PaymentRequest{}
	}
	return out, nil
}

// finish converts the transaction result into an Outcome and records it.
func (s *Service) finish(op string, err error) (Outcome, error) {
	if err == nil {
		s.metrics.observe(op, nil)
		return Outcome{Success: true}, nil
	}
	if outcome, ok := businessOutcome(err); ok {
		s.metrics.observe(op, outcome.Reason)
		return outcome, nil
	}
	s.metrics.observe(op, err)
	return Outcome{}, err
}

// afterCommit writes the audit entry and publishes the event. Failures are
// logged and never undo the committed change.
func (s *Service) afterCommit(ctx context.Context, caller shared.Identity, action string, entityID int64, meta map[string]any, publish func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	if s.audit != nil {
		entry := shared.AuditLog{
			ActorID:   caller.UserID,
			ActorRole: caller.Role,
			Action:    action,
			Entity:    entityFor(action),
			EntityID:  idString(entityID),
			Meta:      meta,
			At:        s.now(),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("audit billing change", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.publisher != nil && publish != nil {
		if err := publish(ctx); err != nil {
			s.logger.Warn("publish billing event", slog.String("action", action), slog.Any("error", err))
		}
	}
}

func entityFor(action string) string {
	entity, _, _ := strings.Cut(action, ".")
	return entity
}
