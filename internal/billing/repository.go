package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/newsline/newsline/internal/platform/db"
	"github.com/newsline/newsline/internal/shared"
)

const constraintBillPeriod = "uq_generated_bills_period"
const constraintPendingRequest = "uq_payment_requests_pending"

// Repository is the billing persistence contract.
type Repository interface {
	// WithTx runs fn in a repeatable-read transaction.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// WithLockingTx runs fn in a read-committed transaction whose Lock* calls
	// take row locks that serialise competing writers.
	WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	FindBillByPeriod(ctx context.Context, agentID, customerID int64, month, year int) (Bill, error)
	GetBill(ctx context.Context, id int64) (Bill, error)
	GetRequest(ctx context.Context, id int64) (PaymentRequest, error)
	ListBills(ctx context.Context, filter BillFilter) ([]Bill, int, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]PaymentRequest, error)
}

// TxRepository exposes operations that run inside a transaction.
type TxRepository interface {
	FindBillByPeriod(ctx context.Context, agentID, customerID int64, month, year int) (Bill, error)
	InsertBill(ctx context.Context, bill Bill) (int64, error)
	LockBill(ctx context.Context, id int64) (Bill, error)
	MarkBillPaid(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error
	LockRequest(ctx context.Context, id int64) (PaymentRequest, error)
	InsertRequest(ctx context.Context, req PaymentRequest) (int64, error)
	ResolveRequest(ctx context.Context, id int64, status RequestStatus, at time.Time, by int64) error
	CloseBillRequests(ctx context.Context, billID int64, status RequestStatus, at time.Time, by int64) (int64, error)
}

// PgRepository implements Repository on PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

// WithTx implements Repository.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

// WithLockingTx implements Repository.
func (r *PgRepository) WithLockingTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

const billColumns = `id, agent_id, customer_id, month, year, period_label, items, total_amount::text,
	total_deliveries, status, paid_amount::text, paid_at, generated_at,
	customer_name, customer_mobile, customer_address`

const requestColumns = `id, bill_id, customer_id, amount::text, status, requested_at, resolved_at, resolved_by`

func scanBill(row pgx.Row) (Bill, error) {
	var (
		b           Bill
		items       []byte
		total, paid string
		status      string
	)
	if err := row.Scan(&b.ID, &b.AgentID, &b.CustomerID, &b.Month, &b.Year, &b.PeriodLabel, &items, &total,
		&b.TotalDeliveries, &status, &paid, &b.PaidAt, &b.GeneratedAt,
		&b.Customer.Name, &b.Customer.Mobile, &b.Customer.Address); err != nil {
		return Bill{}, err
	}
	b.Status = BillStatus(status)
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return Bill{}, fmt.Errorf("billing: decode items of bill %d: %w", b.ID, err)
	}
	var err error
	if b.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return Bill{}, err
	}
	if b.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return Bill{}, err
	}
	return b, nil
}

func scanRequest(row pgx.Row) (PaymentRequest, error) {
	var (
		req    PaymentRequest
		amount string
		status string
	)
	if err := row.Scan(&req.ID, &req.BillID, &req.CustomerID, &amount, &status, &req.RequestedAt, &req.ResolvedAt, &req.ResolvedBy); err != nil {
		return PaymentRequest{}, err
	}
	req.Status = RequestStatus(status)
	var err error
	if req.Amount, err = decimal.NewFromString(amount); err != nil {
		return PaymentRequest{}, err
	}
	return req, nil
}

func notFound(err, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findBillByPeriod(ctx context.Context, q querier, agentID, customerID int64, month, year int) (Bill, error) {
	bill, err := scanBill(q.QueryRow(ctx, `SELECT `+billColumns+` FROM generated_bills
		WHERE agent_id = $1 AND customer_id = $2 AND month = $3 AND year = $4`, agentID, customerID, month, year))
	return bill, notFound(err, ErrBillNotFound)
}

// FindBillByPeriod implements Repository.
func (r *PgRepository) FindBillByPeriod(ctx context.Context, agentID, customerID int64, month, year int) (Bill, error) {
	return findBillByPeriod(ctx, r.pool, agentID, customerID, month, year)
}

// GetBill implements Repository.
func (r *PgRepository) GetBill(ctx context.Context, id int64) (Bill, error) {
	bill, err := scanBill(r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM generated_bills WHERE id = $1`, id))
	return bill, notFound(err, ErrBillNotFound)
}

// GetRequest implements Repository.
func (r *PgRepository) GetRequest(ctx context.Context, id int64) (PaymentRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id))
	return req, notFound(err, ErrRequestNotFound)
}

// ListBills implements Repository.
func (r *PgRepository) ListBills(ctx context.Context, filter BillFilter) ([]Bill, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.AgentID > 0 {
		add("agent_id = $%d", filter.AgentID)
	}
	if filter.CustomerID > 0 {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Year > 0 {
		add("year = $%d", filter.Year)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM generated_bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count bills: %w", err)
	}

	limit, offset := shared.PageWindow(filter.Page, filter.PerPage)
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM generated_bills%s
		ORDER BY year DESC, month DESC, id DESC LIMIT $%d OFFSET $%d`, billColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("billing: list bills: %w", err)
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
	}
	return bills, total, rows.Err()
}

// ListRequests implements Repository.
func (r *PgRepository) ListRequests(ctx context.Context, filter RequestFilter) ([]PaymentRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.AgentID > 0 {
		add("b.agent_id = $%d", filter.AgentID)
	}
	if filter.CustomerID > 0 {
		add("pr.customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("pr.status = $%d", string(filter.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := r.pool.Query(ctx, `SELECT pr.id, pr.bill_id, pr.customer_id, pr.amount::text, pr.status,
		pr.requested_at, pr.resolved_at, pr.resolved_by
		FROM payment_requests pr JOIN generated_bills b ON b.id = pr.bill_id`+where+`
		ORDER BY pr.requested_at DESC, pr.id DESC LIMIT 200`, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list requests: %w", err)
	}
	defer rows.Close()
	var out []PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (t *pgTx) FindBillByPeriod(ctx context.Context, agentID, customerID int64, month, year int) (Bill, error) {
	return findBillByPeriod(ctx, t.tx, agentID, customerID, month, year)
}

func (t *pgTx) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	items, err := json.Marshal(bill.Items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `INSERT INTO generated_bills
		(agent_id, customer_id, month, year, period_label, items, total_amount, total_deliveries,
		 status, paid_amount, generated_at, customer_name, customer_mobile, customer_address)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::numeric, $8, $9, $10::numeric, $11, $12, $13, $14)
		RETURNING id`,
		bill.AgentID, bill.CustomerID, bill.Month, bill.Year, bill.PeriodLabel, string(items),
		bill.TotalAmount.String(), bill.TotalDeliveries, string(bill.Status), bill.PaidAmount.String(),
		bill.GeneratedAt, bill.Customer.Name, bill.Customer.Mobile, bill.Customer.Address,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, constraintBillPeriod) {
			return 0, ErrAlreadyGenerated
		}
		return 0, fmt.Errorf("billing: insert bill: %w", err)
	}
	return id, nil
}

func (t *pgTx) LockBill(ctx context.Context, id int64) (Bill, error) {
	bill, err := scanBill(t.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM generated_bills WHERE id = $1 FOR UPDATE`, id))
	return bill, notFound(err, ErrBillNotFound)
}

func (t *pgTx) MarkBillPaid(ctx context.Context, id int64, amount decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE generated_bills SET status = $2, paid_amount = $3::numeric, paid_at = $4
		WHERE id = $1 AND status = $5`, id, string(BillPaid), amount.String(), at, string(BillPending))
	if err != nil {
		return fmt.Errorf("billing: mark bill paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

func (t *pgTx) LockRequest(ctx context.Context, id int64) (PaymentRequest, error) {
	req, err := scanRequest(t.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE id = $1 FOR UPDATE`, id))
	return req, notFound(err, ErrRequestNotFound)
}

func (t *pgTx) InsertRequest(ctx context.Context, req PaymentRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_requests (bill_id, customer_id, amount, status, requested_at)
		VALUES ($1, $2, $3::numeric, $4, $5) RETURNING id`,
		req.BillID, req.CustomerID, req.Amount.String(), string(req.Status), req.RequestedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, constraintPendingRequest) {
			return 0, ErrRequestPending
		}
		return 0, fmt.Errorf("billing: insert payment request: %w", err)
	}
	return id, nil
}

func (t *pgTx) ResolveRequest(ctx context.Context, id int64, status RequestStatus, at time.Time, by int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_requests SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = $5`, id, string(status), at, by, string(RequestPending))
	if err != nil {
		return fmt.Errorf("billing: resolve payment request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (t *pgTx) CloseBillRequests(ctx context.Context, billID int64, status RequestStatus, at time.Time, by int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_requests SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE bill_id = $1 AND status = $5`, billID, string(status), at, by, string(RequestPending))
	if err != nil {
		return 0, fmt.Errorf("billing: close bill requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
