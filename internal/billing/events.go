package billing

import (
	"context"
	"strconv"

	"github.com/newsline/newsline/internal/shared"
	"github.com/newsline/newsline/jobs"
)

// Publisher announces committed billing changes to interested parties.
type Publisher interface {
	BillGenerated(ctx context.Context, bill Bill) error
	PaymentRequested(ctx context.Context, bill Bill, req PaymentRequest) error
	PaymentResolved(ctx context.Context, bill Bill, req PaymentRequest, action ResolveAction) error
	BillSettled(ctx context.Context, bill Bill) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// Enqueuer is the subset of the jobs client used to publish events.
type Enqueuer interface {
	EnqueueBillingEvent(ctx context.Context, payload jobs.BillingEventPayload) error
}

// TaskPublisher publishes billing events as background notification tasks.
type TaskPublisher struct {
	client Enqueuer
}

// NewTaskPublisher wraps a jobs client.
func NewTaskPublisher(client Enqueuer) *TaskPublisher {
	return &TaskPublisher{client: client}
}

func eventFor(kind string, bill Bill) jobs.BillingEventPayload {
	return jobs.BillingEventPayload{
		Kind:        kind,
		BillID:      bill.ID,
		AgentID:     bill.AgentID,
		CustomerID:  bill.CustomerID,
		Period:      bill.PeriodLabel,
		TotalAmount: bill.TotalAmount.String(),
	}
}

// BillGenerated implements Publisher.
func (p *TaskPublisher) BillGenerated(ctx context.Context, bill Bill) error {
	return p.client.EnqueueBillingEvent(ctx, eventFor(jobs.TaskBillGenerated, bill))
}

// PaymentRequested implements Publisher.
func (p *TaskPublisher) PaymentRequested(ctx context.Context, bill Bill, req PaymentRequest) error {
	payload := eventFor(jobs.TaskPaymentRequested, bill)
	payload.RequestID = req.ID
	payload.Amount = req.Amount.String()
	return p.client.EnqueueBillingEvent(ctx, payload)
}

// PaymentResolved implements Publisher.
func (p *TaskPublisher) PaymentResolved(ctx context.Context, bill Bill, req PaymentRequest, action ResolveAction) error {
	payload := eventFor(jobs.TaskPaymentResolved, bill)
	payload.RequestID = req.ID
	payload.Amount = req.Amount.String()
	payload.Action = string(action)
	return p.client.EnqueueBillingEvent(ctx, payload)
}

// BillSettled implements Publisher.
func (p *TaskPublisher) BillSettled(ctx context.Context, bill Bill) error {
	payload := eventFor(jobs.TaskBillSettled, bill)
	payload.Amount = bill.PaidAmount.String()
	return p.client.EnqueueBillingEvent(ctx, payload)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
