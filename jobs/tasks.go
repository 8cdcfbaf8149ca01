package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskBillGenerated    = "billing:bill_generated"
	TaskPaymentRequested = "billing:payment_requested"
	TaskPaymentResolved  = "billing:payment_resolved"
	TaskBillSettled      = "billing:bill_settled"

	// TaskPurgeNotifications removes read notifications past retention.
	TaskPurgeNotifications = "notifications:purge"
)

var taskNamespace = uuid.MustParse("6f1d7a8e-3c2b-5d4e-9f10-2a3b4c5d6e7f")

// BillingEventPayload describes a committed billing change.
type BillingEventPayload struct {
	Kind        string `json:"kind"`
	BillID      int64  `json:"billId"`
	AgentID     int64  `json:"agentId"`
	CustomerID  int64  `json:"customerId"`
	RequestID   int64  `json:"requestId,omitempty"`
	Period      string `json:"period"`
	TotalAmount string `json:"totalAmount"`
	Amount      string `json:"amount,omitempty"`
	Action      string `json:"action,omitempty"`
}

// Validate checks the payload carries a known kind and the ids it needs.
func (p BillingEventPayload) Validate() error {
	switch p.Kind {
	case TaskBillGenerated, TaskBillSettled:
	case TaskPaymentRequested:
		if p.RequestID <= 0 {
			return fmt.Errorf("jobs: %s requires a request id", p.Kind)
		}
	case TaskPaymentResolved:
		if p.RequestID <= 0 || (p.Action != "accept" && p.Action != "reject") {
			return fmt.Errorf("jobs: %s requires a request id and action", p.Kind)
		}
	default:
		return fmt.Errorf("jobs: unknown billing event %q", p.Kind)
	}
	if p.BillID <= 0 || p.AgentID <= 0 || p.CustomerID <= 0 {
		return fmt.Errorf("jobs: %s requires bill, agent and customer ids", p.Kind)
	}
	return nil
}

// TaskID derives a stable id so re-enqueueing the same event is a no-op.
func (p BillingEventPayload) TaskID() string {
	parts := []string{p.Kind, strconv.FormatInt(p.BillID, 10)}
	if p.RequestID > 0 {
		parts = append(parts, strconv.FormatInt(p.RequestID, 10))
	}
	if p.Action != "" {
		parts = append(parts, p.Action)
	}
	return uuid.NewSHA1(taskNamespace, []byte(strings.Join(parts, ":"))).String()
}

// NewBillingEventTask constructs an Asynq task for the event.
func NewBillingEventTask(payload BillingEventPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(payload.Kind, data), nil
}

// PurgeNotificationsPayload configures the retention sweep.
type PurgeNotificationsPayload struct {
	RetentionDays int `json:"retentionDays"`
}

// NewPurgeNotificationsTask constructs the retention sweep task.
func NewPurgeNotificationsTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(PurgeNotificationsPayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeNotifications, data), nil
}
