package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	jobmetrics "github.com/newsline/newsline/internal/jobs"
	"github.com/newsline/newsline/internal/notifications"
	"github.com/newsline/newsline/internal/shared"
)

// BillingNotifyJob writes inbox notifications for billing events.
type BillingNotifyJob struct {
	Store          notifications.Store
	Logger         *slog.Logger
	Metrics        *jobmetrics.Metrics
	CurrencySymbol string
	Locale         language.Tag
}

// NewBillingNotifyJob wires dependencies for the notification handler.
func NewBillingNotifyJob(store notifications.Store, logger *slog.Logger, metrics *jobmetrics.Metrics, currencySymbol string) *BillingNotifyJob {
	return &BillingNotifyJob{Store: store, Logger: logger, Metrics: metrics, CurrencySymbol: currencySymbol, Locale: language.English}
}

// Handlers lists the task registrations served by the job.
func (j *BillingNotifyJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskBillGenerated, Handler: j.Handle},
		{Type: TaskPaymentRequested, Handler: j.Handle},
		{Type: TaskPaymentResolved, Handler: j.Handle},
		{Type: TaskBillSettled, Handler: j.Handle},
	}
}

// Handle processes billing event tasks.
func (j *BillingNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("billing notify: handler not configured")
	}
	var payload BillingEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Kind == "" {
		payload.Kind = t.Type()
	}
	if err := payload.Validate(); err != nil {
		j.logger().Warn("drop malformed billing event", slog.String("type", t.Type()), slog.Any("error", err))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(payload.Kind)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	written := 0
	for _, n := range j.compose(payload) {
		created, err := j.Store.Create(ctx, n)
		if err != nil {
			resultErr = err
			j.logger().Error("write notification", slog.Int64("bill_id", payload.BillID), slog.Int64("user_id", n.UserID), slog.Any("error", err))
			return resultErr
		}
		if created {
			written++
		}
	}
	j.Metrics.AddNotifications(payload.Kind, written)
	j.logger().Info("billing event delivered", slog.String("kind", payload.Kind), slog.Int64("bill_id", payload.BillID), slog.Int("written", written))
	return resultErr
}

// compose builds the notifications for an event. Each carries a dedupe key so
// a retried task never writes the same inbox entry twice.
func (j *BillingNotifyJob) compose(p BillingEventPayload) []notifications.Notification {
	key := p.TaskID()
	note := func(userID int64, role shared.Role, msg string) notifications.Notification {
		return notifications.Notification{
			UserID:    userID,
			Role:      role,
			Kind:      p.Kind,
			BillID:    p.BillID,
			Message:   msg,
			DedupeKey: key + ":" + string(role),
		}
	}
	switch p.Kind {
	case TaskBillGenerated:
		return []notifications.Notification{
			note(p.CustomerID, shared.RoleCustomer, fmt.Sprintf("Your bill for %s is ready. Total %s.", p.Period, j.money(p.TotalAmount))),
		}
	case TaskPaymentRequested:
		return []notifications.Notification{
			note(p.AgentID, shared.RoleAgent, fmt.Sprintf("Customer #%d asked you to confirm payment of %s for %s.", p.CustomerID, j.money(p.Amount), p.Period)),
		}
	case TaskPaymentResolved:
		msg := fmt.Sprintf("Your payment of %s for %s was confirmed.", j.money(p.Amount), p.Period)
		if p.Action == "reject" {
			msg = fmt.Sprintf("Your payment request for %s was declined. You can request again.", p.Period)
		}
		return []notifications.Notification{note(p.CustomerID, shared.RoleCustomer, msg)}
	case TaskBillSettled:
		return []notifications.Notification{
			note(p.CustomerID, shared.RoleCustomer, fmt.Sprintf("Your bill for %s was marked as paid (%s).", p.Period, j.money(p.Amount))),
		}
	default:
		return nil
	}
}

func (j *BillingNotifyJob) money(raw string) string {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return shared.FormatAmount(j.Locale, j.CurrencySymbol, amount)
}

func (j *BillingNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// PurgeNotificationsJob removes read notifications older than the retention.
type PurgeNotificationsJob struct {
	Store   notifications.Store
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPurgeNotificationsJob wires the retention sweep.
func NewPurgeNotificationsJob(store notifications.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *PurgeNotificationsJob {
	return &PurgeNotificationsJob{Store: store, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskPurgeNotifications.
func (j *PurgeNotificationsJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PurgeNotificationsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = 90
	}
	tracker := j.Metrics.Track(TaskPurgeNotifications)
	removed, err := j.Store.PurgeRead(ctx, j.clock().AddDate(0, 0, -payload.RetentionDays))
	if err != nil {
		return tracker.End(err)
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("purged read notifications", slog.Int64("removed", removed), slog.Int("retention_days", payload.RetentionDays))
	return tracker.End(nil)
}
