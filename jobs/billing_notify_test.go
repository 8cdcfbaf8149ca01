package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/newsline/newsline/internal/jobs"
	"github.com/newsline/newsline/internal/notifications"
	"github.com/newsline/newsline/internal/shared"
)

type memoryStore struct {
	items   []notifications.Notification
	keys    map[string]bool
	failErr error
	purged  time.Time
}

func (m *memoryStore) Create(_ context.Context, n notifications.Notification) (bool, error) {
	if m.failErr != nil {
		return false, m.failErr
	}
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[n.DedupeKey] {
		return false, nil
	}
	m.keys[n.DedupeKey] = true
	m.items = append(m.items, n)
	return true, nil
}

func (m *memoryStore) ListForUser(context.Context, int64, shared.Role, bool, int) ([]notifications.Notification, error) {
	return m.items, nil
}

func (m *memoryStore) MarkRead(context.Context, int64, int64, time.Time) error { return nil }

func (m *memoryStore) PurgeRead(_ context.Context, before time.Time) (int64, error) {
	m.purged = before
	return 3, nil
}

func newNotifyJob(store notifications.Store) *BillingNotifyJob {
	return NewBillingNotifyJob(store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), "₹")
}

func TestBillingNotifyWritesCustomerNotification(t *testing.T) {
	store := &memoryStore{}
	job := newNotifyJob(store)
	task, err := NewBillingEventTask(BillingEventPayload{
		Kind: TaskBillGenerated, BillID: 7, AgentID: 1, CustomerID: 2, Period: "March 2025", TotalAmount: "51",
	})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, store.items, 1)
	n := store.items[0]
	assert.Equal(t, int64(2), n.UserID)
	assert.Equal(t, shared.RoleCustomer, n.Role)
	assert.Equal(t, "Your bill for March 2025 is ready. Total ₹51.00.", n.Message)
}

func TestBillingNotifyPaymentRequestedGoesToAgent(t *testing.T) {
	store := &memoryStore{}
	task, err := NewBillingEventTask(BillingEventPayload{
		Kind: TaskPaymentRequested, BillID: 7, AgentID: 1, CustomerID: 2, RequestID: 3, Period: "March 2025", TotalAmount: "51", Amount: "51",
	})
	require.NoError(t, err)
	require.NoError(t, newNotifyJob(store).Handle(context.Background(), task))

	require.Len(t, store.items, 1)
	assert.Equal(t, int64(1), store.items[0].UserID)
	assert.Equal(t, shared.RoleAgent, store.items[0].Role)
}

func TestBillingNotifySkipsMalformedPayload(t *testing.T) {
	job := newNotifyJob(&memoryStore{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskBillGenerated, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	raw, _ := json.Marshal(BillingEventPayload{Kind: TaskPaymentResolved, BillID: 1, AgentID: 1, CustomerID: 1})
	err = job.Handle(context.Background(), asynq.NewTask(TaskPaymentResolved, raw))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBillingNotifyPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	task, err := NewBillingEventTask(BillingEventPayload{Kind: TaskBillSettled, BillID: 7, AgentID: 1, CustomerID: 2, Amount: "10"})
	require.NoError(t, err)
	assert.ErrorIs(t, newNotifyJob(&memoryStore{failErr: boom}).Handle(context.Background(), task), boom)
}

func TestTaskIDIsStablePerEvent(t *testing.T) {
	base := BillingEventPayload{Kind: TaskPaymentResolved, BillID: 7, AgentID: 1, CustomerID: 2, RequestID: 3, Action: "accept"}
	assert.Equal(t, base.TaskID(), base.TaskID())

	other := base
	other.Action = "reject"
	assert.NotEqual(t, base.TaskID(), other.TaskID())
}

func TestPurgeNotificationsUsesRetention(t *testing.T) {
	store := &memoryStore{}
	job := NewPurgeNotificationsJob(store, nil, nil)
	now := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewPurgeNotificationsTask(30)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, now.AddDate(0, 0, -30), store.purged)
}
