package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsline/newsline/internal/shared"
)

type memoryStore struct {
	items []Notification
}

func (m *memoryStore) Create(_ context.Context, n Notification) (bool, error) {
	for _, existing := range m.items {
		if existing.DedupeKey == n.DedupeKey {
			return false, nil
		}
	}
	n.ID = int64(len(m.items) + 1)
	m.items = append(m.items, n)
	return true, nil
}

func (m *memoryStore) ListForUser(_ context.Context, userID int64, role shared.Role, unreadOnly bool, _ int) ([]Notification, error) {
	var out []Notification
	for _, n := range m.items {
		if n.UserID == userID && n.Role == role && (!unreadOnly || n.ReadAt == nil) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryStore) MarkRead(_ context.Context, id, userID int64, at time.Time) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].ReadAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) PurgeRead(context.Context, time.Time) (int64, error) { return 0, nil }

func withCaller(r *http.Request, id shared.Identity) *http.Request {
	return r.WithContext(shared.ContextWithIdentity(r.Context(), id))
}

func TestListReturnsOnlyCallerInbox(t *testing.T) {
	store := &memoryStore{}
	_, _ = store.Create(context.Background(), Notification{UserID: 5, Role: shared.RoleCustomer, Kind: "billing:bill_generated", BillID: 1, Message: "ready", DedupeKey: "a"})
	_, _ = store.Create(context.Background(), Notification{UserID: 5, Role: shared.RoleAgent, Kind: "billing:payment_requested", BillID: 1, Message: "other role", DedupeKey: "b"})
	handler := NewHandler(store, nil)

	rr := httptest.NewRecorder()
	handler.list(rr, withCaller(httptest.NewRequest(http.MethodGet, "/notifications", nil), shared.Identity{UserID: 5, Role: shared.RoleCustomer}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"message":"ready"`)
	assert.NotContains(t, rr.Body.String(), "other role")
}

func TestMarkRead(t *testing.T) {
	store := &memoryStore{}
	_, _ = store.Create(context.Background(), Notification{UserID: 5, Role: shared.RoleCustomer, DedupeKey: "a"})
	handler := NewHandler(store, nil)

	serve := func(id string, caller shared.Identity) int {
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("id", id)
		req := httptest.NewRequest(http.MethodPost, "/notifications/"+id+"/read", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rr := httptest.NewRecorder()
		handler.markRead(rr, withCaller(req, caller))
		return rr.Code
	}

	assert.Equal(t, http.StatusNotFound, serve("1", shared.Identity{UserID: 6, Role: shared.RoleCustomer}))
	assert.Equal(t, http.StatusNoContent, serve("1", shared.Identity{UserID: 5, Role: shared.RoleCustomer}))
	assert.Equal(t, http.StatusBadRequest, serve("x", shared.Identity{UserID: 5, Role: shared.RoleCustomer}))
	require.NotNil(t, store.items[0].ReadAt)
}
