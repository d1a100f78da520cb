package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/storage"
)

const notificationID = "7f9c24e5-2b1a-4c55-9f0e-3c7d8a1b2c3d"

type memStore struct {
	items []storage.Notification
}

func (m *memStore) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]storage.Notification, error) {
	var out []storage.Notification
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, userID, id string) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			now := time.Now()
			m.items[i].ReadAt = &now
			return nil
		}
	}
	return storage.ErrNotFound
}

func newMux(store *memStore) *http.ServeMux {
	h := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/notifications", h.List)
	mux.HandleFunc("POST /api/v1/notifications/{notificationID}/read", h.MarkRead)
	return mux
}

func as(r *http.Request, sub string) *http.Request {
	return r.WithContext(httpx.ContextWithPrincipal(r.Context(), &auth.Claims{Sub: sub, Role: auth.RoleStudent}))
}

func TestListAndMarkRead(t *testing.T) {
	store := &memStore{items: []storage.Notification{
		{ID: notificationID, UserID: "student-1", Type: storage.TypePaymentSuccess, Title: "Payment Successful", Metadata: map[string]any{"sessionId": "sess-1"}, CreatedAt: time.Now()},
		{ID: "other", UserID: "tutor-1", Type: storage.TypeBookingConfirmed, CreatedAt: time.Now()},
	}}
	mux := newMux(store)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, as(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true", nil), "student-1"))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var body struct {
		Notifications []item `json:"notifications"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Notifications) != 1 || body.Notifications[0].Type != storage.TypePaymentSuccess || body.Notifications[0].Read {
		t.Fatalf("unexpected notifications: %+v", body.Notifications)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, as(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID+"/read", nil), "student-1"))
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, as(httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true", nil), "student-1"))
	_ = json.Unmarshal(rw.Body.Bytes(), &body)
	if len(body.Notifications) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(body.Notifications))
	}
}

func TestMarkReadErrors(t *testing.T) {
	mux := newMux(&memStore{})

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, as(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/not-a-uuid/read", nil), "student-1"))
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, as(httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+notificationID+"/read", nil), "student-1"))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}
}
