package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/storage"
)

type Store interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]storage.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type item struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"created_at"`
}

// List serves GET /api/v1/notifications?unread=true&limit=N.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	unread := r.URL.Query().Get("unread") == "true"

	items, err := h.store.ListForUser(r.Context(), p.Sub, unread, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "err", err, "user_id", p.Sub)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	out := make([]item, 0, len(items))
	for _, n := range items {
		out = append(out, item{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Metadata:  n.Metadata,
			Read:      n.ReadAt != nil,
			CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// MarkRead serves POST /api/v1/notifications/{notificationID}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("notificationID")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	err := h.store.MarkRead(r.Context(), p.Sub, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "notification not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to mark notification read", "err", err, "notification_id", id)
		http.Error(w, "failed to update notification", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
