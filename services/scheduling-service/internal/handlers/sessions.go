package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/availability"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
)

type SessionStore interface {
	Book(ctx context.Context, s model.Session, idempotencyKey string) (model.Session, bool, error)
	ListByParticipant(ctx context.Context, userID string, asTutor bool, limit int) ([]model.Session, error)
	Cancel(ctx context.Context, sessionID, actorID, reason string) (model.Session, error)
}

type SessionHandler struct {
	sessions SessionStore
	avail    AvailabilityStore
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

func NewSessionHandler(sessions SessionStore, avail AvailabilityStore, logger *slog.Logger, opts Options) *SessionHandler {
	if opts.Granularity <= 0 {
		opts.Granularity = availability.DefaultGranularity
	}
	return &SessionHandler{sessions: sessions, avail: avail, logger: logger, opts: opts, now: time.Now}
}

type createSessionRequest struct {
	StudentID string `json:"student_id"`
	TutorID   string `json:"tutor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type sessionItem struct {
	SessionID     string `json:"session_id"`
	TutorID       string `json:"tutor_id"`
	StudentID     string `json:"student_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	CancelReason  string `json:"cancellation_reason,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toSessionItem(s model.Session) sessionItem {
	item := sessionItem{
		SessionID:     s.ID,
		TutorID:       s.TutorID,
		StudentID:     s.StudentID,
		StartTime:     formatTime(s.StartTime),
		EndTime:       formatTime(s.EndTime),
		Status:        s.Status,
		PaymentStatus: s.PaymentStatus,
		CancelReason:  s.CancelReason,
		CreatedAt:     formatTime(s.CreatedAt),
	}
	if s.CancelledAt != nil {
		item.CancelledAt = formatTime(*s.CancelledAt)
	}
	if s.ConfirmedAt != nil {
		item.ConfirmedAt = formatTime(*s.ConfirmedAt)
	}
	return item
}

// Create serves POST /api/v1/sessions. The requested range must be tiled by units of the
// tutor's weekly schedule. Overlap with another booking is left to the exclusion constraint
// and answered with 409.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.TutorID = strings.TrimSpace(req.TutorID)
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.TutorID == "" {
		http.Error(w, "tutor_id required", http.StatusBadRequest)
		return
	}
	if req.StudentID != "" && req.StudentID != p.Sub {
		http.Error(w, "student_id does not match the authenticated user", http.StatusForbidden)
		return
	}
	if req.TutorID == p.Sub {
		http.Error(w, "tutors cannot book themselves", http.StatusBadRequest)
		return
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}
	if startTime.Before(h.now()) {
		http.Error(w, "start_time is in the past", http.StatusUnprocessableEntity)
		return
	}

	ctx := r.Context()
	status, msg, err := h.checkBookable(ctx, req.TutorID, startTime, endTime)
	if err != nil {
		h.logger.Error("bookability check failed", "err", err, "tutor_id", req.TutorID)
		http.Error(w, "availability unavailable", http.StatusServiceUnavailable)
		return
	}
	if status != http.StatusOK {
		http.Error(w, msg, status)
		return
	}

	created, replayed, err := h.sessions.Book(ctx, model.Session{
		TutorID:   req.TutorID,
		StudentID: p.Sub,
		StartTime: startTime.UTC(),
		EndTime:   endTime.UTC(),
	}, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.logger.Error("session create failed", "err", err, "tutor_id", req.TutorID)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	if replayed {
		code = http.StatusOK
	} else {
		h.logger.Info("session reserved", "session_id", created.ID, "tutor_id", created.TutorID, "student_id", created.StudentID)
	}
	writeJSON(w, code, toSessionItem(created))
}

// checkBookable returns 200 when [start,end) is bookable, otherwise the HTTP status and message
// to answer with.
func (h *SessionHandler) checkBookable(ctx context.Context, tutorID string, start, end time.Time) (int, string, error) {
	a, err := h.avail.Get(ctx, tutorID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && a.Weekly.IsEmpty()) {
		return http.StatusUnprocessableEntity, "tutor has not configured availability", nil
	}
	if err != nil {
		return 0, "", err
	}

	loc := a.Location()
	day, from, to, ok := localRange(start, end, loc)
	if !ok {
		return http.StatusUnprocessableEntity, "requested time is outside tutor availability", nil
	}
	slots := availability.Generate(a.Weekly, nil, day, 1, availability.Options{Granularity: h.opts.Granularity, TutorID: tutorID})
	if !availability.Covers(slots, day, from, to) {
		return http.StatusUnprocessableEntity, "requested time is outside tutor availability", nil
	}
	return http.StatusOK, "", nil
}

// localRange maps an instant range onto one local calendar day. An end at the following
// midnight is 24:00.
func localRange(start, end time.Time, loc *time.Location) (availability.Date, availability.Clock, availability.Clock, bool) {
	ls, le := start.In(loc), end.In(loc)
	if ls.Second() != 0 || ls.Nanosecond() != 0 || le.Second() != 0 || le.Nanosecond() != 0 {
		return availability.Date{}, 0, 0, false
	}
	day := availability.DateOf(ls)
	from := availability.ClockOf(ls)
	to := availability.ClockOf(le)
	switch endDay := availability.DateOf(le); {
	case endDay == day:
	case endDay == day.AddDays(1) && to == 0:
		to = availability.EndOfDay
	default:
		return availability.Date{}, 0, 0, false
	}
	return day, from, to, true
}

// List serves GET /api/v1/sessions for the caller, as tutor or student depending on role.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	sessions, err := h.sessions.ListByParticipant(r.Context(), p.Sub, p.Role == auth.RoleTutor, limit)
	if err != nil {
		h.logger.Error("list sessions failed", "err", err, "user_id", p.Sub)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionItem(s))
	}
	writeJSON(w, http.StatusOK, items)
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

// Cancel serves POST /api/v1/sessions/{sessionID}/cancel for either participant.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	sessionID := strings.TrimSpace(r.PathValue("sessionID"))
	if _, err := uuid.Parse(sessionID); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	var req cancelSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled_by_" + p.Role
	}

	s, err := h.sessions.Cancel(r.Context(), sessionID, p.Sub, reason)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case errors.Is(err, storage.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		h.logger.Error("cancel session failed", "err", err, "session_id", sessionID)
		http.Error(w, "failed to cancel session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toSessionItem(s))
}
