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

	"github.com/md-rashed-zaman/tutorbook/libs/availability"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
)

type AvailabilityStore interface {
	Get(ctx context.Context, tutorID string) (model.TutorAvailability, error)
	Upsert(ctx context.Context, a model.TutorAvailability) (model.TutorAvailability, error)
}

// BookedLister is the booked-sessions query shared by the slots and booking endpoints.
type BookedLister interface {
	ListBooked(ctx context.Context, tutorID string, start, end time.Time) ([]model.Session, error)
}

type Options struct {
	Granularity    time.Duration
	MaxHorizonDays int
}

type AvailabilityHandler struct {
	store  AvailabilityStore
	booked BookedLister
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

func NewAvailabilityHandler(store AvailabilityStore, booked BookedLister, logger *slog.Logger, opts Options) *AvailabilityHandler {
	if opts.Granularity <= 0 {
		opts.Granularity = availability.DefaultGranularity
	}
	if opts.MaxHorizonDays <= 0 {
		opts.MaxHorizonDays = 90
	}
	return &AvailabilityHandler{store: store, booked: booked, logger: logger, opts: opts, now: time.Now}
}

type availabilityBody struct {
	TutorID    string                          `json:"tutor_id,omitempty"`
	Timezone   string                          `json:"timezone"`
	HourlyRate float64                         `json:"hourly_rate"`
	Weekly     availability.WeeklyAvailability `json:"weekly"`
	UpdatedAt  string                          `json:"updated_at,omitempty"`
}

func toAvailabilityBody(a model.TutorAvailability) availabilityBody {
	return availabilityBody{
		TutorID:    a.TutorID,
		Timezone:   a.Timezone,
		HourlyRate: a.HourlyRate,
		Weekly:     a.Weekly,
		UpdatedAt:  formatTime(a.UpdatedAt),
	}
}

// Get serves GET /api/v1/tutors/{tutorID}/availability.
func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	tutorID := strings.TrimSpace(r.PathValue("tutorID"))
	a, err := h.store.Get(r.Context(), tutorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "availability not configured", http.StatusNotFound)
			return
		}
		h.logger.Error("availability lookup failed", "err", err, "tutor_id", tutorID)
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityBody(a))
}

// Put serves PUT /api/v1/tutors/availability for the signed-in tutor.
func (h *AvailabilityHandler) Put(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req availabilityBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Weekly = req.Weekly.Normalize()
	if err := req.Weekly.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}
	if req.HourlyRate < 0 {
		http.Error(w, "hourly_rate must not be negative", http.StatusBadRequest)
		return
	}

	saved, err := h.store.Upsert(r.Context(), model.TutorAvailability{
		TutorID:    p.Sub,
		Weekly:     req.Weekly,
		Timezone:   req.Timezone,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		h.logger.Error("availability upsert failed", "err", err, "tutor_id", p.Sub)
		http.Error(w, "failed to save availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityBody(saved))
}

type slotsResponse struct {
	TutorID            string                     `json:"tutor_id"`
	Timezone           string                     `json:"timezone"`
	HourlyRate         float64                    `json:"hourly_rate"`
	HasAvailability    bool                       `json:"has_availability"`
	GranularityMinutes int                        `json:"granularity_minutes"`
	Start              availability.Date          `json:"start"`
	Days               int                        `json:"days"`
	Slots              []availability.BookingSlot `json:"slots"`
}

// Slots serves GET /api/v1/tutors/{tutorID}/slots?start=YYYY-MM-DD&days=N (or week=YYYY-MM-DD).
// Booked sessions are read on every request.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	tutorID := strings.TrimSpace(r.PathValue("tutorID"))
	q := r.URL.Query()

	a, err := h.store.Get(r.Context(), tutorID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("availability lookup failed", "err", err, "tutor_id", tutorID)
		http.Error(w, "failed to load availability", http.StatusServiceUnavailable)
		return
	}
	loc := a.Location()

	start := availability.DateOf(h.now().In(loc))
	days := availability.DefaultHorizonDays
	if raw := strings.TrimSpace(q.Get("week")); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start, days = availability.WeekStart(d), 7
	}
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		start = d
	}
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > h.opts.MaxHorizonDays {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = n
	}

	resp := slotsResponse{
		TutorID:            tutorID,
		Timezone:           loc.String(),
		HourlyRate:         a.HourlyRate,
		HasAvailability:    availability.HasAvailability(a.Weekly),
		GranularityMinutes: int(h.opts.Granularity / time.Minute),
		Start:              start,
		Days:               days,
		Slots:              []availability.BookingSlot{},
	}
	if !resp.HasAvailability {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	booked, err := h.bookedIn(r.Context(), tutorID, start, days, loc)
	if err != nil {
		h.logger.Error("booked sessions lookup failed", "err", err, "tutor_id", tutorID)
		http.Error(w, "failed to load booked sessions", http.StatusServiceUnavailable)
		return
	}
	slots := availability.Generate(a.Weekly, booked, start, days, availability.Options{
		Granularity: h.opts.Granularity,
		TutorID:     tutorID,
	})
	slots = availability.MarkPast(slots, h.now(), loc)
	if q.Get("available_only") == "true" {
		slots = availability.Bookable(slots)
	}
	if slots != nil {
		resp.Slots = slots
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) bookedIn(ctx context.Context, tutorID string, start availability.Date, days int, loc *time.Location) ([]availability.BookedSession, error) {
	sessions, err := h.booked.ListBooked(ctx, tutorID, start.At(0, loc), start.AddDays(days).At(0, loc))
	if err != nil {
		return nil, err
	}
	var out []availability.BookedSession
	for _, s := range sessions {
		out = append(out, availability.SplitBooked(s.StartTime, s.EndTime, loc)...)
	}
	return out, nil
}

type bookedItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// TutorSessions serves GET /api/v1/tutors/{tutorID}/sessions?start=&end= (RFC 3339). Only the
// occupied ranges are exposed.
func (h *AvailabilityHandler) TutorSessions(w http.ResponseWriter, r *http.Request) {
	tutorID := strings.TrimSpace(r.PathValue("tutorID"))
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil || !end.After(start) {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}
	if end.Sub(start) > time.Duration(h.opts.MaxHorizonDays)*24*time.Hour {
		http.Error(w, "range too large", http.StatusBadRequest)
		return
	}

	sessions, err := h.booked.ListBooked(r.Context(), tutorID, start, end)
	if err != nil {
		h.logger.Error("booked sessions lookup failed", "err", err, "tutor_id", tutorID)
		http.Error(w, "failed to load booked sessions", http.StatusServiceUnavailable)
		return
	}
	items := make([]bookedItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, bookedItem{StartTime: formatTime(s.StartTime), EndTime: formatTime(s.EndTime), Status: s.Status})
	}
	writeJSON(w, http.StatusOK, items)
}
