package bookingflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/availability"
)

func TestSchedulingClientCreateSession(t *testing.T) {
	var got createSessionRequest
	var auth, idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/sessions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		idem = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.StartTime == "2026-03-02T10:00:00Z" {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session_id":"sess-9","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewSchedulingClient(srv.URL+"/", "tok")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess, err := c.CreateSession(context.Background(), "student-1", "tutor-1", start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID != "sess-9" || sess.Status != "pending" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if auth != "Bearer tok" || idem == "" {
		t.Fatalf("missing headers auth=%q idempotency=%q", auth, idem)
	}
	if got.StudentID != "student-1" || got.TutorID != "tutor-1" || got.EndTime != "2026-03-02T10:00:00Z" {
		t.Fatalf("unexpected request body %+v", got)
	}

	_, err = c.CreateSession(context.Background(), "student-1", "tutor-1", start.Add(time.Hour), start.Add(2*time.Hour))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSchedulingClientSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tutors/tutor-1/slots" || r.URL.Query().Get("start") != "2026-03-02" || r.URL.Query().Get("days") != "7" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"tutor_id":"tutor-1","timezone":"Mars/Olympus","has_availability":true,
			"slots":[{"day":"2026-03-02","start":"09:00","end":"09:30","available":true,"tutor_id":"tutor-1"}]}`))
	}))
	defer srv.Close()

	page, err := NewSchedulingClient(srv.URL, "").Slots(context.Background(), "tutor-1", availability.Date{Year: 2026, Month: time.March, Day: 2}, 7)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if !page.HasAvailability || len(page.Slots) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if s := page.Slots[0]; s.Start != availability.MustClock("09:00") || !s.Available {
		t.Fatalf("unexpected slot %+v", s)
	}
	if page.Location() != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC, got %s", page.Location())
	}
}

func TestPaymentsClientSetupPayment(t *testing.T) {
	var got setupPaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.SessionID == "" {
			http.Error(w, "session_id required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"client_secret":"cs_1","payment_intent_id":"pi_1","amount":5000,"is_two_stage_payment":true}`))
	}))
	defer srv.Close()

	c := NewPaymentsClient(srv.URL, "tok")
	res, err := c.SetupPayment(context.Background(), PaymentRequest{
		SessionID:     "sess-1",
		Amount:        5000,
		Currency:      "usd",
		Tutor:         Tutor{ID: "tutor-1", Email: "t@example.com"},
		User:          User{ID: "student-1", Email: "s@example.com"},
		Start:         time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:           time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		ForceTwoStage: true,
	})
	if err != nil {
		t.Fatalf("SetupPayment: %v", err)
	}
	if res.ClientSecret != "cs_1" || !res.IsTwoStagePayment || res.Amount != 5000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !got.ForceTwoStage || got.TutorEmail != "t@example.com" || got.StudentEmail != "s@example.com" {
		t.Fatalf("unexpected request %+v", got)
	}

	_, err = c.SetupPayment(context.Background(), PaymentRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

func TestSchedulingClientAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/tutors/tutor-1/availability":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tutor_id":"tutor-1","timezone":"Europe/Berlin","hourly_rate":40,"weekly":{"monday":[{"start":"09:00","end":"12:00"}]}}`))
		case "/api/v1/tutors/tutor-2/availability":
			http.Error(w, "availability not configured", http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	c := NewSchedulingClient(srv.URL, "")

	a, ok, err := c.Availability(context.Background(), "tutor-1")
	if err != nil || !ok {
		t.Fatalf("Availability: ok=%v err=%v", ok, err)
	}
	if a.Timezone != "Europe/Berlin" || a.HourlyRate != 40 || len(a.Weekly["monday"]) != 1 {
		t.Fatalf("unexpected availability %+v", a)
	}

	if _, ok, err := c.Availability(context.Background(), "tutor-2"); ok || err != nil {
		t.Fatalf("expected absent availability, got ok=%v err=%v", ok, err)
	}
	if _, _, err := c.Availability(context.Background(), "tutor-3"); err == nil {
		t.Fatal("expected error for 500")
	}
}

func TestSchedulingClientBookedSessions(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/tutors/tutor-1/sessions" {
			http.NotFound(w, r)
			return
		}
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T10:30:00Z","status":"confirmed"}]`))
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got, err := NewSchedulingClient(srv.URL, "").BookedSessions(context.Background(), "tutor-1", start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("BookedSessions: %v", err)
	}
	if len(got) != 1 || !got[0].Start.Equal(start.Add(10*time.Hour)) || got[0].End.Sub(got[0].Start) != 30*time.Minute || got[0].Status != "confirmed" {
		t.Fatalf("unexpected sessions %+v", got)
	}
	if query != "end=2026-03-03T00%3A00%3A00Z&start=2026-03-02T00%3A00%3A00Z" {
		t.Fatalf("unexpected query %q", query)
	}
}
