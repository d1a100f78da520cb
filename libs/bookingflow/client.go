package bookingflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/libs/availability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is a non-2xx answer from one of the services.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) apiClient {
	return apiClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c apiClient) do(ctx context.Context, method, path string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SchedulingClient talks to scheduling-service on behalf of a signed-in student.
type SchedulingClient struct {
	api apiClient
}

func NewSchedulingClient(baseURL, token string) *SchedulingClient {
	return &SchedulingClient{api: newAPIClient(baseURL, token)}
}

type createSessionRequest struct {
	StudentID string `json:"student_id"`
	TutorID   string `json:"tutor_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// CreateSession reserves [start, end) with the tutor. A 409 maps to ErrConflict.
func (c *SchedulingClient) CreateSession(ctx context.Context, studentID, tutorID string, start, end time.Time) (Session, error) {
	headers := http.Header{}
	headers.Set("Idempotency-Key", uuid.NewString())
	var out createSessionResponse
	err := c.api.do(ctx, http.MethodPost, "/api/v1/sessions", headers, createSessionRequest{
		StudentID: studentID,
		TutorID:   tutorID,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
	}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return Session{}, fmt.Errorf("%w: %s", ErrConflict, apiErr.Message)
		}
		return Session{}, err
	}
	return Session{ID: out.SessionID, Status: out.Status}, nil
}

// SlotsPage is the slots endpoint response.
type SlotsPage struct {
	TutorID         string                     `json:"tutor_id"`
	Timezone        string                     `json:"timezone"`
	HasAvailability bool                       `json:"has_availability"`
	HourlyRate      float64                    `json:"hourly_rate"`
	Slots           []availability.BookingSlot `json:"slots"`
}

// Location resolves Timezone, falling back to UTC.
func (p SlotsPage) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *SchedulingClient) Slots(ctx context.Context, tutorID string, start availability.Date, days int) (SlotsPage, error) {
	q := url.Values{}
	q.Set("start", start.String())
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	var out SlotsPage
	path := "/api/v1/tutors/" + url.PathEscape(tutorID) + "/slots?" + q.Encode()
	if err := c.api.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return SlotsPage{}, err
	}
	return out, nil
}

// TutorAvailability is a tutor's configured weekly schedule.
type TutorAvailability struct {
	TutorID    string                          `json:"tutor_id"`
	Timezone   string                          `json:"timezone"`
	HourlyRate float64                         `json:"hourly_rate"`
	Weekly     availability.WeeklyAvailability `json:"weekly"`
}

// Availability returns the tutor's schedule. ok is false when the tutor never configured one.
func (c *SchedulingClient) Availability(ctx context.Context, tutorID string) (TutorAvailability, bool, error) {
	var a TutorAvailability
	path := "/api/v1/tutors/" + url.PathEscape(tutorID) + "/availability"
	if err := c.api.do(ctx, http.MethodGet, path, nil, nil, &a); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return TutorAvailability{}, false, nil
		}
		return TutorAvailability{}, false, err
	}
	return a, true, nil
}

// BookedInterval is a session occupying the tutor's calendar.
type BookedInterval struct {
	Start  time.Time
	End    time.Time
	Status string
}

type bookedItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// BookedSessions lists the tutor's non-cancelled sessions overlapping [start, end).
// It always hits the server; results are not cached.
func (c *SchedulingClient) BookedSessions(ctx context.Context, tutorID string, start, end time.Time) ([]BookedInterval, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	var items []bookedItem
	path := "/api/v1/tutors/" + url.PathEscape(tutorID) + "/sessions?" + q.Encode()
	if err := c.api.do(ctx, http.MethodGet, path, nil, nil, &items); err != nil {
		return nil, err
	}
	out := make([]BookedInterval, 0, len(items))
	for _, it := range items {
		s, err := time.Parse(time.RFC3339, it.StartTime)
		if err != nil {
			return nil, fmt.Errorf("booked session start: %w", err)
		}
		e, err := time.Parse(time.RFC3339, it.EndTime)
		if err != nil {
			return nil, fmt.Errorf("booked session end: %w", err)
		}
		out = append(out, BookedInterval{Start: s, End: e, Status: it.Status})
	}
	return out, nil
}

// PaymentsClient talks to payment-service.
type PaymentsClient struct {
	api apiClient
}

func NewPaymentsClient(baseURL, token string) *PaymentsClient {
	return &PaymentsClient{api: newAPIClient(baseURL, token)}
}

type setupPaymentRequest struct {
	SessionID     string `json:"session_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TutorID       string `json:"tutor_id"`
	TutorName     string `json:"tutor_name,omitempty"`
	TutorEmail    string `json:"tutor_email,omitempty"`
	StudentName   string `json:"student_name,omitempty"`
	StudentEmail  string `json:"student_email,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ForceTwoStage bool   `json:"force_two_stage"`
}

type setupPaymentResponse struct {
	ClientSecret      string `json:"client_secret"`
	PaymentIntentID   string `json:"payment_intent_id"`
	Amount            int64  `json:"amount"`
	IsTwoStagePayment bool   `json:"is_two_stage_payment"`
}

func (c *PaymentsClient) SetupPayment(ctx context.Context, req PaymentRequest) (PaymentSetupResult, error) {
	var out setupPaymentResponse
	err := c.api.do(ctx, http.MethodPost, "/api/v1/payments/setup", nil, setupPaymentRequest{
		SessionID:     req.SessionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TutorID:       req.Tutor.ID,
		TutorName:     req.Tutor.Name,
		TutorEmail:    req.Tutor.Email,
		StudentName:   req.User.Name,
		StudentEmail:  req.User.Email,
		StartTime:     req.Start.UTC().Format(time.RFC3339),
		EndTime:       req.End.UTC().Format(time.RFC3339),
		ForceTwoStage: req.ForceTwoStage,
	}, &out)
	if err != nil {
		return PaymentSetupResult{}, err
	}
	return PaymentSetupResult{
		ClientSecret:      out.ClientSecret,
		PaymentIntentID:   out.PaymentIntentID,
		Amount:            out.Amount,
		IsTwoStagePayment: out.IsTwoStagePayment,
	}, nil
}
