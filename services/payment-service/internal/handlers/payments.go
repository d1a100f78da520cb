package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/payments"
)

type PaymentService interface {
	Setup(ctx context.Context, req payments.SetupRequest) (payments.SetupResult, error)
	Intent(ctx context.Context, intentID, userID string) (model.Intent, error)
}

type AccountStore interface {
	UpsertConnectedAccount(ctx context.Context, tutorID, accountID string) error
}

type PaymentHandler struct {
	svc      PaymentService
	accounts AccountStore
	logger   *slog.Logger
}

func NewPaymentHandler(svc PaymentService, accounts AccountStore, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, accounts: accounts, logger: logger}
}

type setupRequest struct {
	SessionID     string `json:"session_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TutorID       string `json:"tutor_id"`
	TutorName     string `json:"tutor_name"`
	TutorEmail    string `json:"tutor_email"`
	StudentName   string `json:"student_name"`
	StudentEmail  string `json:"student_email"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	ForceTwoStage bool   `json:"force_two_stage"`
}

type setupResponse struct {
	ClientSecret      string `json:"client_secret"`
	PaymentIntentID   string `json:"payment_intent_id"`
	Amount            int64  `json:"amount"`
	IsTwoStagePayment bool   `json:"is_two_stage_payment"`
}

// Setup serves POST /api/v1/payments/setup for the authenticated student.
func (h *PaymentHandler) Setup(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := parseOptionalTime(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := parseOptionalTime(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	studentEmail := req.StudentEmail
	if studentEmail == "" {
		studentEmail = p.Email
	}
	studentName := req.StudentName
	if studentName == "" {
		studentName = p.Name
	}

	res, err := h.svc.Setup(r.Context(), payments.SetupRequest{
		SessionID:     req.SessionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TutorID:       req.TutorID,
		TutorName:     req.TutorName,
		TutorEmail:    req.TutorEmail,
		StudentID:     p.Sub,
		StudentName:   studentName,
		StudentEmail:  studentEmail,
		StartTime:     start,
		EndTime:       end,
		ForceTwoStage: req.ForceTwoStage,
	})
	if err != nil {
		h.writeError(w, "payment setup failed", err, "session_id", req.SessionID)
		return
	}
	writeJSON(w, http.StatusOK, setupResponse{
		ClientSecret:      res.ClientSecret,
		PaymentIntentID:   res.PaymentIntentID,
		Amount:            res.Amount,
		IsTwoStagePayment: res.TwoStage,
	})
}

type intentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// Intent serves POST /api/v1/payments/intent.
func (h *PaymentHandler) Intent(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.PaymentIntentID)
	if !strings.HasPrefix(id, "pi_") {
		http.Error(w, "payment_intent_id required", http.StatusBadRequest)
		return
	}
	intent, err := h.svc.Intent(r.Context(), id, p.Sub)
	if err != nil {
		h.writeError(w, "payment intent lookup failed", err, "payment_intent_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            intent.ID,
		"client_secret": intent.ClientSecret,
		"status":        intent.Status,
		"amount":        intent.Amount,
	})
}

type accountRequest struct {
	StripeAccountID string `json:"stripe_account_id"`
}

// PutAccount serves PUT /api/v1/payments/accounts: the tutor registers a connected account.
func (h *PaymentHandler) PutAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	account := strings.TrimSpace(req.StripeAccountID)
	if !strings.HasPrefix(account, "acct_") {
		http.Error(w, "stripe_account_id must start with acct_", http.StatusBadRequest)
		return
	}
	if err := h.accounts.UpsertConnectedAccount(r.Context(), p.Sub, account); err != nil {
		h.logger.Error("failed to save connected account", "err", err, "tutor_id", p.Sub)
		http.Error(w, "failed to save account", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tutor_id": p.Sub, "stripe_account_id": account})
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, msg string, err error, args ...any) {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, payments.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, payments.ErrIntentNotFound):
		http.Error(w, "payment intent not found", http.StatusNotFound)
	case errors.Is(err, payments.ErrAlreadyPaid):
		http.Error(w, "session already paid", http.StatusConflict)
	case errors.Is(err, payments.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":   "rate_limited",
			"message": "Too many requests to the payment processor. Please try again shortly.",
		})
	default:
		h.logger.Error(msg, append([]any{"err", err}, args...)...)
		http.Error(w, msg, http.StatusBadGateway)
	}
}

func parseOptionalTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
