package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/payments"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type EventRecorder interface {
	RecordProviderEvent(ctx context.Context, evt storage.ProviderEvent, outcome *model.IntentOutcome) (bool, error)
}

type WebhookHandler struct {
	recorder  EventRecorder
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func NewWebhookHandler(recorder EventRecorder, logger *slog.Logger, secret string, tolerance time.Duration) *WebhookHandler {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{recorder: recorder, logger: logger, secret: strings.TrimSpace(secret), tolerance: tolerance}
}

// Stripe serves POST /api/v1/payments/webhooks/stripe. There is no JWT here; the signature
// is the authentication.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.secret, webhook.ConstructEventOptions{
		Tolerance:                h.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	var outcome *model.IntentOutcome
	switch evtType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			h.logger.Error("stripe: invalid payment intent payload", "err", err, "provider_event_id", evt.ID)
			break
		}
		outcome = &model.IntentOutcome{
			Intent:    payments.IntentFromStripe(&pi),
			Succeeded: evtType == "payment_intent.succeeded",
			Canceled:  evtType == "payment_intent.canceled",
		}
		if !outcome.Succeeded && !outcome.Canceled && outcome.Intent.LastError == "" {
			outcome.Intent.LastError = "Payment failed"
		}
	default:
		h.logger.Info("stripe event ignored", "event_type", evtType)
	}

	applied, err := h.recorder.RecordProviderEvent(r.Context(), storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}, outcome)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		h.logger.Error("failed to record provider event", "err", err, "provider_event_id", evt.ID)
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if outcome != nil {
		h.logger.Info("payment intent outcome applied",
			"payment_intent_id", outcome.Intent.ID,
			"session_id", outcome.Intent.Metadata[model.MetaSessionID],
			"event_type", evtType,
			"applied", applied,
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
