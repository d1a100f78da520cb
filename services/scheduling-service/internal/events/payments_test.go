package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeConfirmer struct {
	calls []string
	err   error
}

func (f *fakeConfirmer) ConfirmPaid(_ context.Context, sessionID, paymentIntentID string) (model.Session, bool, error) {
	f.calls = append(f.calls, sessionID+"/"+paymentIntentID)
	if f.err != nil {
		return model.Session{}, false, f.err
	}
	return model.Session{ID: sessionID, Status: model.StatusConfirmed, PaymentStatus: model.PaymentPaid}, true, nil
}

func TestPaymentSucceededConfirmsSession(t *testing.T) {
	store := &fakeConfirmer{}
	h := PaymentSucceeded(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	msg := kafka.Message{Topic: TopicPaymentSucceeded, Value: []byte(`{"session_id":"6f1c2a8e-1d2b-4c3d-9e8f-0a1b2c3d4e5f","payment_intent_id":"pi_1"}`)}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.calls) != 1 || store.calls[0] != "6f1c2a8e-1d2b-4c3d-9e8f-0a1b2c3d4e5f/pi_1" {
		t.Fatalf("unexpected calls %v", store.calls)
	}
}

func TestPaymentSucceededDropsBadPayloads(t *testing.T) {
	store := &fakeConfirmer{}
	h := PaymentSucceeded(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, raw := range []string{`not json`, `{"session_id":"abc"}`, `{}`} {
		if err := h(context.Background(), kafka.Message{Value: []byte(raw)}); err != nil {
			t.Fatalf("payload %q should be dropped, got %v", raw, err)
		}
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
}

func TestPaymentSucceededRetriesStorageErrors(t *testing.T) {
	store := &fakeConfirmer{err: errors.New("db down")}
	h := PaymentSucceeded(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	msg := kafka.Message{Value: []byte(`{"session_id":"6f1c2a8e-1d2b-4c3d-9e8f-0a1b2c3d4e5f"}`)}
	if err := h(context.Background(), msg); err == nil {
		t.Fatal("expected storage error to be returned for retry")
	}
}
