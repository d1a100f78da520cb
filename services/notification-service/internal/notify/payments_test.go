package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/emails"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	items []storage.Notification
	seen  map[string]bool
	err   error
}

func (m *memStore) Insert(_ context.Context, n storage.Notification) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := n.EventID + "|" + n.UserID + "|" + n.Type
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	m.items = append(m.items, n)
	return true, nil
}

type recordingSender struct {
	sent []emails.SessionEmail
	err  error
}

func (s *recordingSender) Send(_ context.Context, e emails.SessionEmail) error {
	s.sent = append(s.sent, e)
	return s.err
}

func (s *recordingSender) ProviderID() string { return "test" }

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func message(topic, eventID, value string) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Value:   []byte(value),
		Headers: kafkax.EventMeta{EventID: eventID, EventType: topic}.Headers(),
	}
}

const succeededPayload = `{"session_id":"sess-1","payment_intent_id":"pi_1","amount":2500,"currency":"usd",
	"tutor_id":"tutor-1","student_id":"student-1","tutor_email":"t@example.com","student_email":"s@example.com",
	"tutor_name":"Ada","student_name":"Sam","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T09:30:00Z"}`

func TestPaymentSucceededNotifiesBothParties(t *testing.T) {
	store := &memStore{seen: map[string]bool{}}
	sender := &recordingSender{}
	h := Handler(store, sender, discard)

	if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-1", succeededPayload)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.items))
	}
	tutor, student := store.items[0], store.items[1]
	if tutor.UserID != "tutor-1" || tutor.Type != storage.TypeBookingConfirmed || tutor.Title != "New Booking Confirmed" {
		t.Fatalf("unexpected tutor notification: %+v", tutor)
	}
	if student.UserID != "student-1" || student.Type != storage.TypePaymentSuccess {
		t.Fatalf("unexpected student notification: %+v", student)
	}
	if student.Metadata["sessionId"] != "sess-1" || student.Metadata["amount"] != 25.0 {
		t.Fatalf("unexpected metadata: %v", student.Metadata)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one email request, got %d", len(sender.sent))
	}
	e := sender.sent[0]
	if e.EmailType != emails.TypeConfirmation || e.Price != 25 || e.TutorEmail != "t@example.com" || e.StudentName != "Sam" {
		t.Fatalf("unexpected email: %+v", e)
	}

	// Redelivery stores nothing new and does not email again.
	if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-1", succeededPayload)); err != nil {
		t.Fatalf("handler replay: %v", err)
	}
	if len(store.items) != 2 || len(sender.sent) != 1 {
		t.Fatalf("replay had side effects: %d notifications, %d emails", len(store.items), len(sender.sent))
	}
}

func TestPaymentSucceededWithoutEmailsSkipsSender(t *testing.T) {
	store := &memStore{seen: map[string]bool{}}
	sender := &recordingSender{}
	h := PaymentSucceeded(store, sender, discard)

	payload := `{"session_id":"sess-2","amount":5000,"tutor_id":"tutor-1","student_id":"student-1","student_email":"s@example.com"}`
	if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-2", payload)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email without tutor email")
	}
	if len(store.items) != 2 {
		t.Fatalf("expected notifications regardless of emails")
	}
}

func TestPaymentSucceededEmailFailureIsNotRetried(t *testing.T) {
	store := &memStore{seen: map[string]bool{}}
	sender := &recordingSender{err: errors.New("smtp down")}
	h := PaymentSucceeded(store, sender, discard)
	if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-3", succeededPayload)); err != nil {
		t.Fatalf("email failure must not fail the handler: %v", err)
	}
}

func TestPaymentFailedNotifiesStudent(t *testing.T) {
	store := &memStore{seen: map[string]bool{}}
	h := Handler(store, &recordingSender{}, discard)

	payload := `{"session_id":"sess-1","student_id":"student-1","tutor_id":"tutor-1","error_message":"Your card was declined."}`
	if err := h(context.Background(), message(TopicPaymentFailed, "evt-4", payload)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.items) != 1 {
		t.Fatalf("expected one notification, got %d", len(store.items))
	}
	n := store.items[0]
	if n.UserID != "student-1" || n.Type != storage.TypePaymentFailed || n.Metadata["error"] != "Your card was declined." {
		t.Fatalf("unexpected notification: %+v", n)
	}

	if err := h(context.Background(), message(TopicPaymentFailed, "evt-5", `{"session_id":"sess-1","student_id":"student-1"}`)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if store.items[1].Metadata["error"] != "Unknown error" {
		t.Fatalf("expected default reason, got %v", store.items[1].Metadata["error"])
	}
}

func TestInvalidPayloadsAreDropped(t *testing.T) {
	store := &memStore{seen: map[string]bool{}}
	h := Handler(store, &recordingSender{}, discard)
	for _, body := range []string{`not json`, `{"amount":1}`} {
		if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-x", body)); err != nil {
			t.Fatalf("expected drop, got %v", err)
		}
	}
	if len(store.items) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestStoreErrorsAreReturned(t *testing.T) {
	store := &memStore{seen: map[string]bool{}, err: errors.New("db down")}
	h := Handler(store, &recordingSender{}, discard)
	if err := h(context.Background(), message(TopicPaymentSucceeded, "evt-6", succeededPayload)); err == nil {
		t.Fatalf("expected error so the consumer retries")
	}
}
