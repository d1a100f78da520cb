package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/emails"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	TopicPaymentSucceeded = "payments.payment.succeeded.v1"
	TopicPaymentFailed    = "payments.payment.failed.v1"
)

type Store interface {
	Insert(ctx context.Context, n storage.Notification) (bool, error)
}

type paymentEvent struct {
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	TutorID         string `json:"tutor_id"`
	StudentID       string `json:"student_id"`
	TutorEmail      string `json:"tutor_email"`
	StudentEmail    string `json:"student_email"`
	TutorName       string `json:"tutor_name"`
	StudentName     string `json:"student_name"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	ErrorMessage    string `json:"error_message"`
}

// Handler routes both payment topics.
func Handler(store Store, sender emails.Sender, logger *slog.Logger) kafkax.Handler {
	succeeded := PaymentSucceeded(store, sender, logger)
	failed := PaymentFailed(store, logger)
	return func(ctx context.Context, msg kafka.Message) error {
		switch msg.Topic {
		case TopicPaymentFailed:
			return failed(ctx, msg)
		case TopicPaymentSucceeded:
			return succeeded(ctx, msg)
		default:
			logger.Warn("unexpected topic", "topic", msg.Topic)
			return nil
		}
	}
}

// PaymentSucceeded notifies the tutor of the booking and the student of the payment, then asks
// for confirmation emails. Email failures are logged, not retried.
func PaymentSucceeded(store Store, sender emails.Sender, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, ok := decode(msg, logger)
		if !ok {
			return nil
		}
		eventID := kafkax.ExtractEventMeta(msg).EventID
		meta := map[string]any{
			"sessionId": evt.SessionID,
			"amount":    float64(evt.Amount) / 100,
		}

		if evt.TutorID != "" {
			if _, err := store.Insert(ctx, storage.Notification{
				EventID:  eventID,
				UserID:   evt.TutorID,
				Type:     storage.TypeBookingConfirmed,
				Title:    "New Booking Confirmed",
				Message:  "A new session has been booked and paid for.",
				Metadata: meta,
			}); err != nil {
				return err
			}
		}
		var fresh bool
		if evt.StudentID != "" {
			var err error
			fresh, err = store.Insert(ctx, storage.Notification{
				EventID:  eventID,
				UserID:   evt.StudentID,
				Type:     storage.TypePaymentSuccess,
				Title:    "Payment Successful",
				Message:  "Your payment for the tutoring session has been processed.",
				Metadata: meta,
			})
			if err != nil {
				return err
			}
		}

		switch {
		case evt.TutorEmail == "" || evt.StudentEmail == "":
			logger.Info("confirmation emails skipped: participant email unknown", "session_id", evt.SessionID)
		case !fresh && evt.StudentID != "":
			logger.Info("confirmation emails already requested", "session_id", evt.SessionID)
		default:
			err := sender.Send(ctx, emails.SessionEmail{
				SessionID:    evt.SessionID,
				TutorEmail:   evt.TutorEmail,
				TutorName:    evt.TutorName,
				StudentEmail: evt.StudentEmail,
				StudentName:  evt.StudentName,
				StartTime:    evt.StartTime,
				EndTime:      evt.EndTime,
				Price:        float64(evt.Amount) / 100,
				EmailType:    emails.TypeConfirmation,
			})
			if err != nil {
				logger.Error("confirmation emails failed", "err", err, "session_id", evt.SessionID, "provider", sender.ProviderID())
			} else {
				logger.Info("confirmation emails requested", "session_id", evt.SessionID, "provider", sender.ProviderID())
			}
		}

		logger.Info("payment succeeded notifications stored", "session_id", evt.SessionID, "payment_intent_id", evt.PaymentIntentID)
		return nil
	}
}

// PaymentFailed notifies the student with the processor's message.
func PaymentFailed(store Store, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		evt, ok := decode(msg, logger)
		if !ok {
			return nil
		}
		if evt.StudentID == "" {
			logger.Warn("payment failure without student", "session_id", evt.SessionID)
			return nil
		}
		reason := strings.TrimSpace(evt.ErrorMessage)
		if reason == "" {
			reason = "Unknown error"
		}
		if _, err := store.Insert(ctx, storage.Notification{
			EventID: kafkax.ExtractEventMeta(msg).EventID,
			UserID:  evt.StudentID,
			Type:    storage.TypePaymentFailed,
			Title:   "Payment Failed",
			Message: "Your payment for the tutoring session could not be processed.",
			Metadata: map[string]any{
				"sessionId": evt.SessionID,
				"error":     reason,
			},
		}); err != nil {
			return err
		}
		logger.Info("payment failed notification stored", "session_id", evt.SessionID, "student_id", evt.StudentID)
		return nil
	}
}

func decode(msg kafka.Message, logger *slog.Logger) (paymentEvent, bool) {
	var evt paymentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		logger.Error("invalid payment event payload", "err", err, "topic", msg.Topic)
		return paymentEvent{}, false
	}
	if evt.SessionID == "" {
		logger.Error("payment event without session_id", "topic", msg.Topic)
		return paymentEvent{}, false
	}
	return evt, true
}
