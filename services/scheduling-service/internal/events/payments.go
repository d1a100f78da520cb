package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const TopicPaymentSucceeded = "payments.payment.succeeded.v1"

type Confirmer interface {
	ConfirmPaid(ctx context.Context, sessionID, paymentIntentID string) (model.Session, bool, error)
}

type paymentSucceeded struct {
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// PaymentSucceeded marks the paid session confirmed. Payloads that can never apply are
// logged and dropped; storage errors are returned so the consumer retries.
func PaymentSucceeded(store Confirmer, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt paymentSucceeded
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid payment event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if _, err := uuid.Parse(evt.SessionID); err != nil {
			logger.Error("payment event without a valid session_id", "topic", msg.Topic, "session_id", evt.SessionID)
			return nil
		}

		s, changed, err := store.ConfirmPaid(ctx, evt.SessionID, evt.PaymentIntentID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			logger.Warn("payment for unknown session", "session_id", evt.SessionID)
			return nil
		case err != nil:
			return err
		case changed:
			logger.Info("session confirmed", "session_id", s.ID, "payment_intent_id", evt.PaymentIntentID)
		case s.Status == model.StatusCancelled:
			logger.Warn("payment succeeded for a cancelled session; refund needed", "session_id", s.ID, "reason", s.CancelReason)
		}
		return nil
	}
}
