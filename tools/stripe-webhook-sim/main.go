package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func main() {
	var (
		baseURL   = flag.String("base-url", getenv("BASE_URL", "http://localhost:8082"), "payment-service base url")
		evtType   = flag.String("type", getenv("STRIPE_EVENT_TYPE", "payment_intent.succeeded"), "stripe event type")
		intentID  = flag.String("payment-intent", getenv("PAYMENT_INTENT_ID", ""), "payment intent id (pi_...)")
		sessionID = flag.String("session-id", getenv("SESSION_ID", ""), "sessionId metadata")
		tutorID   = flag.String("tutor-id", getenv("TUTOR_ID", ""), "tutorId metadata")
		studentID = flag.String("student-id", getenv("STUDENT_ID", ""), "studentId metadata")
		amount    = flag.Int64("amount", 2500, "amount in cents")
		failure   = flag.String("failure-message", "Your card was declined.", "last_payment_error message for payment_failed")
		secret    = flag.String("secret", getenv("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*sessionID) == "" {
		fatal("SESSION_ID is required")
	}
	if *intentID == "" {
		*intentID = "pi_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}

	now := time.Now().UTC()
	eventID := "evt_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	payload, err := buildEventJSON(eventID, *evtType, now, intentObject{
		ID:        *intentID,
		Amount:    *amount,
		SessionID: *sessionID,
		TutorID:   *tutorID,
		StudentID: *studentID,
		Failure:   *failure,
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("event=%s payment_intent=%s status=%d body=%s\n", eventID, *intentID, resp.StatusCode, strings.TrimSpace(string(body)))
}

type intentObject struct {
	ID        string
	Amount    int64
	SessionID string
	TutorID   string
	StudentID string
	Failure   string
}

func buildEventJSON(eventID, eventType string, t time.Time, pi intentObject) ([]byte, error) {
	obj := map[string]any{
		"id":       pi.ID,
		"object":   "payment_intent",
		"amount":   pi.Amount,
		"currency": "usd",
		"created":  t.Unix(),
		"metadata": map[string]any{
			"sessionId": pi.SessionID,
			"tutorId":   pi.TutorID,
			"studentId": pi.StudentID,
		},
	}
	switch eventType {
	case "payment_intent.succeeded":
		obj["status"] = "succeeded"
	case "payment_intent.payment_failed":
		obj["status"] = "requires_payment_method"
		obj["last_payment_error"] = map[string]any{
			"type":    "card_error",
			"code":    "card_declined",
			"message": pi.Failure,
		}
	case "payment_intent.canceled":
		obj["status"] = "canceled"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": obj},
	})
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
