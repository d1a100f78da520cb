package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const TypeConfirmation = "confirmation"

// SessionEmail is the body accepted by the session-emails function.
type SessionEmail struct {
	SessionID    string  `json:"sessionId"`
	TutorEmail   string  `json:"tutorEmail"`
	TutorName    string  `json:"tutorName"`
	StudentEmail string  `json:"studentEmail"`
	StudentName  string  `json:"studentName"`
	StartTime    string  `json:"startTime"`
	EndTime      string  `json:"endTime"`
	Price        float64 `json:"price"`
	EmailType    string  `json:"emailType"`
}

type Sender interface {
	Send(ctx context.Context, e SessionEmail) error
	ProviderID() string
}

// WebhookSender posts the email request to an HTTP function that renders and delivers it.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "session-emails-webhook"
}

func (s *WebhookSender) Send(ctx context.Context, e SessionEmail) error {
	if s.url == "" {
		return fmt.Errorf("session emails url not configured")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("session emails webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SMTPSender renders plain-text confirmations itself and relays them over unauthenticated
// SMTP (Mailpit in development).
type SMTPSender struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@tutorbook.local"
	}
	return &SMTPSender{
		addr: strings.TrimSpace(host) + ":" + strings.TrimSpace(port),
		from: from,
		send: smtp.SendMail,
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

func (s *SMTPSender) Send(_ context.Context, e SessionEmail) error {
	when := e.StartTime
	if start, err := time.Parse(time.RFC3339, e.StartTime); err == nil {
		when = start.UTC().Format("Mon Jan 2 2006, 15:04 MST")
	}
	studentBody := fmt.Sprintf("Hi %s,\n\nYour session with %s on %s is confirmed.\nAmount paid: %.2f\nSession: %s\n",
		nameOr(e.StudentName, "there"), nameOr(e.TutorName, "your tutor"), when, e.Price, e.SessionID)
	tutorBody := fmt.Sprintf("Hi %s,\n\n%s booked and paid for a session on %s.\nSession: %s\n",
		nameOr(e.TutorName, "there"), nameOr(e.StudentName, "A student"), when, e.SessionID)

	if err := s.send(s.addr, nil, s.from, []string{e.StudentEmail}, buildMessage(s.from, e.StudentEmail, "Your tutoring session is confirmed", studentBody)); err != nil {
		return err
	}
	return s.send(s.addr, nil, s.from, []string{e.TutorEmail}, buildMessage(s.from, e.TutorEmail, "New session booked", tutorBody))
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, to, subject, body,
	))
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return strings.TrimSpace(name)
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "noop"
}

func (s *NoopSender) Send(_ context.Context, _ SessionEmail) error {
	return nil
}
