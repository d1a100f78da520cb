package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/libs/outbox"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateProviderEvent = errors.New("duplicate provider event")
)

const (
	EventPaymentSucceeded = "payments.payment.succeeded.v1"
	EventPaymentFailed    = "payments.payment.failed.v1"
)

const transactionColumns = `id::text, session_id, tutor_id, student_id, amount, currency, mode, status,
	COALESCE(payment_intent_id, ''), COALESCE(failure_message, ''), created_at, updated_at, completed_at`

type Repository struct {
	pool   *db.Pool
	outbox outbox.Writer
}

func NewRepository(pool *db.Pool, outboxWriter outbox.Writer) *Repository {
	return &Repository{pool: pool, outbox: outboxWriter}
}

// ConnectedAccount returns the tutor's payout account, or "" when none is registered.
func (r *Repository) ConnectedAccount(ctx context.Context, tutorID string) (string, error) {
	var account string
	err := r.pool.QueryRow(ctx, `SELECT stripe_account_id FROM payment_accounts WHERE tutor_id = $1`, tutorID).Scan(&account)
	if db.IsNoRows(err) {
		return "", nil
	}
	return account, err
}

func (r *Repository) UpsertConnectedAccount(ctx context.Context, tutorID, accountID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_accounts (tutor_id, stripe_account_id)
		VALUES ($1, $2)
		ON CONFLICT (tutor_id)
		DO UPDATE SET stripe_account_id = EXCLUDED.stripe_account_id, updated_at = now()
	`, tutorID, accountID)
	return err
}

// LatestTransaction returns the most recent transaction for a session.
func (r *Repository) LatestTransaction(ctx context.Context, sessionID string) (model.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID))
	if db.IsNoRows(err) {
		return model.Transaction{}, ErrNotFound
	}
	return t, err
}

func (r *Repository) CreateTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `
		INSERT INTO payment_transactions (session_id, tutor_id, student_id, amount, currency, mode, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+transactionColumns,
		t.SessionID, t.TutorID, t.StudentID, t.Amount, t.Currency, t.Mode, model.StatusPending))
}

// AttachIntent records the processor intent and moves the transaction to processing.
func (r *Repository) AttachIntent(ctx context.Context, transactionID, intentID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions
		SET payment_intent_id = $2, status = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, transactionID, intentID, model.StatusProcessing, model.StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close moves an open transaction to failed or canceled. Closed transactions are left alone.
func (r *Repository) Close(ctx context.Context, transactionID, status, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $2, failure_message = $3, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, transactionID, status, nullIfEmpty(message))
	return err
}

// ListStale returns processing transactions that have not moved since before cutoff.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE status = 'processing' AND payment_intent_id IS NOT NULL AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// RecordProviderEvent stores a processor event exactly once and, when outcome is set,
// applies it to the matching transaction and emits the payment event in the same transaction.
// A replayed event returns ErrDuplicateProviderEvent without side effects.
func (r *Repository) RecordProviderEvent(ctx context.Context, evt ProviderEvent, outcome *model.IntentOutcome) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertProviderEvent(ctx, tx, evt); err != nil {
		return false, err
	}

	applied := false
	if outcome != nil {
		applied, err = r.applyOutcome(ctx, tx, *outcome)
		if err != nil {
			return false, err
		}
	}
	return applied, tx.Commit(ctx)
}

func (r *Repository) applyOutcome(ctx context.Context, tx pgx.Tx, o model.IntentOutcome) (bool, error) {
	t, err := scanTransaction(tx.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM payment_transactions
		WHERE payment_intent_id = $1
		FOR UPDATE
	`, o.Intent.ID))
	found := err == nil
	if err != nil && !db.IsNoRows(err) {
		return false, err
	}
	if found && !t.Open() {
		return false, nil
	}

	status := model.StatusFailed
	switch {
	case o.Succeeded:
		status = model.StatusCompleted
	case o.Canceled:
		status = model.StatusCanceled
	}

	if found {
		if _, err := tx.Exec(ctx, `
			UPDATE payment_transactions
			SET status = $2,
			    failure_message = $3,
			    completed_at = CASE WHEN $2 = 'completed' THEN now() ELSE completed_at END,
			    updated_at = now()
			WHERE id = $1
		`, t.ID, status, nullIfEmpty(o.Intent.LastError)); err != nil {
			return false, err
		}
	}

	if o.Canceled {
		return found, nil
	}
	payload := eventPayload(t, found, o)
	if payload["session_id"] == "" {
		return found, nil
	}
	eventType := EventPaymentFailed
	if o.Succeeded {
		eventType = EventPaymentSucceeded
	}
	out, err := outbox.NewEvent("payment", o.Intent.ID, eventType, payload)
	if err != nil {
		return false, err
	}
	if err := r.outbox.Insert(ctx, tx, out); err != nil {
		return false, err
	}
	return true, nil
}

// eventPayload prefers the stored transaction and falls back to intent metadata for intents
// created outside this service.
func eventPayload(t model.Transaction, found bool, o model.IntentOutcome) map[string]any {
	meta := o.Intent.Metadata
	payload := map[string]any{
		"session_id":        strings.TrimSpace(meta[model.MetaSessionID]),
		"payment_intent_id": o.Intent.ID,
		"amount":            o.Intent.Amount,
		"currency":          o.Intent.Currency,
		"tutor_id":          meta[model.MetaTutorID],
		"student_id":        meta[model.MetaStudentID],
		"tutor_email":       meta[model.MetaTutorEmail],
		"student_email":     meta[model.MetaStudentEmail],
		"tutor_name":        meta[model.MetaTutorName],
		"student_name":      meta[model.MetaStudentName],
		"start_time":        meta[model.MetaStartTime],
		"end_time":          meta[model.MetaEndTime],
		"is_two_stage":      meta[model.MetaPaymentMode] == model.ModeTwoStage,
	}
	if found {
		payload["transaction_id"] = t.ID
		payload["session_id"] = t.SessionID
		payload["tutor_id"] = t.TutorID
		payload["student_id"] = t.StudentID
		payload["is_two_stage"] = t.Mode == model.ModeTwoStage
	}
	if !o.Succeeded {
		msg := o.Intent.LastError
		if msg == "" {
			msg = "Payment failed"
		}
		payload["error_message"] = msg
	}
	return payload
}

func insertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.SessionID, &t.TutorID, &t.StudentID, &t.Amount, &t.Currency, &t.Mode, &t.Status,
		&t.PaymentIntentID, &t.FailureMessage, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	return t, err
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// ReconcileEventID keys synthetic provider events so a reconciled outcome is applied once.
func ReconcileEventID(intentID, status string) string {
	return "reconcile:" + intentID + ":" + status
}

