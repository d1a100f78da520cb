package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/libs/outbox"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("time range already booked")
	ErrForbidden = errors.New("not a participant of this session")
)

const (
	EventSessionRequested = "scheduling.session.requested.v1"
	EventSessionConfirmed = "scheduling.session.confirmed.v1"
	EventSessionCancelled = "scheduling.session.cancelled.v1"
)

const sessionColumns = `id::text, tutor_id, student_id, start_time, end_time, status, payment_status,
	COALESCE(payment_intent_id, ''), COALESCE(cancellation_reason, ''), cancelled_at, confirmed_at, created_at`

type SessionRepository struct {
	pool   *db.Pool
	outbox outbox.Writer
}

func NewSessionRepository(pool *db.Pool, outboxWriter outbox.Writer) *SessionRepository {
	return &SessionRepository{pool: pool, outbox: outboxWriter}
}

// Book inserts a pending session. With a non-empty idempotency key a repeated request
// returns the session created by the first one and replayed=true.
func (r *SessionRepository) Book(ctx context.Context, s model.Session, idempotencyKey string) (model.Session, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idempotencyKey != "" {
		prior, err := r.lockIdempotencyKey(ctx, tx, s.StudentID, idempotencyKey)
		if err != nil {
			return model.Session{}, false, err
		}
		if prior != "" {
			existing, err := getSession(ctx, tx, prior, false)
			if err != nil {
				return model.Session{}, false, err
			}
			return existing, true, tx.Commit(ctx)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO sessions (tutor_id, student_id, start_time, end_time, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		s.TutorID, s.StudentID, s.StartTime, s.EndTime, model.StatusPending, model.PaymentUnpaid)
	created, err := scanSession(row)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return model.Session{}, false, ErrConflict
		}
		return model.Session{}, false, err
	}

	if err := r.emit(ctx, tx, EventSessionRequested, created, nil); err != nil {
		return model.Session{}, false, err
	}
	if idempotencyKey != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE session_idempotency_keys
			SET session_id = $3, status_code = 201, updated_at = now()
			WHERE student_id = $1 AND idempotency_key = $2
		`, s.StudentID, idempotencyKey, created.ID); err != nil {
			return model.Session{}, false, err
		}
	}
	return created, false, tx.Commit(ctx)
}

func (r *SessionRepository) lockIdempotencyKey(ctx context.Context, tx pgx.Tx, studentID, key string) (string, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO session_idempotency_keys (student_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (student_id, idempotency_key) DO NOTHING
	`, studentID, key); err != nil {
		return "", err
	}
	var sessionID string
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(session_id::text, '')
		FROM session_idempotency_keys
		WHERE student_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, studentID, key).Scan(&sessionID)
	return sessionID, err
}

// ListBooked returns the tutor's non-cancelled sessions overlapping [start, end).
func (r *SessionRepository) ListBooked(ctx context.Context, tutorID string, start, end time.Time) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE tutor_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, tutorID, start, end)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Session, error) {
		return scanSession(row)
	})
}

// ListByParticipant lists sessions where userID is the student or, for tutors, the tutor.
func (r *SessionRepository) ListByParticipant(ctx context.Context, userID string, asTutor bool, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	column := "student_id"
	if asTutor {
		column = "tutor_id"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE `+column+` = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Session, error) {
		return scanSession(row)
	})
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (model.Session, error) {
	return getSession(ctx, r.pool, sessionID, false)
}

// Cancel releases the session's time range. Cancelling twice is a no-op.
func (r *SessionRepository) Cancel(ctx context.Context, sessionID, actorID, reason string) (model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := getSession(ctx, tx, sessionID, true)
	if err != nil {
		return model.Session{}, err
	}
	if actorID != s.StudentID && actorID != s.TutorID {
		return model.Session{}, ErrForbidden
	}
	if s.Status == model.StatusCancelled {
		return s, nil
	}

	row := tx.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'cancelled', cancelled_at = now(), cancellation_reason = $2
		WHERE id = $1
		RETURNING `+sessionColumns, sessionID, reason)
	cancelled, err := scanSession(row)
	if err != nil {
		return model.Session{}, err
	}
	if err := r.emit(ctx, tx, EventSessionCancelled, cancelled, map[string]any{"cancelled_by": actorID}); err != nil {
		return model.Session{}, err
	}
	return cancelled, tx.Commit(ctx)
}

// ConfirmPaid marks the session confirmed and paid. It reports false without changes when
// the session was already confirmed or has been cancelled meanwhile.
func (r *SessionRepository) ConfirmPaid(ctx context.Context, sessionID, paymentIntentID string) (model.Session, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := getSession(ctx, tx, sessionID, true)
	if err != nil {
		return model.Session{}, false, err
	}
	if s.Status == model.StatusCancelled || s.PaymentStatus == model.PaymentPaid {
		return s, false, tx.Commit(ctx)
	}

	row := tx.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'confirmed',
			payment_status = 'paid',
			payment_intent_id = NULLIF($2, ''),
			confirmed_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns, sessionID, paymentIntentID)
	confirmed, err := scanSession(row)
	if err != nil {
		return model.Session{}, false, err
	}
	if err := r.emit(ctx, tx, EventSessionConfirmed, confirmed, nil); err != nil {
		return model.Session{}, false, err
	}
	return confirmed, true, tx.Commit(ctx)
}

// CancelExpiredHolds cancels up to limit pending, unpaid sessions created before cutoff.
func (r *SessionRepository) CancelExpiredHolds(ctx context.Context, cutoff time.Time, reason string, limit int) ([]model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		WITH expired AS (
			SELECT id FROM sessions
			WHERE status = 'pending' AND payment_status = 'unpaid' AND created_at < $1
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sessions s
		SET status = 'cancelled', cancelled_at = now(), cancellation_reason = $2
		FROM expired
		WHERE s.id = expired.id
		RETURNING `+qualified("s"), cutoff, reason, limit)
	if err != nil {
		return nil, err
	}
	released, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, err
	}
	for _, s := range released {
		if err := r.emit(ctx, tx, EventSessionCancelled, s, map[string]any{"cancelled_by": "system"}); err != nil {
			return nil, err
		}
	}
	return released, tx.Commit(ctx)
}

func (r *SessionRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, s model.Session, extra map[string]any) error {
	payload := map[string]any{
		"session_id":     s.ID,
		"tutor_id":       s.TutorID,
		"student_id":     s.StudentID,
		"start_time":     s.StartTime.UTC().Format(time.RFC3339),
		"end_time":       s.EndTime.UTC().Format(time.RFC3339),
		"status":         s.Status,
		"payment_status": s.PaymentStatus,
	}
	if s.CancelReason != "" {
		payload["reason"] = s.CancelReason
	}
	for k, v := range extra {
		payload[k] = v
	}
	evt, err := outbox.NewEvent("session", s.ID, eventType, payload)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSession(ctx context.Context, q queryRower, sessionID string, forUpdate bool) (model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSession(q.QueryRow(ctx, query, sessionID))
	if db.IsNoRows(err) {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.TutorID, &s.StudentID, &s.StartTime, &s.EndTime, &s.Status, &s.PaymentStatus,
		&s.PaymentIntentID, &s.CancelReason, &s.CancelledAt, &s.ConfirmedAt, &s.CreatedAt)
	return s, err
}

func qualified(alias string) string {
	return alias + `.id::text, ` + alias + `.tutor_id, ` + alias + `.student_id, ` + alias + `.start_time, ` +
		alias + `.end_time, ` + alias + `.status, ` + alias + `.payment_status, COALESCE(` + alias +
		`.payment_intent_id, ''), COALESCE(` + alias + `.cancellation_reason, ''), ` + alias + `.cancelled_at, ` +
		alias + `.confirmed_at, ` + alias + `.created_at`
}
