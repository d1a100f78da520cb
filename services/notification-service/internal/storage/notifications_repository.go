package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
)

var ErrNotFound = errors.New("notification not found")

const (
	TypeBookingConfirmed = "booking_confirmed"
	TypePaymentSuccess   = "payment_success"
	TypePaymentFailed    = "payment_failed"
)

type Notification struct {
	ID        string
	EventID   string
	UserID    string
	Type      string
	Title     string
	Message   string
	Metadata  map[string]any
	ReadAt    *time.Time
	CreatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores n once per (event, user, type); a redelivered event is a no-op.
func (r *Repository) Insert(ctx context.Context, n Notification) (bool, error) {
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, user_id, type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, user_id, type) DO NOTHING
	`, n.EventID, n.UserID, n.Type, n.Title, n.Message, metadata)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, event_id, user_id, type, title, message, metadata, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2::boolean OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var raw []byte
		if err := rows.Scan(&n.ID, &n.EventID, &n.UserID, &n.Type, &n.Title, &n.Message, &raw, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &n.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead sets read_at on the user's notification; reading twice keeps the first timestamp.
func (r *Repository) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
