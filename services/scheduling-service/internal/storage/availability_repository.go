package storage

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

// Get returns ErrNotFound when the tutor never saved availability.
func (r *AvailabilityRepository) Get(ctx context.Context, tutorID string) (model.TutorAvailability, error) {
	var a model.TutorAvailability
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT tutor_id, weekly, timezone, hourly_rate::float8, updated_at
		FROM tutor_availability
		WHERE tutor_id = $1
	`, tutorID).Scan(&a.TutorID, &raw, &a.Timezone, &a.HourlyRate, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.TutorAvailability{}, ErrNotFound
		}
		return model.TutorAvailability{}, err
	}
	if err := json.Unmarshal(raw, &a.Weekly); err != nil {
		return model.TutorAvailability{}, err
	}
	return a, nil
}

func (r *AvailabilityRepository) Upsert(ctx context.Context, a model.TutorAvailability) (model.TutorAvailability, error) {
	raw, err := json.Marshal(a.Weekly)
	if err != nil {
		return model.TutorAvailability{}, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO tutor_availability (tutor_id, weekly, timezone, hourly_rate, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tutor_id) DO UPDATE
		SET weekly = EXCLUDED.weekly,
			timezone = EXCLUDED.timezone,
			hourly_rate = EXCLUDED.hourly_rate,
			updated_at = now()
		RETURNING updated_at
	`, a.TutorID, raw, a.Timezone, a.HourlyRate).Scan(&a.UpdatedAt)
	if err != nil {
		return model.TutorAvailability{}, err
	}
	return a, nil
}
