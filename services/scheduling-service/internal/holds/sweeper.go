package holds

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

// ReasonPaymentTimeout is recorded on sessions released by the sweeper.
const ReasonPaymentTimeout = "payment_timeout"

type Store interface {
	CancelExpiredHolds(ctx context.Context, cutoff time.Time, reason string, limit int) ([]model.Session, error)
}

// Sweeper cancels pending sessions whose payment never completed, so abandoned checkouts
// do not keep the tutor's time blocked.
type Sweeper struct {
	store     Store
	logger    *slog.Logger
	hold      time.Duration
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Config struct {
	Hold      time.Duration
	Interval  time.Duration
	BatchSize int
}

func NewSweeper(store Store, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Hold <= 0 {
		cfg.Hold = 30 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		store:     store,
		logger:    logger,
		hold:      cfg.Hold,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		now:       time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("hold sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce drains expired holds batch by batch and returns how many were released.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.hold)
	total := 0
	for {
		released, err := s.store.CancelExpiredHolds(ctx, cutoff, ReasonPaymentTimeout, s.batchSize)
		if err != nil {
			return total, err
		}
		for _, sess := range released {
			s.logger.Info("session hold expired", "session_id", sess.ID, "tutor_id", sess.TutorID, "created_at", sess.CreatedAt)
		}
		total += len(released)
		if len(released) < s.batchSize || ctx.Err() != nil {
			return total, nil
		}
	}
}
