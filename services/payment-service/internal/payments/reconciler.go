package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/storage"
)

type ReconcileStore interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Transaction, error)
	RecordProviderEvent(ctx context.Context, evt storage.ProviderEvent, outcome *model.IntentOutcome) (bool, error)
}

// Reconciler settles processing transactions whose webhook never arrived by asking the
// processor for the intent's current status.
type Reconciler struct {
	pool        *db.Pool
	store       ReconcileStore
	gateway     IntentGateway
	logger      *slog.Logger
	staleAfter  time.Duration
	batchSize   int
	advisoryKey int64
	now         func() time.Time
}

type ReconcilerConfig struct {
	StaleAfter      time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

func NewReconciler(pool *db.Pool, store ReconcileStore, gateway IntentGateway, logger *slog.Logger, cfg ReconcilerConfig) *Reconciler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 7305001
	}
	return &Reconciler{
		pool:        pool,
		store:       store,
		gateway:     gateway,
		logger:      logger,
		staleAfter:  cfg.StaleAfter,
		batchSize:   cfg.BatchSize,
		advisoryKey: cfg.AdvisoryLockKey,
		now:         time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Only the instance holding the advisory lock reconciles.
	for {
		if ctx.Err() != nil {
			return
		}
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("payment reconcile: failed to acquire advisory lock", "err", err)
			sleep(ctx, 5*time.Second)
			continue
		}
		if !locked {
			r.logger.Info("payment reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
			sleep(ctx, 30*time.Second)
			continue
		}
		r.logger.Info("payment reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
		defer func() {
			_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
		}()
		break
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.ReconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce checks one batch of stale transactions and returns how many were settled.
func (r *Reconciler) ReconcileOnce(ctx context.Context) int {
	stale, err := r.store.ListStale(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		r.logger.Error("payment reconcile: failed to list transactions", "err", err)
		return 0
	}

	settled := 0
	for _, t := range stale {
		if ctx.Err() != nil {
			return settled
		}
		intent, err := r.gateway.Get(ctx, t.PaymentIntentID)
		if err != nil {
			r.logger.Warn("payment reconcile: failed to fetch intent", "err", err, "payment_intent_id", t.PaymentIntentID)
			continue
		}

		var outcome *model.IntentOutcome
		switch intent.Status {
		case "succeeded":
			outcome = &model.IntentOutcome{Intent: intent, Succeeded: true}
		case "canceled":
			outcome = &model.IntentOutcome{Intent: intent, Canceled: true}
		case "requires_payment_method":
			if intent.LastError == "" {
				continue
			}
			outcome = &model.IntentOutcome{Intent: intent}
		default:
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"payment_intent_id": intent.ID,
			"status":            intent.Status,
			"transaction_id":    t.ID,
		})
		if err != nil {
			continue
		}
		_, err = r.store.RecordProviderEvent(ctx, storage.ProviderEvent{
			Provider:        "reconcile",
			ProviderEventID: storage.ReconcileEventID(intent.ID, intent.Status),
			EventType:       "payment_intent." + intent.Status,
			Payload:         payload,
		}, outcome)
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			continue
		}
		if err != nil {
			r.logger.Warn("payment reconcile: apply failed", "err", err, "payment_intent_id", intent.ID)
			continue
		}
		settled++
		r.logger.Info("payment reconciled", "payment_intent_id", intent.ID, "status", intent.Status, "session_id", t.SessionID)
	}
	return settled
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
