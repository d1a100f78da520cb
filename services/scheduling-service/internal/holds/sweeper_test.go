package holds

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

type fakeStore struct {
	batches [][]model.Session
	cutoffs []time.Time
	reasons []string
	err     error
}

func (f *fakeStore) CancelExpiredHolds(_ context.Context, cutoff time.Time, reason string, limit int) ([]model.Session, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.reasons = append(f.reasons, reason)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	if len(b) > limit {
		b = b[:limit]
	}
	return b, nil
}

func TestSweepOnceDrainsBatches(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{batches: [][]model.Session{
		{{ID: "a"}, {ID: "b"}},
		{{ID: "c"}},
	}}
	s := NewSweeper(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Hold: 30 * time.Minute, BatchSize: 2})
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 released, got %d", n)
	}
	if len(store.cutoffs) != 2 {
		t.Fatalf("expected a second batch after a full one, got %d calls", len(store.cutoffs))
	}
	if want := now.Add(-30 * time.Minute); !store.cutoffs[0].Equal(want) {
		t.Fatalf("cutoff = %s, want %s", store.cutoffs[0], want)
	}
	if store.reasons[0] != ReasonPaymentTimeout {
		t.Fatalf("unexpected reason %q", store.reasons[0])
	}
}

func TestSweepOnceReturnsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	s := NewSweeper(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	if _, err := s.SweepOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
