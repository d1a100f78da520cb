package bookingflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/availability"
)

const (
	DefaultMinInterval     = 2 * time.Second
	DefaultProcessingDelay = 3 * time.Second
)

type Config struct {
	Tutor    Tutor
	Currency string
	// Location interprets slot wall-clock times; defaults to UTC.
	Location        *time.Location
	MinInterval     time.Duration
	ProcessingDelay time.Duration
	Logger          *slog.Logger
	// OnChange, when set, receives every snapshot after a transition, including the
	// delayed processing -> closed one.
	OnChange func(Snapshot)
}

type timer interface {
	Stop() bool
}

// Flow drives one booking modal: slot selection, session reservation, payment setup and
// confirmation. All methods are safe for concurrent use. Collaborator calls run without
// the lock held; their results are applied only if no reset happened meanwhile.
type Flow struct {
	cfg      Config
	sessions SessionCreator
	payments PaymentSetter
	limiter  *MinIntervalLimiter
	logger   *slog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer

	mu         sync.Mutex
	user       *User
	state      State
	notice     Notice
	busy       bool
	generation uint64
	closeTimer timer
}

func New(sessions SessionCreator, payments PaymentSetter, cfg Config) *Flow {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = DefaultProcessingDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Flow{
		cfg:      cfg,
		sessions: sessions,
		payments: payments,
		limiter:  NewMinIntervalLimiter(cfg.MinInterval),
		logger:   logger.With("tutor_id", cfg.Tutor.ID),
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		state: SelectingSlot{},
	}
}

// Snapshot returns the current read state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// SetUser records the signed-in user; nil means signed out. Signing in clears a pending
// auth prompt so the student can pick a slot again from the top.
func (f *Flow) SetUser(u *User) Snapshot {
	f.mu.Lock()
	if u != nil {
		cp := *u
		f.user = &cp
	} else {
		f.user = nil
	}
	if st, ok := f.state.(SelectingSlot); ok && st.AuthRequired && u != nil {
		f.state = SelectingSlot{}
		f.notice = NoticeNone
	}
	return f.unlockAndNotify()
}

// Open starts a fresh attempt after the flow was closed.
func (f *Flow) Open() Snapshot {
	f.mu.Lock()
	if _, closed := f.state.(Closed); closed {
		f.state = SelectingSlot{}
		f.notice = NoticeNone
	}
	return f.unlockAndNotify()
}

// SelectSlot reserves slot and sets up payment for it. It blocks until both
// collaborator calls return or the attempt is cancelled. Unavailable or empty slots are ignored.
func (f *Flow) SelectSlot(ctx context.Context, slot availability.BookingSlot) Snapshot {
	f.mu.Lock()
	if _, ok := f.state.(SelectingSlot); !ok || f.busy {
		return f.unlockAndNotify()
	}
	// Same as pressing on a taken cell: nothing happens.
	if !slot.Available || slot.End <= slot.Start {
		return f.unlockAndNotify()
	}
	if f.user == nil {
		f.state = SelectingSlot{AuthRequired: true}
		f.notice = NoticeAuthRequired
		return f.unlockAndNotify()
	}
	if !f.limiter.Allow(f.now()) {
		f.notice = NoticeRateLimited
		return f.unlockAndNotify()
	}

	gen := f.generation
	user := *f.user
	f.busy = true
	f.notice = NoticeNone
	f.state = SelectingSlot{}
	f.mu.Unlock()
	f.emit()

	start := slot.Day.At(slot.Start, f.cfg.Location)
	end := slot.Day.At(slot.End, f.cfg.Location)
	session, err := f.sessions.CreateSession(ctx, user.ID, f.cfg.Tutor.ID, start, end)

	f.mu.Lock()
	if gen != f.generation {
		f.logger.Debug("discarding stale session response", "generation", gen)
		return f.unlockAndNotify()
	}
	if err != nil {
		f.busy = false
		f.state = SelectingSlot{}
		if errors.Is(err, ErrConflict) {
			f.notice = NoticeSlotTaken
			f.logger.Info("slot taken before reservation", "day", slot.Day, "start", slot.Start)
		} else {
			f.notice = NoticeSessionFailed
			f.logger.Warn("session creation failed", "err", err)
		}
		return f.unlockAndNotify()
	}

	waiting := AwaitingPayment{Slot: slot, SessionID: session.ID}
	f.state = waiting
	req := f.paymentRequestLocked(waiting, user, false)
	f.mu.Unlock()
	f.emit()

	return f.applySetup(ctx, gen, req)
}

// RetryPayment re-runs payment setup for the existing session in two-stage mode. It never
// creates another session.
func (f *Flow) RetryPayment(ctx context.Context) Snapshot {
	f.mu.Lock()
	waiting, ok := f.state.(AwaitingPayment)
	if !ok || waiting.SessionID == "" || f.user == nil {
		f.notice = NoticeMissingSession
		return f.unlockAndNotify()
	}
	if f.busy {
		return f.unlockAndNotify()
	}
	if !f.limiter.Allow(f.now()) {
		f.notice = NoticeRateLimited
		return f.unlockAndNotify()
	}

	gen := f.generation
	f.busy = true
	f.notice = NoticeNone
	req := f.paymentRequestLocked(waiting, *f.user, true)
	f.mu.Unlock()
	f.emit()

	return f.applySetup(ctx, gen, req)
}

func (f *Flow) applySetup(ctx context.Context, gen uint64, req PaymentRequest) Snapshot {
	res, err := f.payments.SetupPayment(ctx, req)

	f.mu.Lock()
	if gen != f.generation {
		f.logger.Debug("discarding stale payment setup response", "generation", gen)
		return f.unlockAndNotify()
	}
	f.busy = false
	waiting, ok := f.state.(AwaitingPayment)
	if !ok {
		return f.unlockAndNotify()
	}
	if err != nil {
		waiting.SetupErr = err
		f.notice = NoticePaymentSetupFailed
		f.logger.Warn("payment setup failed", "err", err, "session_id", req.SessionID, "two_stage", req.ForceTwoStage)
	} else {
		waiting.Payment = &res
		waiting.SetupErr = nil
	}
	f.state = waiting
	return f.unlockAndNotify()
}

// CompletePayment is called once the processor confirmed the payment on the client.
// The flow shows processing and closes itself after the configured delay.
func (f *Flow) CompletePayment() Snapshot {
	f.mu.Lock()
	waiting, ok := f.state.(AwaitingPayment)
	if !ok || waiting.Payment == nil {
		return f.unlockAndNotify()
	}
	f.state = Processing{SessionID: waiting.SessionID}
	f.notice = NoticeNone
	gen := f.generation
	f.closeTimer = f.afterFunc(f.cfg.ProcessingDelay, func() {
		f.mu.Lock()
		if gen != f.generation {
			f.mu.Unlock()
			return
		}
		f.resetLocked()
		f.unlockAndNotify()
	})
	return f.unlockAndNotify()
}

// Cancel closes the flow from any state. Local state is cleared at once and any in-flight
// collaborator response is discarded when it arrives.
func (f *Flow) Cancel() Snapshot {
	f.mu.Lock()
	f.resetLocked()
	return f.unlockAndNotify()
}

func (f *Flow) resetLocked() {
	f.generation++
	f.state = Closed{}
	f.notice = NoticeNone
	f.busy = false
	if f.closeTimer != nil {
		f.closeTimer.Stop()
		f.closeTimer = nil
	}
}

func (f *Flow) paymentRequestLocked(w AwaitingPayment, user User, forceTwoStage bool) PaymentRequest {
	return PaymentRequest{
		SessionID:     w.SessionID,
		Amount:        AmountCents(w.Slot, f.cfg.Tutor.HourlyRate),
		Currency:      f.cfg.Currency,
		Tutor:         f.cfg.Tutor,
		User:          user,
		Start:         w.Slot.Day.At(w.Slot.Start, f.cfg.Location),
		End:           w.Slot.Day.At(w.Slot.End, f.cfg.Location),
		ForceTwoStage: forceTwoStage,
	}
}

func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{State: f.state, Notice: f.notice, Busy: f.busy}
}

// unlockAndNotify releases f.mu and reports the snapshot taken under it.
func (f *Flow) unlockAndNotify() Snapshot {
	snap := f.snapshotLocked()
	f.mu.Unlock()
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(snap)
	}
	return snap
}

func (f *Flow) emit() {
	if f.cfg.OnChange != nil {
		f.cfg.OnChange(f.Snapshot())
	}
}
