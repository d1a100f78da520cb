package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/model"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/storage"
)

var (
	ErrInvalidRequest = errors.New("invalid payment request")
	ErrAlreadyPaid    = errors.New("session already paid")
	ErrForbidden      = errors.New("session belongs to another student")
	ErrIntentNotFound = errors.New("payment intent not found")
)

type Store interface {
	ConnectedAccount(ctx context.Context, tutorID string) (string, error)
	LatestTransaction(ctx context.Context, sessionID string) (model.Transaction, error)
	CreateTransaction(ctx context.Context, t model.Transaction) (model.Transaction, error)
	AttachIntent(ctx context.Context, transactionID, intentID string) error
	Close(ctx context.Context, transactionID, status, message string) error
}

type SetupRequest struct {
	SessionID     string
	Amount        int64
	Currency      string
	TutorID       string
	TutorName     string
	TutorEmail    string
	StudentID     string
	StudentName   string
	StudentEmail  string
	StartTime     time.Time
	EndTime       time.Time
	ForceTwoStage bool
}

type SetupResult struct {
	ClientSecret    string
	PaymentIntentID string
	Amount          int64
	TwoStage        bool
	Reused          bool
}

type Config struct {
	DefaultCurrency string
	MaxAmount       int64
	// FeeBasisPoints is the platform fee taken from single-stage payments (100 = 1%).
	FeeBasisPoints int64
}

type Service struct {
	store   Store
	gateway IntentGateway
	logger  *slog.Logger
	cfg     Config
}

func NewService(store Store, gateway IntentGateway, logger *slog.Logger, cfg Config) *Service {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "usd"
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 1_000_000
	}
	return &Service{store: store, gateway: gateway, logger: logger, cfg: cfg}
}

// reusable intent statuses: the customer can still complete them.
var reusable = map[string]bool{
	"requires_payment_method": true,
	"requires_confirmation":   true,
	"requires_action":         true,
	"processing":              true,
}

// Setup returns a payment intent for the session. A repeated call for the same session and
// mode hands back the live intent; a mode change (retry escalated to two-stage) cancels the
// previous intent before creating a new one, so a session never has two payable intents.
func (s *Service) Setup(ctx context.Context, req SetupRequest) (SetupResult, error) {
	if err := s.validate(&req); err != nil {
		return SetupResult{}, err
	}

	account, err := s.store.ConnectedAccount(ctx, req.TutorID)
	if err != nil {
		return SetupResult{}, err
	}
	twoStage := req.ForceTwoStage || account == ""
	mode := model.ModeSingleStage
	if twoStage {
		mode = model.ModeTwoStage
	}

	latest, err := s.store.LatestTransaction(ctx, req.SessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return SetupResult{}, err
	default:
		if latest.StudentID != req.StudentID {
			return SetupResult{}, ErrForbidden
		}
		if latest.Status == model.StatusCompleted {
			return SetupResult{}, ErrAlreadyPaid
		}
		if latest.Open() {
			res, done, err := s.reuseOrRelease(ctx, latest, mode, req.Amount)
			if err != nil || done {
				return res, err
			}
		}
	}

	t, err := s.store.CreateTransaction(ctx, model.Transaction{
		SessionID: req.SessionID,
		TutorID:   req.TutorID,
		StudentID: req.StudentID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Mode:      mode,
	})
	if err != nil {
		return SetupResult{}, err
	}

	params := CreateIntentParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    fmt.Sprintf("Tutoring session with %s", strings.TrimSpace(req.TutorName)),
		Metadata:       metadata(req, mode),
		IdempotencyKey: req.SessionID + ":" + mode + ":" + t.ID,
	}
	if twoStage {
		params.TransferGroup = req.SessionID
	} else {
		params.Destination = account
		params.ApplicationFee = req.Amount * s.cfg.FeeBasisPoints / 10_000
	}

	intent, err := s.gateway.Create(ctx, params)
	if err != nil {
		if cerr := s.store.Close(ctx, t.ID, model.StatusFailed, err.Error()); cerr != nil {
			s.logger.Error("failed to close transaction", "err", cerr, "transaction_id", t.ID)
		}
		return SetupResult{}, err
	}
	if err := s.store.AttachIntent(ctx, t.ID, intent.ID); err != nil {
		return SetupResult{}, err
	}

	s.logger.Info("payment intent created",
		"session_id", req.SessionID,
		"transaction_id", t.ID,
		"payment_intent_id", intent.ID,
		"mode", mode,
		"amount", req.Amount,
	)
	return SetupResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		TwoStage:        twoStage,
	}, nil
}

// reuseOrRelease hands back the open transaction's intent when it still fits the request and
// otherwise cancels it. done reports whether res is the final answer.
func (s *Service) reuseOrRelease(ctx context.Context, t model.Transaction, mode string, amount int64) (res SetupResult, done bool, err error) {
	if t.PaymentIntentID == "" {
		// Creation never finished; the processor call used an idempotency key tied to this row.
		return SetupResult{}, false, s.store.Close(ctx, t.ID, model.StatusCanceled, "superseded")
	}

	intent, err := s.gateway.Get(ctx, t.PaymentIntentID)
	if err != nil && !errors.Is(err, ErrIntentNotFound) {
		return SetupResult{}, true, err
	}
	if err == nil {
		if intent.Status == "succeeded" {
			return SetupResult{}, true, ErrAlreadyPaid
		}
		if t.Mode == mode && t.Amount == amount && reusable[intent.Status] {
			return SetupResult{
				ClientSecret:    intent.ClientSecret,
				PaymentIntentID: intent.ID,
				Amount:          intent.Amount,
				TwoStage:        mode == model.ModeTwoStage,
				Reused:          true,
			}, true, nil
		}
		if intent.Status != "canceled" {
			if err := s.gateway.Cancel(ctx, intent.ID); err != nil {
				return SetupResult{}, true, fmt.Errorf("cancel superseded intent: %w", err)
			}
		}
	}

	s.logger.Info("payment intent superseded",
		"session_id", t.SessionID,
		"payment_intent_id", t.PaymentIntentID,
		"old_mode", t.Mode,
		"new_mode", mode,
	)
	return SetupResult{}, false, s.store.Close(ctx, t.ID, model.StatusCanceled, "superseded")
}

// Intent returns a processor intent the caller participates in.
func (s *Service) Intent(ctx context.Context, intentID, userID string) (model.Intent, error) {
	intent, err := s.gateway.Get(ctx, intentID)
	if err != nil {
		return model.Intent{}, err
	}
	if userID != intent.Metadata[model.MetaStudentID] && userID != intent.Metadata[model.MetaTutorID] {
		return model.Intent{}, ErrForbidden
	}
	return intent, nil
}

func (s *Service) validate(req *SetupRequest) error {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.TutorID = strings.TrimSpace(req.TutorID)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	switch {
	case req.SessionID == "":
		return fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	case req.TutorID == "":
		return fmt.Errorf("%w: tutor_id is required", ErrInvalidRequest)
	case req.StudentID == "":
		return fmt.Errorf("%w: student is required", ErrInvalidRequest)
	case req.TutorID == req.StudentID:
		return fmt.Errorf("%w: cannot pay yourself", ErrInvalidRequest)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	case req.Amount > s.cfg.MaxAmount:
		return fmt.Errorf("%w: amount exceeds limit", ErrInvalidRequest)
	case len(req.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidRequest)
	}
	return nil
}

func metadata(req SetupRequest, mode string) map[string]string {
	m := map[string]string{
		model.MetaSessionID:   req.SessionID,
		model.MetaTutorID:     req.TutorID,
		model.MetaStudentID:   req.StudentID,
		model.MetaPaymentMode: mode,
	}
	add := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			m[k] = v
		}
	}
	add(model.MetaTutorEmail, req.TutorEmail)
	add(model.MetaStudentEmail, req.StudentEmail)
	add(model.MetaTutorName, req.TutorName)
	add(model.MetaStudentName, req.StudentName)
	if !req.StartTime.IsZero() {
		m[model.MetaStartTime] = req.StartTime.UTC().Format(time.RFC3339)
	}
	if !req.EndTime.IsZero() {
		m[model.MetaEndTime] = req.EndTime.UTC().Format(time.RFC3339)
	}
	return m
}
