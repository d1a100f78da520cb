package bookingflow

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/availability"
)

// ErrConflict is returned by a SessionCreator when the slot was taken after it was offered.
var ErrConflict = errors.New("slot no longer available")

const DefaultHourlyRate = 50.0

type User struct {
	ID    string
	Email string
	Name  string
}

type Tutor struct {
	ID         string
	Name       string
	Email      string
	HourlyRate float64
}

type Session struct {
	ID     string
	Status string
}

type PaymentRequest struct {
	SessionID string
	// Amount is in minor units (cents).
	Amount        int64
	Currency      string
	Tutor         Tutor
	User          User
	Start, End    time.Time
	ForceTwoStage bool
}

type PaymentSetupResult struct {
	ClientSecret      string
	PaymentIntentID   string
	Amount            int64
	IsTwoStagePayment bool
}

type SessionCreator interface {
	CreateSession(ctx context.Context, studentID, tutorID string, start, end time.Time) (Session, error)
}

type PaymentSetter interface {
	SetupPayment(ctx context.Context, req PaymentRequest) (PaymentSetupResult, error)
}

// AmountCents prorates the hourly rate by slot duration. A missing rate uses DefaultHourlyRate.
func AmountCents(slot availability.BookingSlot, hourlyRate float64) int64 {
	if hourlyRate <= 0 {
		hourlyRate = DefaultHourlyRate
	}
	hours := slot.Duration().Hours()
	return int64(math.Round(hourlyRate * hours * 100))
}
