package model

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Payment modes. A single-stage payment is a destination charge straight to the tutor's
// connected account; a two-stage payment is collected by the platform and transferred later.
const (
	ModeSingleStage = "single_stage"
	ModeTwoStage    = "two_stage"
)

// Intent metadata keys shared with the web client and the webhook.
const (
	MetaSessionID    = "sessionId"
	MetaTutorID      = "tutorId"
	MetaStudentID    = "studentId"
	MetaTutorEmail   = "tutorEmail"
	MetaStudentEmail = "studentEmail"
	MetaTutorName    = "tutorName"
	MetaStudentName  = "studentName"
	MetaStartTime    = "startTime"
	MetaEndTime      = "endTime"
	MetaPaymentMode  = "paymentMode"
)

type Transaction struct {
	ID              string
	SessionID       string
	TutorID         string
	StudentID       string
	Amount          int64
	Currency        string
	Mode            string
	Status          string
	PaymentIntentID string
	FailureMessage  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Open reports whether the transaction can still be paid.
func (t Transaction) Open() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

// Intent is the processor-side payment object.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
	LastError    string
}

// IntentOutcome is a terminal processor result to apply to the matching transaction.
type IntentOutcome struct {
	Intent    Intent
	Succeeded bool
	Canceled  bool
}
