package bookingflow

import "github.com/md-rashed-zaman/tutorbook/libs/availability"

type Step string

const (
	StepSelectSlot Step = "select-slot"
	StepPayment    Step = "payment"
	StepProcessing Step = "processing"
	StepClosed     Step = "closed"
)

// State is one of SelectingSlot, AwaitingPayment, Processing or Closed.
type State interface {
	Step() Step
	isState()
}

// SelectingSlot waits for the student to pick a slot. AuthRequired is set when a slot
// was chosen without a signed-in user.
type SelectingSlot struct {
	AuthRequired bool
}

// AwaitingPayment holds the reserved session. Payment is nil until setup succeeds;
// SetupErr is the last setup failure, cleared by a successful retry.
type AwaitingPayment struct {
	Slot      availability.BookingSlot
	SessionID string
	Payment   *PaymentSetupResult
	SetupErr  error
}

// Processing is the short confirmation pause after the processor accepted the payment.
type Processing struct {
	SessionID string
}

type Closed struct{}

func (SelectingSlot) Step() Step   { return StepSelectSlot }
func (AwaitingPayment) Step() Step { return StepPayment }
func (Processing) Step() Step      { return StepProcessing }
func (Closed) Step() Step          { return StepClosed }

func (SelectingSlot) isState()   {}
func (AwaitingPayment) isState() {}
func (Processing) isState()      {}
func (Closed) isState()          {}

// Notice is a transient, user-facing message produced by the last command.
type Notice string

const (
	NoticeNone               Notice = ""
	NoticeAuthRequired       Notice = "auth_required"
	NoticeRateLimited        Notice = "rate_limited"
	NoticeSlotTaken          Notice = "slot_taken"
	NoticeSessionFailed      Notice = "session_failed"
	NoticePaymentSetupFailed Notice = "payment_setup_failed"
	NoticeMissingSession     Notice = "missing_session"
)

var noticeText = map[Notice]string{
	NoticeAuthRequired:       "Please sign in to book a session",
	NoticeRateLimited:        "Please wait a moment before trying again",
	NoticeSlotTaken:          "That time was just booked by someone else. Please pick another slot",
	NoticeSessionFailed:      "Failed to set up session. Please try again",
	NoticePaymentSetupFailed: "Payment setup failed. You can retry",
	NoticeMissingSession:     "Missing session information. Please try again",
}

func (n Notice) Text() string {
	return noticeText[n]
}

// Snapshot is the read-only view handed to the presentation layer.
type Snapshot struct {
	State  State
	Notice Notice
	// Busy is true while a collaborator call is in flight.
	Busy bool
}

func (s Snapshot) Step() Step {
	if s.State == nil {
		return StepClosed
	}
	return s.State.Step()
}
