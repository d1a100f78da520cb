// Command book-session drives one booking against running scheduling and payment services:
// it fetches the tutor's slots for a day, drag-selects a range, reserves the session and
// sets up payment, printing each state transition.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/availability"
	"github.com/md-rashed-zaman/tutorbook/libs/bookingflow"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
)

func main() {
	var (
		schedulingURL = flag.String("scheduling-url", getenv("SCHEDULING_URL", "http://localhost:8081"), "scheduling-service base url")
		paymentsURL   = flag.String("payments-url", getenv("PAYMENTS_URL", "http://localhost:8082"), "payment-service base url")
		jwtSecret     = flag.String("jwt-secret", getenv("JWT_SECRET", ""), "secret used to sign a student token")
		studentID     = flag.String("student", getenv("STUDENT_ID", ""), "student id")
		studentEmail  = flag.String("student-email", getenv("STUDENT_EMAIL", ""), "student email")
		tutorID       = flag.String("tutor", getenv("TUTOR_ID", ""), "tutor id")
		tutorEmail    = flag.String("tutor-email", getenv("TUTOR_EMAIL", ""), "tutor email")
		day           = flag.String("day", "", "date to book (YYYY-MM-DD)")
		from          = flag.String("from", "", "first unit start (HH:MM)")
		to            = flag.String("to", "", "last unit start (HH:MM); defaults to -from")
		retry         = flag.Bool("retry", true, "retry payment setup in two-stage mode when it fails")
		complete      = flag.Bool("complete", false, "mark the payment complete and wait for the flow to close")
	)
	flag.Parse()

	if *jwtSecret == "" || *studentID == "" || *tutorID == "" || *day == "" || *from == "" {
		fatal("JWT_SECRET, -student, -tutor, -day and -from are required")
	}
	date, err := availability.ParseDate(*day)
	if err != nil {
		fatal("invalid -day: " + err.Error())
	}
	first, err := availability.ParseClock(*from)
	if err != nil {
		fatal("invalid -from: " + err.Error())
	}
	last := first
	if *to != "" {
		if last, err = availability.ParseClock(*to); err != nil {
			fatal("invalid -to: " + err.Error())
		}
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   *studentID,
		Role:  auth.RoleStudent,
		Email: *studentEmail,
		Iat:   now.Unix(),
		Exp:   now.Add(15 * time.Minute).Unix(),
	}, *jwtSecret)
	if err != nil {
		fatal(err.Error())
	}

	logger := runtime.NewLogger("book-session")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	scheduling := bookingflow.NewSchedulingClient(*schedulingURL, token)
	page, err := scheduling.Slots(ctx, *tutorID, date, 1)
	if err != nil {
		fatal("fetch slots: " + err.Error())
	}
	if !page.HasAvailability {
		fatal("tutor has not configured availability")
	}
	bookable := availability.Bookable(page.Slots)
	fmt.Printf("%d of %d units available on %s (%s)\n", len(bookable), len(page.Slots), date, page.Timezone)

	sel := availability.NewDragSelector(availability.NewGrid(page.Slots))
	if !sel.Begin(date, first) {
		fatal(fmt.Sprintf("%s %s is not available", date, first))
	}
	sel.Extend(date, last)
	slot, ok := sel.End()
	if !ok {
		fatal("nothing selected")
	}
	fmt.Printf("selected %s %s-%s\n", slot.Day, slot.Start, slot.End)

	done := make(chan struct{})
	flow := bookingflow.New(scheduling, bookingflow.NewPaymentsClient(*paymentsURL, token), bookingflow.Config{
		Tutor:    bookingflow.Tutor{ID: *tutorID, Email: *tutorEmail, HourlyRate: page.HourlyRate},
		Location: page.Location(),
		Logger:   logger,
		OnChange: func(s bookingflow.Snapshot) {
			if s.Step() == bookingflow.StepClosed {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	})
	flow.SetUser(&bookingflow.User{ID: *studentID, Email: *studentEmail})

	snap := flow.SelectSlot(ctx, slot)
	report(snap)
	if w, ok := snap.State.(bookingflow.AwaitingPayment); ok && w.SetupErr != nil && *retry {
		snap = flow.RetryPayment(ctx)
		report(snap)
	}
	if *complete && snap.Step() == bookingflow.StepPayment {
		report(flow.CompletePayment())
		select {
		case <-done:
			report(flow.Snapshot())
		case <-ctx.Done():
		}
	}
}

func report(s bookingflow.Snapshot) {
	line := "step=" + string(s.Step())
	if s.Notice != bookingflow.NoticeNone {
		line += " notice=" + string(s.Notice) + " (" + s.Notice.Text() + ")"
	}
	if w, ok := s.State.(bookingflow.AwaitingPayment); ok {
		line += " session=" + w.SessionID
		if w.SetupErr != nil {
			line += " setup_error=" + w.SetupErr.Error()
		}
		if w.Payment != nil {
			line += fmt.Sprintf(" payment_intent=%s amount=%d two_stage=%t", w.Payment.PaymentIntentID, w.Payment.Amount, w.Payment.IsTwoStagePayment)
		}
	}
	fmt.Println(line)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
