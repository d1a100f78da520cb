package model

import (
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/availability"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"

	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

type Session struct {
	ID              string
	TutorID         string
	StudentID       string
	StartTime       time.Time
	EndTime         time.Time
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	CancelReason    string
	CancelledAt     *time.Time
	ConfirmedAt     *time.Time
	CreatedAt       time.Time
}

// Blocking reports whether the session still holds its time range.
func (s Session) Blocking() bool {
	return s.Status != StatusCancelled
}

type TutorAvailability struct {
	TutorID    string
	Weekly     availability.WeeklyAvailability
	Timezone   string
	HourlyRate float64
	UpdatedAt  time.Time
}

// Location resolves Timezone; unknown or empty zones read as UTC.
func (a TutorAvailability) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
