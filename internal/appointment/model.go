package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// transitions maps current status to the statuses the engine may move it to.
// Reschedule is not listed here: it resets pending, confirmed, or canceled
// back to pending and is validated through CanReschedule.
var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCanceled: true},
	StatusConfirmed: {StatusCompleted: true},
}

func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// reschedulable holds the statuses a patient may move to a new slot.
// completed stays terminal.
var reschedulable = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusCanceled:  true,
}

func CanReschedule(from Status) bool {
	return reschedulable[from]
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be %s: %w", DateLayout, err)
	}
	return d, nil
}

// ParseTimeOfDay validates a time of day and normalizes it to HH:MM.
// Seconds are accepted on input and dropped.
func ParseTimeOfDay(s string) (string, error) {
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("time must be %s", TimeLayout)
}

// slotTime combines a calendar date with an HH:MM time of day in local time.
func slotTime(date time.Time, timeOfDay string) time.Time {
	t, _ := time.Parse(TimeLayout, timeOfDay)
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
}

type Appointment struct {
	ID           uuid.UUID
	DoctorID     uuid.UUID
	PatientID    uuid.UUID
	Date         time.Time // calendar date, midnight UTC
	Time         string    // HH:MM
	Token        int       // queue position for the doctor's day, never reassigned
	Status       Status
	Reason       *string
	Prescription *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
