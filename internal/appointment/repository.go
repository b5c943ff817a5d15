package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned when the (doctor, date, time) slot is already
	// occupied, in any status.
	ErrSlotTaken = errors.New("time slot already booked for this doctor")

	// ErrBookingConflict is returned when the store could not assign a token
	// after its internal retries.
	ErrBookingConflict = errors.New("booking conflict, please retry")
)

// Repository contains all DB interactions needed by the service.
//
// Create and Reschedule own their transactional boundaries: the slot
// uniqueness check, the token assignment, and the write happen atomically
// with respect to concurrent bookings for the same doctor and date.
type Repository interface {
	Create(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string, reason *string) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, newestFirst bool) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// UpdateStatus applies a transition only if the row still holds the
	// observed status. A vanished row after a successful read means the
	// caller lost a race.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Reschedule moves an appointment to a new slot and resets it to
	// pending, keeping its token. Applies only if the row still holds the
	// observed status and the target slot is free.
	Reschedule(ctx context.Context, id uuid.UUID, from Status, date time.Time, timeOfDay string) (*Appointment, error)

	// SetPrescription writes the prescription text, only while the
	// appointment is completed. Status is left untouched.
	SetPrescription(ctx context.Context, id uuid.UUID, text string) (*Appointment, error)
}
