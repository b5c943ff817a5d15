package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/identity"
	"github.com/clinicdesk/clinic-booking/internal/notify"
	redisclient "github.com/clinicdesk/clinic-booking/internal/redis"
)

var (
	// ErrForbidden means the actor's role disallows the operation, or the
	// actor is not the appointment's assigned doctor/patient where the
	// operation requires it.
	ErrForbidden = errors.New("operation not allowed for this role")

	// ErrInvalidTransition covers both an illegal status change and a
	// transition that lost a race to a concurrent writer.
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrPastDateTime = errors.New("new date and time must be in the future")
	ErrValidation   = errors.New("invalid request")

	// ErrScheduleBusy means the doctor's day is locked by a concurrent
	// booking and the caller should retry.
	ErrScheduleBusy = errors.New("schedule is currently being booked, please retry")
)

// Service is the appointment lifecycle engine: it validates booking
// requests, executes status transitions, and triggers notification side
// effects. It holds no state between requests.
type Service struct {
	repo     Repository
	users    identity.Directory
	locker   redisclient.Locker
	notifier notify.Dispatcher
	log      zerolog.Logger
}

func NewService(repo Repository, users identity.Directory, locker redisclient.Locker, notifier notify.Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		locker:   locker,
		notifier: notifier,
		log:      log.With().Str("component", "appointment").Logger(),
	}
}

// Book creates a pending appointment for the acting patient. The slot check,
// token assignment, and insert run under the doctor-day schedule lock so that
// concurrent bookings cannot hand out duplicate tokens.
func (s *Service) Book(ctx context.Context, actor identity.Actor, doctorUsername, dateStr, timeStr, reason string) (*Appointment, error) {
	if actor.Role != identity.RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}

	if doctorUsername == "" {
		return nil, fmt.Errorf("%w: doctor_username is required", ErrValidation)
	}
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	timeOfDay, err := ParseTimeOfDay(timeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	doctor, err := s.users.ResolveByUsername(ctx, doctorUsername, identity.RoleDoctor)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	var created *Appointment

	err = s.locker.WithScheduleLock(ctx, doctor.ID, date.Format(DateLayout), func(lockCtx context.Context) error {
		appt, err := s.repo.Create(lockCtx, doctor.ID, actor.ID, date, timeOfDay, reasonPtr)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.notifyUser(ctx, doctor.ID,
		"New Appointment Created",
		fmt.Sprintf("You have a new appointment with %s on %s at %s.",
			actor.Username, created.Date.Format(DateLayout), created.Time),
		notify.EventAppointmentCreated)

	return created, nil
}

// Get returns an appointment to its assigned doctor or patient. Anyone else
// learns nothing beyond "not found".
func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !involves(appt, actor) {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

// ListForActor returns the actor's appointments: a doctor's day sheet
// ordered by date, time, and token, or a patient's history newest first.
func (s *Service) ListForActor(ctx context.Context, actor identity.Actor, newestFirst bool) ([]Appointment, error) {
	switch actor.Role {
	case identity.RoleDoctor:
		return s.repo.ListByDoctor(ctx, actor.ID, newestFirst)
	case identity.RolePatient:
		return s.repo.ListByPatient(ctx, actor.ID)
	}
	return nil, fmt.Errorf("%w: role %s cannot list appointments", ErrForbidden, actor.Role)
}

// SetStatus lets the assigned doctor confirm or cancel a pending
// appointment.
func (s *Service) SetStatus(ctx context.Context, actor identity.Actor, id uuid.UUID, newStatus Status) (*Appointment, error) {
	if actor.Role != identity.RoleDoctor {
		return nil, fmt.Errorf("%w: only doctors can manage appointment status", ErrForbidden)
	}
	if newStatus != StatusConfirmed && newStatus != StatusCanceled {
		return nil, fmt.Errorf("%w: status must be %s or %s", ErrValidation, StatusConfirmed, StatusCanceled)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != actor.ID {
		return nil, ErrAppointmentNotFound
	}
	if !CanTransition(appt.Status, newStatus) {
		return nil, fmt.Errorf("%w: cannot move %s to %s", ErrInvalidTransition, appt.Status, newStatus)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, newStatus)
	if err != nil {
		return nil, lostRace(err)
	}

	when := fmt.Sprintf("on %s at %s", updated.Date.Format(DateLayout), updated.Time)
	if newStatus == StatusConfirmed {
		s.notifyUser(ctx, updated.PatientID,
			"Appointment Confirmed",
			fmt.Sprintf("Your appointment with Dr. %s %s has been confirmed.", actor.Username, when),
			notify.EventAppointmentConfirmed)
	} else {
		s.notifyUser(ctx, updated.PatientID,
			"Appointment Canceled",
			fmt.Sprintf("Your appointment with Dr. %s %s has been canceled.", actor.Username, when),
			notify.EventAppointmentCanceled)
	}

	return updated, nil
}

// Complete marks a confirmed appointment completed. Either the assigned
// doctor or the assigned patient may do it; the counterparty is notified.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	if actor.Role != identity.RoleDoctor && actor.Role != identity.RolePatient {
		return nil, fmt.Errorf("%w: only the assigned doctor or patient can complete an appointment", ErrForbidden)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !involves(appt, actor) {
		return nil, ErrAppointmentNotFound
	}
	if !CanTransition(appt.Status, StatusCompleted) {
		return nil, fmt.Errorf("%w: cannot complete a %s appointment", ErrInvalidTransition, appt.Status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCompleted)
	if err != nil {
		return nil, lostRace(err)
	}

	counterparty := updated.DoctorID
	if actor.Role == identity.RoleDoctor {
		counterparty = updated.PatientID
	}
	s.notifyUser(ctx, counterparty,
		"Appointment Completed",
		fmt.Sprintf("The appointment on %s at %s has been marked as completed.",
			updated.Date.Format(DateLayout), updated.Time),
		notify.EventAppointmentCompleted)

	return updated, nil
}

// UploadPrescription attaches prescription text to a completed appointment.
// Doctor-only; status is left untouched.
func (s *Service) UploadPrescription(ctx context.Context, actor identity.Actor, id uuid.UUID, text string) (*Appointment, error) {
	if actor.Role != identity.RoleDoctor {
		return nil, fmt.Errorf("%w: only doctors can upload prescriptions", ErrForbidden)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: prescription content is required", ErrValidation)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != actor.ID {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: prescriptions can only be added to completed appointments", ErrInvalidTransition)
	}

	updated, err := s.repo.SetPrescription(ctx, id, text)
	if err != nil {
		return nil, lostRace(err)
	}

	s.notifyUser(ctx, updated.PatientID,
		"Prescription Uploaded",
		fmt.Sprintf("Dr. %s has uploaded your prescription for the appointment on %s.",
			actor.Username, updated.Date.Format(DateLayout)),
		notify.EventPrescriptionUploaded)

	return updated, nil
}

// Reschedule moves the acting patient's appointment to a free future slot
// and resets its status to pending. The token is kept: queue positions
// already issued stay stable.
func (s *Service) Reschedule(ctx context.Context, actor identity.Actor, id uuid.UUID, dateStr, timeStr string) (*Appointment, error) {
	if actor.Role != identity.RolePatient {
		return nil, fmt.Errorf("%w: only patients can reschedule appointments", ErrForbidden)
	}

	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	timeOfDay, err := ParseTimeOfDay(timeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != actor.ID {
		return nil, ErrAppointmentNotFound
	}
	if !CanReschedule(appt.Status) {
		return nil, fmt.Errorf("%w: a %s appointment cannot be rescheduled", ErrInvalidTransition, appt.Status)
	}
	if !slotTime(date, timeOfDay).After(time.Now()) {
		return nil, ErrPastDateTime
	}

	var updated *Appointment

	err = s.locker.WithScheduleLock(ctx, appt.DoctorID, date.Format(DateLayout), func(lockCtx context.Context) error {
		moved, err := s.repo.Reschedule(lockCtx, id, appt.Status, date, timeOfDay)
		if err != nil {
			return err
		}
		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, lostRace(err)
	}

	s.notifyUser(ctx, updated.DoctorID,
		"Appointment Rescheduled",
		fmt.Sprintf("The appointment with %s has been rescheduled to %s at %s.",
			actor.Username, updated.Date.Format(DateLayout), updated.Time),
		notify.EventAppointmentRescheduled)

	return updated, nil
}

func involves(appt *Appointment, actor identity.Actor) bool {
	switch actor.Role {
	case identity.RoleDoctor:
		return appt.DoctorID == actor.ID
	case identity.RolePatient:
		return appt.PatientID == actor.ID
	}
	return false
}

// lostRace translates a vanished row into a transition failure: the
// appointment existed a moment ago, so a concurrent writer changed its
// status between our read and our compare-and-set.
func lostRace(err error) error {
	if errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
	}
	return err
}

// notifyUser resolves the recipient and hands off to the dispatcher. The
// state change is already committed; anything that goes wrong here is
// logged and swallowed.
func (s *Service) notifyUser(ctx context.Context, recipientID uuid.UUID, subject, message, eventType string) {
	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		s.log.Error().Err(err).
			Stringer("recipient_id", recipientID).
			Str("event_type", eventType).
			Msg("failed to resolve notification recipient")
		return
	}
	s.notifier.Dispatch(recipient, subject, message, eventType)
}
