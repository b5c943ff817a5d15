package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated     = "appointment_created"
	EventAppointmentConfirmed   = "appointment_confirmed"
	EventAppointmentCanceled    = "appointment_canceled"
	EventAppointmentCompleted   = "appointment_completed"
	EventAppointmentRescheduled = "appointment_rescheduled"
	EventPrescriptionUploaded   = "prescription_uploaded"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Notification is the in-app record created for every dispatched event.
// EmailSent tracks whether the email copy went out; the notify worker
// retries the ones that did not.
type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Subject     string
	Message     string
	EventType   string
	IsRead      bool
	EmailSent   bool
	CreatedAt   time.Time
}

// PendingEmail is a notification whose email copy has not been delivered,
// joined with the recipient's address.
type PendingEmail struct {
	ID             uuid.UUID
	RecipientEmail string
	Subject        string
	Message        string
}

type Store interface {
	Insert(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]Notification, error)
	// MarkRead flips is_read, scoped to the recipient so one user cannot
	// touch another's notifications.
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error

	ListUnsentEmails(ctx context.Context, limit int) ([]PendingEmail, error)
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
}
