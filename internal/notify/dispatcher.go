package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-booking/internal/identity"
)

const dispatchTimeout = 10 * time.Second

// Dispatcher delivers one notification to a recipient: an in-app record plus
// a best-effort email. Fire-and-forget; failures never reach the caller.
type Dispatcher interface {
	Dispatch(recipient *identity.User, subject, message, eventType string)
}

type AsyncDispatcher struct {
	store  Store
	mailer Mailer
	log    zerolog.Logger
}

func NewAsyncDispatcher(store Store, mailer Mailer, log zerolog.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{
		store:  store,
		mailer: mailer,
		log:    log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch runs in its own goroutine with a detached context: the triggering
// request has already committed its state change and must not wait on us.
func (d *AsyncDispatcher) Dispatch(recipient *identity.User, subject, message, eventType string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		n := Notification{
			ID:          uuid.New(),
			RecipientID: recipient.ID,
			Subject:     subject,
			Message:     message,
			EventType:   eventType,
			// Recipients without an address get no email copy; the row is
			// marked sent so the worker never picks it up.
			EmailSent: recipient.Email == "",
		}

		if err := d.store.Insert(ctx, &n); err != nil {
			d.log.Error().Err(err).
				Str("event_type", eventType).
				Str("recipient", recipient.Username).
				Msg("failed to record notification")
			// Still attempt the email below; the two deliveries are
			// independent best-effort channels.
		}

		if recipient.Email == "" {
			return
		}

		if err := d.mailer.Send(recipient.Email, subject, message); err != nil {
			d.log.Warn().Err(err).
				Str("event_type", eventType).
				Str("recipient", recipient.Username).
				Msg("email delivery failed, left for notify worker")
			return
		}

		if err := d.store.MarkEmailSent(ctx, n.ID); err != nil {
			d.log.Error().Err(err).
				Stringer("notification_id", n.ID).
				Msg("failed to mark email sent")
		}
	}()
}
