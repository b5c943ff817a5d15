package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const redeliverBatchSize = 100

// RedeliverUnsent makes one pass over notifications whose email copy never
// went out and retries them. Intended to be called by the notify worker
// periodically; individual send failures are logged and left for the next
// pass.
func RedeliverUnsent(ctx context.Context, store Store, mailer Mailer, log zerolog.Logger) (int, error) {
	pending, err := store.ListUnsentEmails(ctx, redeliverBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsent emails: %w", err)
	}

	sent := 0
	for _, p := range pending {
		if err := mailer.Send(p.RecipientEmail, p.Subject, p.Message); err != nil {
			log.Warn().Err(err).
				Stringer("notification_id", p.ID).
				Msg("redelivery failed")
			continue
		}

		if err := store.MarkEmailSent(ctx, p.ID); err != nil {
			log.Error().Err(err).
				Stringer("notification_id", p.ID).
				Msg("failed to mark email sent")
			continue
		}
		sent++
	}

	return sent, nil
}
