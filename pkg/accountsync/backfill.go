package accountsync

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BackfillContact is one entry of a bulk reconciliation job, typically an
// export from the CRM platform used to seed or repair account records.
type BackfillContact struct {
	Email             string
	FullName          string
	ExternalContactID string
	Role              Role
}

// ReconcileBatch runs EnsureAccount over a contact list with bounded
// concurrency. Invitations are suppressed; backfills repair records, they
// do not onboard users. Contacts sharing an email are safe because every
// write path converges by email, but callers should deduplicate for speed.
func (r *Reconciler) ReconcileBatch(ctx context.Context, contacts []BackfillContact, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, contact := range contacts {
		if NormalizeEmail(contact.Email) == "" {
			continue
		}
		g.Go(func() error {
			_, err := r.EnsureAccount(ctx, EnsureAccountParams{
				Email:             contact.Email,
				FullName:          contact.FullName,
				ExternalContactID: contact.ExternalContactID,
				DesiredRole:       contact.Role,
			})
			if err != nil {
				return fmt.Errorf("backfill %s: %w", NormalizeEmail(contact.Email), err)
			}
			return nil
		})
	}

	return g.Wait()
}
