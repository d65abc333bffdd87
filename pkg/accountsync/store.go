package accountsync

import "context"

// ProfileStore defines the interface for profile persistence.
// Profiles are keyed by identity ID; the reconciler performs
// read-before-write merges and issues a single upsert per event.
type ProfileStore interface {
	// GetProfile retrieves a profile by identity ID.
	// Returns ErrProfileNotFound when no profile exists.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// UpsertProfile creates or replaces the profile for its identity ID.
	UpsertProfile(ctx context.Context, profile *Profile) error
}
