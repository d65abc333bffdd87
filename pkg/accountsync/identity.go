package accountsync

import "context"

// InviteOptions configures an invitation email sent to a newly created identity.
type InviteOptions struct {
	// RedirectTo is the URL the invite link lands on after acceptance.
	RedirectTo string

	// Data is attached to the invitation and surfaced to the signup flow.
	Data map[string]interface{}
}

// IdentityProvider is the external identity/authentication collaborator.
// Implementations must map provider-specific failures onto the package
// sentinel errors so the reconciler can tell "not found" and "already
// exists" apart from outages.
type IdentityProvider interface {
	// GetUserByEmail looks up an identity by normalized email.
	// Returns ErrIdentityNotFound when no identity exists.
	GetUserByEmail(ctx context.Context, email string) (*Identity, error)

	// CreateUser creates a new identity for the email with the given metadata.
	// Returns ErrIdentityExists when the email is already taken.
	CreateUser(ctx context.Context, email string, metadata map[string]interface{}) (*Identity, error)

	// UpdateUserMetadata merges metadata onto an existing identity.
	UpdateUserMetadata(ctx context.Context, id string, metadata map[string]interface{}) error

	// InviteByEmail sends an invitation email to the address.
	InviteByEmail(ctx context.Context, email string, opts InviteOptions) error
}
