package accountsync

import "errors"

var (
	// ErrIdentityNotFound is returned when no identity exists for an email or ID
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrIdentityExists is returned by CreateUser when the email is already taken
	ErrIdentityExists = errors.New("identity already exists")

	// ErrProfileNotFound is returned when no profile exists for an identity ID
	ErrProfileNotFound = errors.New("profile not found")

	// ErrIdentityUnavailable is returned when the identity provider cannot be reached
	ErrIdentityUnavailable = errors.New("identity provider unavailable")

	// ErrStoreUnavailable is returned when the profile store cannot be reached
	ErrStoreUnavailable = errors.New("profile store unavailable")

	// ErrMissingEmail is returned when an operation requires an email and none was given
	ErrMissingEmail = errors.New("missing email")
)
