package accountsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Reconciler applies classified lifecycle events to the identity/profile
// pair behind an email address. All writes are idempotent by email or
// identity ID so at-least-once webhook delivery converges.
type Reconciler struct {
	identity IdentityProvider
	profiles ProfileStore
	config   Config
	logger   Logger
	metrics  Metrics
	now      func() time.Time
}

// NewReconciler creates a Reconciler with explicit collaborators.
func NewReconciler(identity IdentityProvider, profiles ProfileStore, config Config) (*Reconciler, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Reconciler{
		identity: identity,
		profiles: profiles,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Config returns the reconciliation configuration.
func (r *Reconciler) Config() *Config {
	return &r.config
}

// EnsureAccountParams describes one create-or-update reconciliation.
type EnsureAccountParams struct {
	// Email is the contact email; matched case-insensitively after trimming.
	Email string

	// FullName is merged onto the identity and profile when non-empty.
	FullName string

	// ExternalContactID links the account to the CRM contact when non-empty.
	ExternalContactID string

	// DesiredRole is the role the event argues for. The final role is
	// max(current, desired); RoleAdmin is never granted by this path.
	DesiredRole Role

	// Activate sets the active flag when non-nil. Nil preserves the
	// current value (new accounts default to active).
	Activate *bool

	// SendInvite sends one invitation email if a new identity is created
	// and invitations are enabled.
	SendInvite bool
}

// EnsureAccountResult reports the reconciled end state.
type EnsureAccountResult struct {
	UserID         string `json:"user_id"`
	CreatedNewUser bool   `json:"created_new_user"`
	ResolvedRole   Role   `json:"resolved_role"`
	Active         bool   `json:"active"`
}

// EnsureAccount idempotently creates or updates the identity + profile pair
// for an email. Replaying the same event yields the same end state.
func (r *Reconciler) EnsureAccount(ctx context.Context, params EnsureAccountParams) (*EnsureAccountResult, error) {
	email := NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	identity, created, err := r.ensureIdentity(ctx, email, params)
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.RecordAccountCreated()
	}

	profile, err := r.profiles.GetProfile(ctx, identity.ID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: get profile: %v", ErrStoreUnavailable, err)
	}
	if profile == nil {
		profile = &Profile{
			ID:          identity.ID,
			Role:        RoleUser,
			Active:      true,
			Preferences: map[string]interface{}{},
		}
	}
	if profile.Preferences == nil {
		profile.Preferences = map[string]interface{}{}
	}

	previousRole := profile.Role
	profile.Role = resolveRole(profile.Role, params.DesiredRole)
	if profile.Role != previousRole {
		r.metrics.RecordRoleChange(string(previousRole), string(profile.Role))
	}

	if params.Activate != nil {
		profile.Active = *params.Activate
	}
	if params.FullName != "" {
		profile.FullName = params.FullName
	}
	if params.ExternalContactID != "" {
		profile.Preferences[PrefExternalContactID] = params.ExternalContactID
	}
	if created {
		// Credit defaults apply once, at account creation; later events
		// must not reset balances the application has since adjusted.
		profile.Preferences[PrefInitialCredits] = r.config.InitialCredits
		profile.Preferences[PrefMonthlyCredits] = r.config.MonthlyCredits
	}
	profile.StatusUpdatedAt = r.now()

	if err := r.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("%w: upsert profile: %v", ErrStoreUnavailable, err)
	}

	if created && params.SendInvite && r.config.EnableInvites {
		r.sendInvite(ctx, email)
	}

	return &EnsureAccountResult{
		UserID:         identity.ID,
		CreatedNewUser: created,
		ResolvedRole:   profile.Role,
		Active:         profile.Active,
	}, nil
}

// ensureIdentity looks up the identity, creating it on first contact.
// A create that loses a race against a concurrent duplicate webhook falls
// back to a re-fetch so both racers converge on the same identity.
func (r *Reconciler) ensureIdentity(ctx context.Context, email string, params EnsureAccountParams) (*Identity, bool, error) {
	identity, err := r.identity.GetUserByEmail(ctx, email)
	if err == nil {
		if err := r.mergeIdentityMetadata(ctx, identity, params); err != nil {
			return nil, false, err
		}
		return identity, false, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, false, fmt.Errorf("%w: lookup by email: %v", ErrIdentityUnavailable, err)
	}

	metadata := map[string]interface{}{
		MetaRoleHint: string(params.DesiredRole),
	}
	if params.ExternalContactID != "" {
		metadata[MetaExternalContactID] = params.ExternalContactID
	}
	if params.FullName != "" {
		metadata[MetaFullName] = params.FullName
	}

	identity, err = r.identity.CreateUser(ctx, email, metadata)
	if err == nil {
		return identity, true, nil
	}
	if !errors.Is(err, ErrIdentityExists) {
		return nil, false, fmt.Errorf("%w: create user: %v", ErrIdentityUnavailable, err)
	}

	r.logger.Debug("create raced with concurrent duplicate, re-fetching",
		Field{Key: "email", Value: email})
	identity, err = r.identity.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("%w: re-fetch after conflict: %v", ErrIdentityUnavailable, err)
	}
	if err := r.mergeIdentityMetadata(ctx, identity, params); err != nil {
		return nil, false, err
	}
	return identity, false, nil
}

// mergeIdentityMetadata pushes the fields present in this event onto the
// identity without clobbering absent ones.
func (r *Reconciler) mergeIdentityMetadata(ctx context.Context, identity *Identity, params EnsureAccountParams) error {
	updates := map[string]interface{}{}
	if params.ExternalContactID != "" {
		if existing, _ := identity.Metadata[MetaExternalContactID].(string); existing != params.ExternalContactID {
			updates[MetaExternalContactID] = params.ExternalContactID
		}
	}
	if params.FullName != "" {
		if existing, _ := identity.Metadata[MetaFullName].(string); existing != params.FullName {
			updates[MetaFullName] = params.FullName
		}
	}
	if len(updates) == 0 {
		return nil
	}
	if err := r.identity.UpdateUserMetadata(ctx, identity.ID, updates); err != nil {
		return fmt.Errorf("%w: update metadata: %v", ErrIdentityUnavailable, err)
	}
	if identity.Metadata == nil {
		identity.Metadata = map[string]interface{}{}
	}
	for k, v := range updates {
		identity.Metadata[k] = v
	}
	return nil
}

// sendInvite sends exactly one invitation for a freshly created identity.
// A send failure is logged and swallowed; it never rolls back the account
// write, and the retried event will not re-send because the identity
// already exists.
func (r *Reconciler) sendInvite(ctx context.Context, email string) {
	opts := InviteOptions{RedirectTo: r.config.InviteRedirectURL}
	if err := r.identity.InviteByEmail(ctx, email, opts); err != nil {
		r.logger.Warn("invitation send failed",
			Field{Key: "email", Value: email},
			Field{Key: "error", Value: err.Error()})
		r.metrics.RecordInviteSent("error")
		return
	}
	r.metrics.RecordInviteSent("success")
}

// resolveRole applies the role order with the admin clamp: the final role
// never decreases, and RoleAdmin is never granted automatically regardless
// of input.
func resolveRole(current, desired Role) Role {
	if desired == RoleAdmin {
		return current
	}
	return MaxRole(current, desired)
}

// UpdateStatusParams describes one active/suspended toggle.
type UpdateStatusParams struct {
	// Email is the contact email; matched case-insensitively after trimming.
	Email string

	// Active is the desired active flag.
	Active bool

	// DisabledMessage is stored in preferences while suspended; an empty
	// value clears any stored message.
	DisabledMessage string

	// ExternalContactID refreshes the CRM contact link when non-empty.
	ExternalContactID string
}

// UpdateStatusResult reports whether a write happened.
type UpdateStatusResult struct {
	Skipped bool   `json:"skipped"`
	UserID  string `json:"user_id,omitempty"`
	Active  bool   `json:"active,omitempty"`
}

// UpdateActiveStatus toggles the active flag and disabled message on an
// existing account. It never touches the role and never creates a new
// identity: a failure or cancellation for an unknown contact is skipped
// rather than materializing a phantom account.
func (r *Reconciler) UpdateActiveStatus(ctx context.Context, params UpdateStatusParams) (*UpdateStatusResult, error) {
	email := NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	identity, err := r.identity.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrIdentityNotFound) {
		r.logger.Debug("status update for unknown contact, skipping",
			Field{Key: "email", Value: email})
		return &UpdateStatusResult{Skipped: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup by email: %v", ErrIdentityUnavailable, err)
	}

	profile, err := r.profiles.GetProfile(ctx, identity.ID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: get profile: %v", ErrStoreUnavailable, err)
	}
	if profile == nil {
		// The identity exists but was never reconciled; seed a default
		// profile rather than dropping a legitimate status signal.
		profile = &Profile{
			ID:          identity.ID,
			Role:        RoleUser,
			Active:      true,
			Preferences: map[string]interface{}{},
		}
	}
	if profile.Preferences == nil {
		profile.Preferences = map[string]interface{}{}
	}

	currentMessage, _ := profile.Preferences[PrefDisabledMessage].(string)
	currentContactID, _ := profile.Preferences[PrefExternalContactID].(string)
	contactIDFresh := params.ExternalContactID == "" || currentContactID == params.ExternalContactID

	if profile.Active == params.Active && currentMessage == params.DisabledMessage && contactIDFresh {
		// Duplicate delivery; nothing would change, so avoid the write.
		return &UpdateStatusResult{Skipped: true, UserID: identity.ID, Active: profile.Active}, nil
	}

	profile.Active = params.Active
	if params.DisabledMessage != "" {
		profile.Preferences[PrefDisabledMessage] = params.DisabledMessage
	} else {
		delete(profile.Preferences, PrefDisabledMessage)
	}
	if params.ExternalContactID != "" {
		profile.Preferences[PrefExternalContactID] = params.ExternalContactID
	}
	profile.StatusUpdatedAt = r.now()

	if err := r.profiles.UpsertProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("%w: upsert profile: %v", ErrStoreUnavailable, err)
	}

	return &UpdateStatusResult{UserID: identity.ID, Active: profile.Active}, nil
}

// NormalizeEmail trims and lower-cases an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
