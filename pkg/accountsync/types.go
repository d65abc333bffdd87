// Package accountsync reconciles lifecycle events from an external
// marketing/CRM platform into internal account records. An inbound webhook
// is normalized into a WebhookEvent, classified into a lifecycle Action,
// and then applied to an identity/profile pair through the injected
// IdentityProvider and ProfileStore collaborators.
package accountsync

import (
	"sort"
	"strings"
	"time"
)

// Role is the access level stored on a profile.
// Roles form a total order: RoleUser < RolePro < RoleAdmin.
type Role string

const (
	RoleUser  Role = "user"
	RolePro   Role = "pro"
	RoleAdmin Role = "admin"
)

var roleWeight = map[Role]int{
	RoleUser:  0,
	RolePro:   1,
	RoleAdmin: 2,
}

// ParseRole maps a free-form role string to a Role, defaulting to RoleUser
// for unknown values.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePro:
		return RolePro
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// MaxRole returns the higher of two roles under the role order.
func MaxRole(a, b Role) Role {
	if roleWeight[b] > roleWeight[a] {
		return b
	}
	return a
}

// Action is the classified intent of an inbound lifecycle event.
type Action string

const (
	ActionProPurchase      Action = "pro_purchase"
	ActionTrialSignup      Action = "trial_signup"
	ActionPaymentFailed    Action = "payment_failed"
	ActionPaymentRecovered Action = "payment_recovered"
	ActionCancellation     Action = "cancellation"
	ActionUserUpdate       Action = "user_update"
	ActionIgnore           Action = "ignore"
)

// Contact identifies the person an event is about.
type Contact struct {
	// Email is the only load-bearing field; events without it are ignored.
	Email string

	// ID is the CRM platform's contact identifier, if present.
	ID string

	// Name is the contact's full name, if present.
	Name string
}

// WebhookEvent is the canonical, per-request view of an inbound payload.
// It is never persisted.
type WebhookEvent struct {
	// EventID is the vendor's event identifier, if present.
	EventID string

	// EventType is the vendor's event type, lower-cased.
	EventType string

	// Contact is the person the event concerns.
	Contact Contact

	// ProductID is the vendor product identifier, if present.
	ProductID string

	// Tags is the lower-cased set of tags attached to the contact.
	Tags map[string]struct{}
}

// HasTag reports whether any tag contains the given substring.
func (e *WebhookEvent) HasTag(substr string) bool {
	for tag := range e.Tags {
		if strings.Contains(tag, substr) {
			return true
		}
	}
	return false
}

// TagList returns the tags as a sorted slice, for logging.
func (e *WebhookEvent) TagList() []string {
	tags := make([]string, 0, len(e.Tags))
	for tag := range e.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Identity is the account record owned by the identity provider.
type Identity struct {
	// ID is the provider's user identifier.
	ID string

	// Email is unique per identity, matched case-insensitively.
	Email string

	// Metadata carries role_hint, external_contact_id and full_name.
	Metadata map[string]interface{}
}

// Profile is the internal account record, 1:1 with an Identity by ID.
type Profile struct {
	// ID is the identity ID this profile belongs to.
	ID string

	// Role is monotonically non-decreasing across writes from this package.
	Role Role

	// Active is false while the account is suspended.
	Active bool

	// FullName is the display name, if known.
	FullName string

	// Preferences is a free-form key/value store. Writes merge keys,
	// never replace the whole map.
	Preferences map[string]interface{}

	// StatusUpdatedAt is set on every profile write from this package.
	StatusUpdatedAt time.Time
}

// Preference keys written by this package. Unrelated keys always survive.
const (
	PrefExternalContactID = "external_contact_id"
	PrefInitialCredits    = "initial_credits"
	PrefMonthlyCredits    = "monthly_credits"
	PrefDisabledMessage   = "disabled_message"
)

// Identity metadata keys written by this package.
const (
	MetaRoleHint          = "role_hint"
	MetaExternalContactID = "external_contact_id"
	MetaFullName          = "full_name"
)
