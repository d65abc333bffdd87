package accountsync

import (
	"fmt"
	"strings"
)

// Config defines the reconciliation configuration shared by the classifier
// and the reconciler.
type Config struct {
	// ProProductIDs lists vendor product IDs that grant the pro role.
	ProProductIDs []string

	// TrialProductIDs lists vendor product IDs that start a trial.
	TrialProductIDs []string

	// InitialCredits is written to preferences on first account creation.
	InitialCredits int

	// MonthlyCredits is written to preferences on first account creation.
	MonthlyCredits int

	// EnableInvites controls whether newly created identities receive an
	// invitation email.
	EnableInvites bool

	// InviteRedirectURL is the landing URL attached to invitations.
	InviteRedirectURL string

	// PaymentFailedMessage is stored as the disabled_message when a
	// payment failure suspends an account. Optional.
	PaymentFailedMessage string

	// CancellationMessage is stored as the disabled_message when a
	// cancellation suspends an account. Optional.
	CancellationMessage string

	// Logger is an optional structured logger. Defaults to NoopLogger.
	Logger Logger

	// Metrics is an optional metrics collector. Defaults to NoopMetrics.
	Metrics Metrics
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.InitialCredits < 0 {
		return fmt.Errorf("initial credits must not be negative: %d", c.InitialCredits)
	}
	if c.MonthlyCredits < 0 {
		return fmt.Errorf("monthly credits must not be negative: %d", c.MonthlyCredits)
	}
	seen := make(map[string]string)
	for _, id := range c.ProProductIDs {
		seen[normalizeProductID(id)] = "pro"
	}
	for _, id := range c.TrialProductIDs {
		if kind, ok := seen[normalizeProductID(id)]; ok && kind == "pro" {
			return fmt.Errorf("product id %q is in both the pro and trial sets", id)
		}
	}
	return nil
}

func normalizeProductID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// productSet folds a product ID list into a lookup set.
func productSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = normalizeProductID(id)
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
