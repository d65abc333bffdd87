package accountsync

import (
	"fmt"
	"strings"
)

// Classify maps a normalized event to a lifecycle action. It is a pure,
// total function: every event yields exactly one action, first match wins.
//
// Vendor-controlled product identifiers are checked first as the most
// reliable signal; free-text event-type and tag matching are best-effort
// fallbacks for inconsistent upstream configuration.
func Classify(event *WebhookEvent, cfg *Config) (Action, string) {
	productID := normalizeProductID(event.ProductID)
	if productID != "" {
		if _, ok := productSet(cfg.ProProductIDs)[productID]; ok {
			return ActionProPurchase, fmt.Sprintf("product %q in pro set", event.ProductID)
		}
		if _, ok := productSet(cfg.TrialProductIDs)[productID]; ok {
			return ActionTrialSignup, fmt.Sprintf("product %q in trial set", event.ProductID)
		}
	}

	eventType := event.EventType
	switch {
	case strings.Contains(eventType, "trial"):
		return ActionTrialSignup, fmt.Sprintf("event type %q mentions trial", eventType)

	case strings.Contains(eventType, "payment") && strings.Contains(eventType, "failed"):
		return ActionPaymentFailed, fmt.Sprintf("event type %q is a payment failure", eventType)

	case strings.Contains(eventType, "payment") &&
		(strings.Contains(eventType, "success") || strings.Contains(eventType, "paid") ||
			strings.Contains(eventType, "recovered")):
		return ActionPaymentRecovered, fmt.Sprintf("event type %q is a successful payment", eventType)

	case strings.Contains(eventType, "recover") || strings.Contains(eventType, "reactivat"):
		return ActionPaymentRecovered, fmt.Sprintf("event type %q is a recovery", eventType)

	case strings.Contains(eventType, "cancel"):
		return ActionCancellation, fmt.Sprintf("event type %q is a cancellation", eventType)
	}

	if event.HasTag("pro") {
		return ActionProPurchase, "tagged pro"
	}
	if event.HasTag("trial") {
		return ActionTrialSignup, "tagged trial"
	}

	// Low-impact default: a bare contact still refreshes contact linkage
	// instead of being silently discarded.
	if event.Contact.Email != "" {
		return ActionUserUpdate, "contact email present, no lifecycle signal"
	}

	return ActionIgnore, "no contact email and no lifecycle signal"
}
