package accountsync

import "time"

// Metrics defines the interface for tracking reconciliation operations.
// All methods are optional - callers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a processed webhook event.
	// action: the classified lifecycle action (e.g. "pro_purchase")
	// status: "success", "skipped" or "error"
	RecordWebhookEvent(action, status string)

	// RecordWebhookProcessingDuration records how long a webhook took end to end.
	RecordWebhookProcessingDuration(action string, duration time.Duration)

	// RecordWebhookError records a webhook failure by stage.
	// errorType: "auth_failed", "invalid_payload", "processing_error", "payload_too_large"
	RecordWebhookError(errorType string)

	// RecordAccountCreated records that a new identity+profile pair was created.
	RecordAccountCreated()

	// RecordRoleChange records a role transition on an existing profile.
	RecordRoleChange(fromRole, toRole string)

	// RecordInviteSent records an invitation attempt.
	// status: "success" or "error"
	RecordInviteSent(status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_ string)                               {}
func (n *NoopMetrics) RecordAccountCreated()                                     {}
func (n *NoopMetrics) RecordRoleChange(_, _ string)                              {}
func (n *NoopMetrics) RecordInviteSent(_ string)                                 {}
