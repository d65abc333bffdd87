// Package prommetrics provides a Prometheus implementation of the
// accountsync.Metrics interface.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements accountsync.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal *prometheus.CounterVec
	webhookDuration    *prometheus.HistogramVec
	webhookErrorsTotal *prometheus.CounterVec
	accountsCreated    prometheus.Counter
	roleChangesTotal   *prometheus.CounterVec
	invitesSentTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total number of processed webhook events.",
		}, []string{"action", "status"}),

		webhookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_duration_seconds",
			Help:      "Latency of end-to-end webhook processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook failures by stage.",
		}, []string{"error_type"}),

		accountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_created_total",
			Help:      "Total number of identity+profile pairs created.",
		}),

		roleChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_changes_total",
			Help:      "Total number of role transitions on existing profiles.",
		}, []string{"from_role", "to_role"}),

		invitesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invites_sent_total",
			Help:      "Total number of invitation attempts.",
		}, []string{"status"}),
	}
}

func (m *Metrics) RecordWebhookEvent(action, status string) {
	m.webhookEventsTotal.WithLabelValues(action, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(action string, duration time.Duration) {
	m.webhookDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(errorType string) {
	m.webhookErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordAccountCreated() {
	m.accountsCreated.Inc()
}

func (m *Metrics) RecordRoleChange(fromRole, toRole string) {
	m.roleChangesTotal.WithLabelValues(fromRole, toRole).Inc()
}

func (m *Metrics) RecordInviteSent(status string) {
	m.invitesSentTotal.WithLabelValues(status).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default
// Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
