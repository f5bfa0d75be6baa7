package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	// LifecycleOps counts document lifecycle operations by operation and outcome (ok|error).
	LifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "lifecycle_operations_total", Help: "Document lifecycle operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	RemindersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "reminders_fired_total", Help: "Reminders delivered, by channel (system|toast)."},
		[]string{"channel"},
	)
	// BlobDeletes counts blob deletions during permanent delete by result (deleted|not_found|failed).
	BlobDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "blob_deletes_total", Help: "Blob deletions performed by permanent delete, by result."},
		[]string{"result"},
	)
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "docvault", Name: "active_subscriptions", Help: "Open document subscriptions across all managers."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(LifecycleOps)
	reg.MustRegister(RemindersFired)
	reg.MustRegister(BlobDeletes)
	reg.MustRegister(ActiveSubscriptions)
}
