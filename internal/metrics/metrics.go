// Package metrics holds the Prometheus collectors drivegate exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the operator-facing counters.
type Metrics struct {
	AuditWritten   prometheus.Counter
	AuditFailed    prometheus.Counter
	AuditDropped   prometheus.Counter
	TokenRefreshes *prometheus.CounterVec
	DriveCalls     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuditWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drivegate",
			Name:      "audit_entries_written_total",
			Help:      "Audit log entries persisted.",
		}),
		AuditFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drivegate",
			Name:      "audit_entries_failed_total",
			Help:      "Audit log entries whose write returned an error.",
		}),
		AuditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "drivegate",
			Name:      "audit_entries_dropped_total",
			Help:      "Audit log entries discarded because the queue was full or closed.",
		}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivegate",
			Name:      "token_refreshes_total",
			Help:      "OAuth access token refresh attempts by result.",
		}, []string{"result"}),
		DriveCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drivegate",
			Name:      "drive_operations_total",
			Help:      "File operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.AuditWritten, m.AuditFailed, m.AuditDropped, m.TokenRefreshes, m.DriveCalls)
	}
	return m
}

// Nop returns unregistered collectors, for tests and tools.
func Nop() *Metrics { return New(nil) }
