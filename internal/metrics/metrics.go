// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PersistWrites counts wholesale writes of tenant data, by data kind and outcome.
	PersistWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Name:      "persist_writes_total",
		Help:      "Tenant data writes by data kind and outcome.",
	}, []string{"kind", "outcome"})

	// ReportRuns counts report generator calls, by operation and outcome.
	ReportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Name:      "report_runs_total",
		Help:      "Report generation and refinement calls by outcome.",
	}, []string{"op", "outcome"})

	// AuthAttempts counts registrations and logins, by operation and outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Name:      "auth_attempts_total",
		Help:      "Registration and login attempts by outcome.",
	}, []string{"op", "outcome"})
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
