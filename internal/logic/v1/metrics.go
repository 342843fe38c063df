package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	participationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "participation_decisions_total",
			Help: "Participation decisions by requested session type and outcome.",
		},
		[]string{"operation", "session_type", "outcome"},
	)

	vouchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vouch_outcomes_total",
			Help: "Vouch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	txRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_tx_retries_total",
			Help: "Transactions replayed after a write conflict.",
		},
		[]string{"operation"},
	)
)

func outcomeLabel(allowed bool, code DenialCode) string {
	if allowed {
		return "allowed"
	}
	return string(code)
}
