package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	schedulerCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosterbot",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Weekly scheduler cycles by result.",
		},
		[]string{"result"},
	)
	freezeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosterbot",
			Subsystem: "scheduler",
			Name:      "freeze_transitions_total",
			Help:      "Freeze begin and end transitions performed.",
		},
		[]string{"transition"},
	)
	contestedClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosterbot",
			Subsystem: "contested",
			Name:      "claims_total",
			Help:      "Frozen acquisition claims by resolution outcome.",
		},
		[]string{"outcome"},
	)
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rosterbot",
			Subsystem: "transactions",
			Name:      "submissions_total",
			Help:      "Ledger and trade submissions by result.",
		},
		[]string{"source", "result"},
	)
	registrySize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rosterbot",
			Subsystem: "transactions",
			Name:      "staged_entries",
			Help:      "Ledgers and trade negotiations held in memory.",
		},
		[]string{"registry"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(schedulerCycles, freezeTransitions, contestedClaims, submissions, registrySize)
	})
}

func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordSchedulerCycle(result string) {
	RegisterMetrics()
	schedulerCycles.WithLabelValues(result).Inc()
}

func RecordFreezeTransition(transition string) {
	RegisterMetrics()
	freezeTransitions.WithLabelValues(transition).Inc()
}

func RecordContestedClaims(outcome string, n int) {
	RegisterMetrics()
	contestedClaims.WithLabelValues(outcome).Add(float64(n))
}

func RecordSubmission(source, result string) {
	RegisterMetrics()
	submissions.WithLabelValues(source, result).Inc()
}

func SetRegistrySize(registry string, n int) {
	RegisterMetrics()
	registrySize.WithLabelValues(registry).Set(float64(n))
}
