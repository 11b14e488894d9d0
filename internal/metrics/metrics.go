package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "droidbg",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "External tool invocations by binary and outcome.",
		}, []string{"tool", "outcome"},
	)
	scenarioResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "droidbg",
			Subsystem: "scenario",
			Name:      "results_total",
			Help:      "Scenario completions by name and result kind.",
		}, []string{"scenario", "result"},
	)
	scenarioDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "droidbg",
			Subsystem: "scenario",
			Name:      "duration_seconds",
			Help:      "Wall time per scenario run.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scenario"},
	)
	serverVerifyRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "droidbg",
			Subsystem: "debugserver",
			Name:      "verify_retries_total",
			Help:      "Extra settle-and-verify attempts spent starting the debug server.",
		},
	)
	resolvePolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "droidbg",
			Subsystem: "resolver",
			Name:      "polls_total",
			Help:      "Memory-map polls issued while resolving library bases.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{toolInvocations, scenarioResults, scenarioDuration, serverVerifyRetries, resolvePolls}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncToolInvocation(tool string, ok bool) {
	if regOK.Load() {
		outcome := "ok"
		if !ok {
			outcome = "error"
		}
		toolInvocations.WithLabelValues(tool, outcome).Inc()
	}
}

func IncScenarioResult(scenario, result string) {
	if regOK.Load() {
		scenarioResults.WithLabelValues(scenario, result).Inc()
	}
}

func ObserveScenarioDuration(scenario string, seconds float64) {
	if regOK.Load() {
		scenarioDuration.WithLabelValues(scenario).Observe(seconds)
	}
}

func IncServerVerifyRetry() {
	if regOK.Load() {
		serverVerifyRetries.Inc()
	}
}

func IncResolvePoll() {
	if regOK.Load() {
		resolvePolls.Inc()
	}
}
