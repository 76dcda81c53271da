// Package metrics exposes Prometheus instrumentation for rule mutations,
// closure rebuilds and tag expansion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagrules"

// Mutation outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// mutations counts guarded mutations by operation and outcome.
	mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "mutations_total",
		Help:      "Guarded rule mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	// rulesVersion mirrors the last committed version seen by this process.
	rulesVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "version",
		Help:      "Last committed rules version observed by this process",
	})

	closureRebuild = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "hierarchy",
		Name:      "closure_rebuild_seconds",
		Help:      "Time to recompute and store the closure table",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	closureRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hierarchy",
		Name:      "closure_rows",
		Help:      "Rows written by the last closure rebuild",
	})

	expansions = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "expand",
		Name:      "duration_seconds",
		Help:      "Tag expansion latency",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// indexLoads counts expansion index reloads. Labels: source (cache, store)
	indexLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "expand",
		Name:      "index_loads_total",
		Help:      "Expansion index loads by source",
	}, []string{"source"})
)

// RecordMutation counts one guarded mutation.
func RecordMutation(operation, outcome string) {
	mutations.WithLabelValues(operation, outcome).Inc()
}

// SetVersion records the latest committed version.
func SetVersion(v int64) {
	rulesVersion.Set(float64(v))
}

// ObserveClosureRebuild records a rebuild that wrote rows closure entries.
func ObserveClosureRebuild(d time.Duration, rows int) {
	closureRebuild.Observe(d.Seconds())
	closureRows.Set(float64(rows))
}

// ObserveExpansion records one expansion call.
func ObserveExpansion(d time.Duration) {
	expansions.Observe(d.Seconds())
}

// RecordIndexLoad counts an expansion index load from source.
func RecordIndexLoad(source string) {
	indexLoads.WithLabelValues(source).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
