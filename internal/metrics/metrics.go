package metrics

import (
	"github.com/mikey/submission-guard/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_decisions_total",
		Help: "Total number of submission decisions by outcome",
	}, []string{"outcome"})
	degradedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guard_decisions_degraded_total",
		Help: "Total number of decisions made with at least one detector unavailable",
	})
	hardGateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_hard_gate_trips_total",
		Help: "Total number of submissions rejected by a hard gate",
	}, []string{"detector"})
	detectorUnavailableTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_detector_unavailable_total",
		Help: "Total number of detector errors and timeouts",
	}, []string{"detector"})
	decisionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "guard_decision_latency_seconds",
		Help:    "Time taken to reach a decision",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	modelSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guard_model_training_samples",
		Help: "Number of samples the active classifier snapshot was trained on",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(decisionsTotal, degradedTotal, hardGateTotal, detectorUnavailableTotal, decisionLatency, modelSamples)
}

// SetModelSamples records the sample count of the active classifier snapshot.
func SetModelSamples(n int) { modelSamples.Set(float64(n)) }

// Observer feeds engine callbacks into the collectors
type Observer struct{}

// ObserveDecision implements core.DecisionObserver
func (Observer) ObserveDecision(d *core.RiskDecision) {
	decisionsTotal.WithLabelValues(string(d.Outcome)).Inc()
	decisionLatency.Observe(d.Latency.Seconds())
	if d.Degraded {
		degradedTotal.Inc()
	}
	for _, s := range d.Signals {
		if s.HardRule {
			hardGateTotal.WithLabelValues(s.Detector).Inc()
		}
	}
}

// ObserveUnavailable implements core.DecisionObserver
func (Observer) ObserveUnavailable(detector string) {
	detectorUnavailableTotal.WithLabelValues(detector).Inc()
}
