package metrics

import (
	"testing"
	"time"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver(t *testing.T) {
	rejects := testutil.ToFloat64(decisionsTotal.WithLabelValues("reject"))
	honeypot := testutil.ToFloat64(hardGateTotal.WithLabelValues(core.DetectorHoneypot))
	degraded := testutil.ToFloat64(degradedTotal)
	mlDown := testutil.ToFloat64(detectorUnavailableTotal.WithLabelValues(core.DetectorML))

	var o Observer
	o.ObserveDecision(&core.RiskDecision{
		Outcome:  core.OutcomeReject,
		Latency:  3 * time.Millisecond,
		Degraded: true,
		Signals:  []core.SignalResult{{Detector: core.DetectorHoneypot, HardRule: true, Score: 1}},
	})
	o.ObserveUnavailable(core.DetectorML)

	assert.Equal(t, rejects+1, testutil.ToFloat64(decisionsTotal.WithLabelValues("reject")))
	assert.Equal(t, honeypot+1, testutil.ToFloat64(hardGateTotal.WithLabelValues(core.DetectorHoneypot)))
	assert.Equal(t, degraded+1, testutil.ToFloat64(degradedTotal))
	assert.Equal(t, mlDown+1, testutil.ToFloat64(detectorUnavailableTotal.WithLabelValues(core.DetectorML)))

	SetModelSamples(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(modelSamples))
}

func TestRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(registry) })

	var o Observer
	o.ObserveDecision(&core.RiskDecision{Outcome: core.OutcomeAccept})

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "guard_decisions_total")
	assert.Contains(t, names, "guard_decision_latency_seconds")
}
