package persona

import (
	"time"

	"github.com/personalens/persona-mvp/pkg/metrics"
)

// Metrics instruments pipeline runs on a shared registry. All methods are
// no-ops on a nil receiver.
type Metrics struct {
	reg *metrics.Registry
}

// NewMetrics wires pipeline metrics into reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{reg: reg}
}

// RunStarted counts a new pipeline run and marks it in flight.
func (m *Metrics) RunStarted() {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Counter("persona_runs_started_total", "Pipeline runs started.").Inc()
	m.reg.Gauge("persona_runs_in_flight", "Pipeline runs currently executing.").Inc()
}

// RunFinished counts a finished run by result ("ok" or an error kind) and
// takes it out of flight.
func (m *Metrics) RunFinished(result string) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Gauge("persona_runs_in_flight", "Pipeline runs currently executing.").Dec()
	m.reg.Counter(
		metrics.WithLabels("persona_runs_total", "result", result),
		"Pipeline runs finished, by result.",
	).Inc()
}

// ObserveStage records one stage's latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || m.reg == nil {
		return
	}
	m.reg.Histogram(
		metrics.WithLabels("persona_stage_duration_seconds", "stage", stage),
		"Pipeline stage latency in seconds.",
		nil,
	).Observe(d.Seconds())
}
