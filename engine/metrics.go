package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/metric"
)

// engineMetrics holds Prometheus metrics for the engine lifecycle
type engineMetrics struct {
	startsTotal       prometheus.Counter
	stopsTotal        prometheus.Counter
	componentsRunning prometheus.Gauge
	startDuration     prometheus.Histogram
	activeTriggers    prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newEngineMetrics(registry *metric.MetricsRegistry) *engineMetrics {
	if registry == nil {
		return nil
	}

	metrics := &engineMetrics{
		startsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Engine start operations",
		}),
		stopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "engine",
			Name:      "stops_total",
			Help:      "Engine stop operations",
		}),
		componentsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "engine",
			Name:      "components_running",
			Help:      "Components currently started",
		}),
		startDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triggerkit",
			Subsystem: "engine",
			Name:      "start_duration_seconds",
			Help:      "Time to bring all components up",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		activeTriggers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "engine",
			Name:      "active_triggers",
			Help:      "Armed triggers in the registry",
		}),
	}

	registry.RegisterCounter("engine", "starts", metrics.startsTotal)
	registry.RegisterCounter("engine", "stops", metrics.stopsTotal)
	registry.RegisterGauge("engine", "components_running", metrics.componentsRunning)
	registry.RegisterHistogram("engine", "start_duration", metrics.startDuration)
	registry.RegisterGauge("engine", "active_triggers", metrics.activeTriggers)

	return metrics
}

func (m *engineMetrics) recordStart(seconds float64) {
	if m == nil {
		return
	}
	m.startsTotal.Inc()
	m.startDuration.Observe(seconds)
}

func (m *engineMetrics) recordStop() {
	if m == nil {
		return
	}
	m.stopsTotal.Inc()
}

func (m *engineMetrics) setComponentsRunning(n int) {
	if m == nil {
		return
	}
	m.componentsRunning.Set(float64(n))
}

func (m *engineMetrics) setActiveTriggers(n int) {
	if m == nil {
		return
	}
	m.activeTriggers.Set(float64(n))
}
