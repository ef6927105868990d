package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/metric"
)

// evalMetrics holds Prometheus metrics for the condition evaluator
type evalMetrics struct {
	signalsReceived  *prometheus.CounterVec
	evaluationsTotal *prometheus.CounterVec
	triggersFired    *prometheus.CounterVec
	rateLimited      prometheus.Counter
	malformedSignals prometheus.Counter
	evalDuration     prometheus.Histogram
}

// newEvalMetrics creates and registers evaluator metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newEvalMetrics(registry *metric.MetricsRegistry) *evalMetrics {
	if registry == nil {
		return nil
	}

	metrics := &evalMetrics{
		signalsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "signals_received_total",
			Help:      "Signals consumed from NATS by kind",
		}, []string{"kind"}),

		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "evaluations_total",
			Help:      "Trigger condition evaluations by kind",
		}, []string{"kind"}),

		triggersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "triggers_fired_total",
			Help:      "Triggers that passed conditions and rate limiting",
		}, []string{"kind"}),

		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "rate_limited_total",
			Help:      "Fires suppressed by quiet hours, enabled days, or the daily cap",
		}),

		malformedSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "malformed_signals_total",
			Help:      "Signals dropped because they failed to decode",
		}),

		evalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triggerkit",
			Subsystem: "evaluator",
			Name:      "evaluation_duration_seconds",
			Help:      "Time to evaluate one signal against all active triggers",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}

	registry.RegisterCounterVec("evaluator", "signals_received", metrics.signalsReceived)
	registry.RegisterCounterVec("evaluator", "evaluations", metrics.evaluationsTotal)
	registry.RegisterCounterVec("evaluator", "triggers_fired", metrics.triggersFired)
	registry.RegisterCounter("evaluator", "rate_limited", metrics.rateLimited)
	registry.RegisterCounter("evaluator", "malformed_signals", metrics.malformedSignals)
	registry.RegisterHistogram("evaluator", "evaluation_duration", metrics.evalDuration)

	return metrics
}

func (m *evalMetrics) recordSignal(kind string) {
	if m == nil {
		return
	}
	m.signalsReceived.WithLabelValues(kind).Inc()
}

func (m *evalMetrics) recordEvaluation(kind string) {
	if m == nil {
		return
	}
	m.evaluationsTotal.WithLabelValues(kind).Inc()
}

func (m *evalMetrics) recordFired(kind string) {
	if m == nil {
		return
	}
	m.triggersFired.WithLabelValues(kind).Inc()
}

func (m *evalMetrics) recordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *evalMetrics) recordMalformed() {
	if m == nil {
		return
	}
	m.malformedSignals.Inc()
}

func (m *evalMetrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.evalDuration.Observe(seconds)
}
