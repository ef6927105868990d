package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not domain-specific)
type Metrics struct {
	// Component metrics
	ComponentStatus    *prometheus.GaugeVec
	SignalsReceived    *prometheus.CounterVec
	SignalsProcessed   *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "triggerkit",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		SignalsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggerkit",
				Subsystem: "signals",
				Name:      "received_total",
				Help:      "Total number of signals received",
			},
			[]string{"component", "type"},
		),

		SignalsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggerkit",
				Subsystem: "signals",
				Name:      "processed_total",
				Help:      "Total number of signals processed",
			},
			[]string{"component", "type", "status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggerkit",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published",
			},
			[]string{"component", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "triggerkit",
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Signal processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "triggerkit",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "triggerkit",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		// NATS metrics
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "triggerkit",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "triggerkit",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "triggerkit",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "triggerkit",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordComponentStatus updates component status metric
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordSignalReceived increments received signal counter
func (c *Metrics) RecordSignalReceived(component, signalType string) {
	c.SignalsReceived.WithLabelValues(component, signalType).Inc()
}

// RecordSignalProcessed increments processed signal counter
func (c *Metrics) RecordSignalProcessed(component, signalType, status string) {
	c.SignalsProcessed.WithLabelValues(component, signalType, status).Inc()
}

// RecordEventPublished increments published event counter
func (c *Metrics) RecordEventPublished(component, subject string) {
	c.EventsPublished.WithLabelValues(component, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(component, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
