// Package metric provides Prometheus-based metrics collection and an HTTP
// server for TriggerKit platform monitoring.
//
// The package offers a centralized registry managing both core platform
// metrics (component status, signal processing, NATS health) and custom
// component-specific metrics. Core metrics use the "triggerkit" namespace:
//
//   - triggerkit_component_status{component="..."}
//   - triggerkit_signals_received_total{component="...",type="..."}
//   - triggerkit_signals_processed_total{component="...",type="...",status="..."}
//   - triggerkit_events_published_total{component="...",subject="..."}
//   - triggerkit_nats_connected
//
// Components register their own metrics through the MetricsRegistrar
// interface, which enables testing with mock registrars:
//
//	registry := metric.NewMetricsRegistry()
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "evaluations_total",
//	    Help: "Total trigger evaluations",
//	})
//	err := registry.RegisterCounter("evaluator", "evaluations_total", counter)
//
// The Server type exposes metrics in Prometheus format alongside a plain
// /health endpoint:
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
// All registry operations are thread-safe; metric recording itself is
// lock-free per the Prometheus client guarantees.
package metric
