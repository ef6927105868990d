// Package location provides the position input component. It wraps a
// platform geolocation Provider and publishes position updates to the
// signal.location NATS subject for the evaluator to consume.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/pkg/retry"
	"github.com/c360/triggerkit/trigger"
)

// DefaultSubject is the NATS subject position updates are published to
const DefaultSubject = "signal.location"

// Metrics holds Prometheus metrics for the location source
type Metrics struct {
	positionsReceived  prometheus.Counter
	positionsPublished prometheus.Counter
	positionsDropped   prometheus.Counter
	providerErrors     prometheus.Counter
	lastActivity       prometheus.Gauge
}

// newMetrics creates and registers location source metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		positionsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "location",
			Name:      "positions_received_total",
			Help:      "Position fixes received from the provider",
		}),
		positionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "location",
			Name:      "positions_published_total",
			Help:      "Position updates published to NATS",
		}),
		positionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "location",
			Name:      "positions_dropped_total",
			Help:      "Position fixes dropped by the accuracy filter",
		}),
		providerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "location",
			Name:      "provider_errors_total",
			Help:      "Errors reported by the position provider",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "location",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of the last provider delivery",
		}),
	}

	registry.RegisterCounter("location_source", "positions_received", metrics.positionsReceived)
	registry.RegisterCounter("location_source", "positions_published", metrics.positionsPublished)
	registry.RegisterCounter("location_source", "positions_dropped", metrics.positionsDropped)
	registry.RegisterCounter("location_source", "provider_errors", metrics.providerErrors)
	registry.RegisterGauge("location_source", "last_activity", metrics.lastActivity)

	return metrics
}

// sourceSchema is generated once from SourceConfig struct tags
var sourceSchema = component.GenerateConfigSchema(reflect.TypeOf(SourceConfig{}))

// SourceConfig holds configuration for the location source
type SourceConfig struct {
	Subject           string  `json:"subject" schema:"type:string,description:NATS subject for position updates,default:signal.location"`
	MinAccuracyMeters float64 `json:"min_accuracy_meters" schema:"type:float,description:Drop fixes with a worse accuracy radius; 0 disables the filter,default:0"`
}

// Validate implements component.Validatable
func (c *SourceConfig) Validate() error {
	if c.MinAccuracyMeters < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("min_accuracy_meters must be >= 0, got %v", c.MinAccuracyMeters),
			"SourceConfig", "Validate", "accuracy filter validation")
	}
	return nil
}

// DefaultConfig returns defaults for the location source
func DefaultConfig() SourceConfig {
	return SourceConfig{Subject: DefaultSubject}
}

// SourceDeps holds runtime dependencies for the location source
type SourceDeps struct {
	Name            string
	Config          SourceConfig
	Provider        Provider
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Source wraps a position Provider and republishes its fixes to NATS.
// Provider errors are logged and counted; they suspend location
// evaluation until the next fix but never stop the component.
type Source struct {
	name        string
	subject     string
	minAccuracy float64
	provider    Provider
	natsClient  *natsclient.Client
	logger      *slog.Logger
	retryConfig retry.Config

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup

	positionsReceived  atomic.Int64
	positionsPublished atomic.Int64
	errorCount         atomic.Int64
	lastError          atomic.Value // stores string
	lastActivity       atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Source)(nil)
var _ component.LifecycleComponent = (*Source)(nil)

// NewSource creates a location source component
func NewSource(deps SourceDeps) *Source {
	subject := deps.Config.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "location-source")
	}

	s := &Source{
		name:        deps.Name,
		subject:     subject,
		minAccuracy: deps.Config.MinAccuracyMeters,
		provider:    deps.Provider,
		natsClient:  deps.NATSClient,
		logger:      logger,
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.MetricsRegistry),
	}
	s.lastError.Store("")
	s.lastActivity.Store(time.Time{})
	return s
}

// Meta returns the component metadata
func (s *Source) Meta() component.Metadata {
	name := s.name
	if name == "" {
		name = "location-source"
	}

	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("Position provider bridge publishing to %s", s.subject),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (s *Source) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "position_provider",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Platform geolocation provider delivering position fixes",
			Config:      component.ProviderPort{Kind: "geolocation"},
		},
	}
}

// OutputPorts returns the output ports for this component
func (s *Source) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "position_output",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "NATS subject for position updates",
			Config:      component.NATSPort{Subject: s.subject},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (s *Source) ConfigSchema() component.ConfigSchema {
	return sourceSchema
}

// Health returns the current health status of the component
func (s *Source) Health() component.HealthStatus {
	lastError, _ := s.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()),
		LastError:  lastError,
		Uptime:     time.Since(s.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (s *Source) DataFlow() component.FlowMetrics {
	received := s.positionsReceived.Load()
	errorCount := s.errorCount.Load()
	lastActivity, _ := s.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(s.startTime).Seconds(); uptime > 0 {
		perSecond = float64(received) / uptime
	}
	if received > 0 {
		errorRate = float64(errorCount) / float64(received)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize prepares the source but does not start the subscription
func (s *Source) Initialize() error {
	if s.provider == nil {
		return errors.WrapInvalid(fmt.Errorf("nil position provider"),
			"location-source", "Initialize", "provider validation")
	}
	if s.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"location-source", "Initialize", "NATS client validation")
	}
	if s.subject == "" {
		return errors.WrapInvalid(fmt.Errorf("empty subject"),
			"location-source", "Initialize", "subject validation")
	}
	return nil
}

// Start subscribes to the provider and begins republishing fixes.
// A provider that refuses the subscription leaves the component degraded
// but does not fail engine startup; location evaluation resumes when the
// component is restarted.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	updates, err := s.provider.Subscribe(ctx)
	if err != nil {
		s.errorCount.Add(1)
		s.lastError.Store(err.Error())
		s.logger.Error("position provider subscription failed, location evaluation suspended",
			"error", err)
		return nil
	}

	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	s.startTime = time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.run(ctx, updates)
	}()

	return nil
}

// Stop halts the subscription and waits for the loop to drain
func (s *Source) Stop(timeout time.Duration) error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	s.mu.Lock()
	if s.shutdown != nil {
		select {
		case <-s.shutdown:
		default:
			close(s.shutdown)
		}
	}
	done := s.done
	s.mu.Unlock()

	s.provider.Unsubscribe()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
				"location-source", "Stop", "graceful shutdown")
		}
	}

	return nil
}

// run consumes provider updates until shutdown or channel close
func (s *Source) run(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.handleUpdate(ctx, u)
		}
	}
}

// handleUpdate processes one provider delivery
func (s *Source) handleUpdate(ctx context.Context, u Update) {
	now := time.Now()
	s.lastActivity.Store(now)
	if s.metrics != nil {
		s.metrics.lastActivity.Set(float64(now.Unix()))
	}

	if u.Err != nil {
		s.errorCount.Add(1)
		s.lastError.Store(u.Err.Error())
		if s.metrics != nil {
			s.metrics.providerErrors.Inc()
		}
		s.logger.Warn("position provider error", "error", u.Err)
		return
	}

	s.positionsReceived.Add(1)
	if s.metrics != nil {
		s.metrics.positionsReceived.Inc()
	}

	if s.minAccuracy > 0 && u.Position.Accuracy > s.minAccuracy {
		if s.metrics != nil {
			s.metrics.positionsDropped.Inc()
		}
		s.logger.Debug("position dropped by accuracy filter",
			"accuracy", u.Position.Accuracy, "min_accuracy", s.minAccuracy)
		return
	}

	if err := s.publish(ctx, u.Position); err != nil {
		s.errorCount.Add(1)
		s.lastError.Store(err.Error())
		s.logger.Warn("failed to publish position", "subject", s.subject, "error", err)
		return
	}

	s.positionsPublished.Add(1)
	if s.metrics != nil {
		s.metrics.positionsPublished.Inc()
	}
}

// publish encodes a position and publishes it with retry
func (s *Source) publish(ctx context.Context, pos trigger.Position) error {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}

	data, err := json.Marshal(pos)
	if err != nil {
		return errors.WrapInvalid(err, "location-source", "publish", "position encoding")
	}

	return retry.Do(ctx, s.retryConfig, func() error {
		return s.natsClient.Publish(ctx, s.subject, data)
	})
}

// CreateSource creates a location source component from raw config
func CreateSource(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig SourceConfig
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "location-source-factory", "create", "config parsing")
		}
		if userConfig.Subject != "" {
			cfg.Subject = userConfig.Subject
		}
		cfg.MinAccuracyMeters = userConfig.MinAccuracyMeters
	}

	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"location-source-factory", "create", "NATS client validation")
	}

	provider, _ := deps.Positions.(Provider)
	if provider == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("position provider is required"),
			"location-source-factory", "create", "provider validation")
	}

	return NewSource(SourceDeps{
		Name:            "location-source",
		Config:          cfg,
		Provider:        provider,
		NATSClient:      deps.NATSClient,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.GetLoggerWithComponent("location-source"),
	}), nil
}

// Register registers the location source factory with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "location",
		Factory:     CreateSource,
		Schema:      sourceSchema,
		Type:        "input",
		Protocol:    "provider",
		Domain:      "geolocation",
		Description: "Position provider bridge publishing location signals",
		Version:     "1.0.0",
	})
}
