// Package clock provides the clock input component. It publishes
// periodic ticks to the signal.clock NATS subject so the evaluator can
// check date-based triggers.
package clock

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

// Defaults for the clock component
const (
	DefaultSubject         = "signal.clock"
	DefaultIntervalSeconds = 60
)

// Metrics holds Prometheus metrics for the clock component
type Metrics struct {
	ticksPublished prometheus.Counter
	publishErrors  prometheus.Counter
	lastTick       prometheus.Gauge
}

// newMetrics creates and registers clock metrics.
// Returns nil if no registry provided (nil input = nil feature pattern).
func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		ticksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "clock",
			Name:      "ticks_published_total",
			Help:      "Clock ticks published to NATS",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "triggerkit",
			Subsystem: "clock",
			Name:      "publish_errors_total",
			Help:      "Tick publishes that failed after retries",
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "triggerkit",
			Subsystem: "clock",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last published tick",
		}),
	}

	registry.RegisterCounter("clock", "ticks_published", metrics.ticksPublished)
	registry.RegisterCounter("clock", "publish_errors", metrics.publishErrors)
	registry.RegisterGauge("clock", "last_tick", metrics.lastTick)

	return metrics
}

// clockSchema is generated once from Config struct tags
var clockSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the clock component
type Config struct {
	Subject         string `json:"subject" schema:"type:string,description:NATS subject for clock ticks,default:signal.clock"`
	IntervalSeconds int    `json:"interval_seconds" schema:"type:int,description:Seconds between ticks,default:60"`
}

// Validate implements component.Validatable
func (c *Config) Validate() error {
	if c.IntervalSeconds < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("interval_seconds must be >= 0, got %d", c.IntervalSeconds),
			"Config", "Validate", "interval validation")
	}
	return nil
}

// DefaultConfig returns defaults for the clock component
func DefaultConfig() Config {
	return Config{
		Subject:         DefaultSubject,
		IntervalSeconds: DefaultIntervalSeconds,
	}
}

// Deps holds runtime dependencies for the clock component
type Deps struct {
	Name            string
	Config          Config
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Clock publishes a tick to NATS at a fixed interval. One tick is
// published immediately on start so date triggers are checked without
// waiting a full interval.
type Clock struct {
	name       string
	subject    string
	interval   time.Duration
	natsClient *natsclient.Client
	logger     *slog.Logger

	retryConfig retry.Config
	now         func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.Mutex
	wg        sync.WaitGroup

	ticksPublished atomic.Int64
	errorCount     atomic.Int64
	lastError      atomic.Value // stores string
	lastTick       atomic.Value // stores time.Time

	metrics *Metrics
}

var _ component.Discoverable = (*Clock)(nil)
var _ component.LifecycleComponent = (*Clock)(nil)

// New creates a clock component
func New(deps Deps) *Clock {
	subject := deps.Config.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	intervalSeconds := deps.Config.IntervalSeconds
	if intervalSeconds <= 0 {
		intervalSeconds = DefaultIntervalSeconds
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "clock")
	}

	c := &Clock{
		name:        deps.Name,
		subject:     subject,
		interval:    time.Duration(intervalSeconds) * time.Second,
		natsClient:  deps.NATSClient,
		logger:      logger,
		retryConfig: retry.DefaultConfig(),
		now:         time.Now,
		startTime:   time.Now(),
		metrics:     newMetrics(deps.MetricsRegistry),
	}
	c.lastError.Store("")
	c.lastTick.Store(time.Time{})
	return c
}

// Meta returns the component metadata
func (c *Clock) Meta() component.Metadata {
	name := c.name
	if name == "" {
		name = "clock"
	}

	return component.Metadata{
		Name:        name,
		Type:        "input",
		Description: fmt.Sprintf("Clock publishing ticks to %s every %s", c.subject, c.interval),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (c *Clock) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "timer",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Internal periodic timer",
			Config:      component.TimerPort{Interval: c.interval.String()},
		},
	}
}

// OutputPorts returns the output ports for this component
func (c *Clock) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "tick_output",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "NATS subject for clock ticks",
			Config:      component.NATSPort{Subject: c.subject},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (c *Clock) ConfigSchema() component.ConfigSchema {
	return clockSchema
}

// Health returns the current health status of the component
func (c *Clock) Health() component.HealthStatus {
	lastError, _ := c.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    c.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(c.errorCount.Load()),
		LastError:  lastError,
		Uptime:     time.Since(c.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (c *Clock) DataFlow() component.FlowMetrics {
	ticks := c.ticksPublished.Load()
	errorCount := c.errorCount.Load()
	lastTick, _ := c.lastTick.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(c.startTime).Seconds(); uptime > 0 {
		perSecond = float64(ticks) / uptime
	}
	if total := ticks + errorCount; total > 0 {
		errorRate = float64(errorCount) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastTick,
	}
}

// Initialize prepares the clock but does not start the ticker
func (c *Clock) Initialize() error {
	if c.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"clock", "Initialize", "NATS client validation")
	}
	if c.subject == "" {
		return errors.WrapInvalid(fmt.Errorf("empty subject"),
			"clock", "Initialize", "subject validation")
	}
	if c.interval <= 0 {
		return errors.WrapInvalid(fmt.Errorf("non-positive interval %v", c.interval),
			"clock", "Initialize", "interval validation")
	}
	return nil
}

// Start begins publishing ticks
func (c *Clock) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return nil
	}

	c.shutdown = make(chan struct{})
	c.done = make(chan struct{})
	c.running.Store(true)
	c.startTime = time.Now()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.done)
		c.run(ctx)
	}()

	return nil
}

// Stop halts the ticker and waits for the loop to drain
func (c *Clock) Stop(timeout time.Duration) error {
	if !c.running.Load() {
		return nil
	}
	c.running.Store(false)

	c.mu.Lock()
	if c.shutdown != nil {
		select {
		case <-c.shutdown:
		default:
			close(c.shutdown)
		}
	}
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
				"clock", "Stop", "graceful shutdown")
		}
	}

	return nil
}

// run publishes one immediate tick, then one per interval
func (c *Clock) run(ctx context.Context) {
	c.publishTick(ctx, c.now())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case now := <-ticker.C:
			c.publishTick(ctx, now)
		}
	}
}

// publishTick encodes and publishes one tick with retry
func (c *Clock) publishTick(ctx context.Context, now time.Time) {
	data, err := json.Marshal(trigger.Tick{Time: now})
	if err != nil {
		c.recordError(err)
		return
	}

	err = retry.Do(ctx, c.retryConfig, func() error {
		return c.natsClient.Publish(ctx, c.subject, data)
	})
	if err != nil {
		c.recordError(err)
		c.logger.Warn("failed to publish tick", "subject", c.subject, "error", err)
		return
	}

	c.ticksPublished.Add(1)
	c.lastTick.Store(now)
	if c.metrics != nil {
		c.metrics.ticksPublished.Inc()
		c.metrics.lastTick.Set(float64(now.Unix()))
	}
}

func (c *Clock) recordError(err error) {
	c.errorCount.Add(1)
	c.lastError.Store(err.Error())
	if c.metrics != nil {
		c.metrics.publishErrors.Inc()
	}
}

// Create creates a clock component from raw config
func Create(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "clock-factory", "create", "config parsing")
		}
		if userConfig.Subject != "" {
			cfg.Subject = userConfig.Subject
		}
		if userConfig.IntervalSeconds > 0 {
			cfg.IntervalSeconds = userConfig.IntervalSeconds
		}
	}

	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"clock-factory", "create", "NATS client validation")
	}

	return New(Deps{
		Name:            "clock",
		Config:          cfg,
		NATSClient:      deps.NATSClient,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.GetLoggerWithComponent("clock"),
	}), nil
}

// Register registers the clock factory with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "clock",
		Factory:     Create,
		Schema:      clockSchema,
		Type:        "input",
		Protocol:    "timer",
		Domain:      "time",
		Description: "Clock input publishing periodic tick signals",
		Version:     "1.0.0",
	})
}
