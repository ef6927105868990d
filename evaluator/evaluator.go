// Package evaluator provides the condition evaluation processor. It
// consumes position and clock signals, matches them against the active
// triggers in the registry, applies rate limiting, and hands firing
// triggers to the action dispatcher.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/pkg/geo"
	"github.com/c360/triggerkit/trigger"
)

// Default signal subjects
const (
	DefaultLocationSubject = "signal.location"
	DefaultClockSubject    = "signal.clock"
)

// Dispatcher receives firing triggers. Implemented by dispatch.Dispatcher.
type Dispatcher interface {
	Execute(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext)
}

// evaluatorSchema is generated once from Config struct tags
var evaluatorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the evaluator
type Config struct {
	LocationSubject string `json:"location_subject" schema:"type:string,description:NATS subject for position updates,default:signal.location"`
	ClockSubject    string `json:"clock_subject" schema:"type:string,description:NATS subject for clock ticks,default:signal.clock"`
}

// DefaultConfig returns defaults for the evaluator
func DefaultConfig() Config {
	return Config{
		LocationSubject: DefaultLocationSubject,
		ClockSubject:    DefaultClockSubject,
	}
}

// Deps holds runtime dependencies for the evaluator
type Deps struct {
	Name            string
	Config          Config
	Triggers        *trigger.Registry
	Dispatcher      Dispatcher
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Processor evaluates incoming signals against the trigger registry.
// Position updates are checked against location conditions, clock ticks
// against date conditions. A trigger is stamped via MarkFired before its
// actions dispatch, so overlapping evaluation cycles cannot double-fire.
type Processor struct {
	name            string
	locationSubject string
	clockSubject    string
	triggers        *trigger.Registry
	dispatcher      Dispatcher
	natsClient      *natsclient.Client
	logger          *slog.Logger

	running      atomic.Bool
	startTime    time.Time
	evaluated    atomic.Int64
	fired        atomic.Int64
	errorCount   atomic.Int64
	lastError    atomic.Value // stores string
	lastActivity atomic.Value // stores time.Time

	metrics *evalMetrics
}

var _ component.Discoverable = (*Processor)(nil)
var _ component.LifecycleComponent = (*Processor)(nil)

// New creates an evaluator processor
func New(deps Deps) *Processor {
	locationSubject := deps.Config.LocationSubject
	if locationSubject == "" {
		locationSubject = DefaultLocationSubject
	}
	clockSubject := deps.Config.ClockSubject
	if clockSubject == "" {
		clockSubject = DefaultClockSubject
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "evaluator")
	}

	p := &Processor{
		name:            deps.Name,
		locationSubject: locationSubject,
		clockSubject:    clockSubject,
		triggers:        deps.Triggers,
		dispatcher:      deps.Dispatcher,
		natsClient:      deps.NATSClient,
		logger:          logger,
		startTime:       time.Now(),
		metrics:         newEvalMetrics(deps.MetricsRegistry),
	}
	p.lastError.Store("")
	p.lastActivity.Store(time.Time{})
	return p
}

// Meta returns the component metadata
func (p *Processor) Meta() component.Metadata {
	name := p.name
	if name == "" {
		name = "evaluator"
	}

	return component.Metadata{
		Name:        name,
		Type:        "processor",
		Description: "Evaluates position and clock signals against trigger conditions",
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (p *Processor) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "location_signals",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Position updates from the location source",
			Config:      component.NATSPort{Subject: p.locationSubject},
		},
		{
			Name:        "clock_signals",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: "Periodic ticks from the clock input",
			Config:      component.NATSPort{Subject: p.clockSubject},
		},
	}
}

// OutputPorts returns the output ports for this component
func (p *Processor) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "dispatch",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "In-process hand-off of firing triggers to the action dispatcher",
			Config:      component.ProviderPort{Kind: "dispatcher"},
		},
	}
}

// ConfigSchema returns the configuration schema for this component
func (p *Processor) ConfigSchema() component.ConfigSchema {
	return evaluatorSchema
}

// Health returns the current health status of the component
func (p *Processor) Health() component.HealthStatus {
	lastError, _ := p.lastError.Load().(string)

	return component.HealthStatus{
		Healthy:    p.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(p.errorCount.Load()),
		LastError:  lastError,
		Uptime:     time.Since(p.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (p *Processor) DataFlow() component.FlowMetrics {
	evaluated := p.evaluated.Load()
	errorCount := p.errorCount.Load()
	lastActivity, _ := p.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(p.startTime).Seconds(); uptime > 0 {
		perSecond = float64(evaluated) / uptime
	}
	if evaluated > 0 {
		errorRate = float64(errorCount) / float64(evaluated)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates wiring before the subscriptions start
func (p *Processor) Initialize() error {
	if p.triggers == nil {
		return errors.WrapInvalid(fmt.Errorf("nil trigger registry"),
			"evaluator", "Initialize", "registry validation")
	}
	if p.dispatcher == nil {
		return errors.WrapInvalid(fmt.Errorf("nil dispatcher"),
			"evaluator", "Initialize", "dispatcher validation")
	}
	if p.natsClient == nil {
		return errors.WrapInvalid(fmt.Errorf("nil NATS client"),
			"evaluator", "Initialize", "NATS client validation")
	}
	return nil
}

// Start subscribes to the signal subjects
func (p *Processor) Start(ctx context.Context) error {
	if p.running.Load() {
		return nil
	}

	// Failed subscriptions degrade the processor instead of blocking
	// startup; direct evaluation calls still work without NATS
	if err := p.natsClient.Subscribe(ctx, p.locationSubject, p.handleLocationSignal); err != nil {
		p.recordError(err)
		p.logger.Error("location subscription failed, signal consumption disabled",
			"subject", p.locationSubject, "error", err)
	}
	if err := p.natsClient.Subscribe(ctx, p.clockSubject, p.handleClockSignal); err != nil {
		p.recordError(err)
		p.logger.Error("clock subscription failed, signal consumption disabled",
			"subject", p.clockSubject, "error", err)
	}

	p.running.Store(true)
	p.startTime = time.Now()
	return nil
}

// Stop marks the processor stopped; signals arriving afterwards are
// ignored. The NATS subscriptions drain with the client connection.
func (p *Processor) Stop(_ time.Duration) error {
	p.running.Store(false)
	return nil
}

// handleLocationSignal decodes a position update and evaluates it
func (p *Processor) handleLocationSignal(ctx context.Context, data []byte) {
	if !p.running.Load() {
		return
	}
	p.metrics.recordSignal("location")

	var pos trigger.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		p.recordError(err)
		p.metrics.recordMalformed()
		p.logger.Warn("dropping malformed position signal", "error", err)
		return
	}

	p.EvaluatePosition(ctx, pos)
}

// handleClockSignal decodes a tick and evaluates it
func (p *Processor) handleClockSignal(ctx context.Context, data []byte) {
	if !p.running.Load() {
		return
	}
	p.metrics.recordSignal("clock")

	var tick trigger.Tick
	if err := json.Unmarshal(data, &tick); err != nil {
		p.recordError(err)
		p.metrics.recordMalformed()
		p.logger.Warn("dropping malformed clock signal", "error", err)
		return
	}

	p.EvaluateTick(ctx, tick.Time)
}

// EvaluatePosition checks every active location trigger against one
// position update and fires those within radius that pass rate limiting
func (p *Processor) EvaluatePosition(ctx context.Context, pos trigger.Position) {
	started := time.Now()
	now := pos.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	p.lastActivity.Store(time.Now())

	for _, trig := range p.triggers.ListActive() {
		if trig.ConditionKind() != trigger.ConditionLocation {
			continue
		}
		p.evaluated.Add(1)
		p.metrics.recordEvaluation("location")

		matched, distance := matchLocation(trig.Conditions, pos)
		if !matched {
			continue
		}

		if !p.allowed(trig, now) {
			continue
		}

		fire := trigger.FireContext{
			Type:     trigger.FireLocationEntered,
			Position: &pos,
			Distance: distance,
		}
		p.fire(ctx, trig, fire, now, "location")
	}

	p.metrics.observeDuration(time.Since(started).Seconds())
}

// EvaluateTick checks every active date trigger against one clock tick
func (p *Processor) EvaluateTick(ctx context.Context, tickTime time.Time) {
	started := time.Now()
	now := tickTime
	if now.IsZero() {
		now = time.Now()
	}
	p.lastActivity.Store(time.Now())

	for _, trig := range p.triggers.ListActive() {
		if trig.ConditionKind() != trigger.ConditionDate {
			continue
		}
		p.evaluated.Add(1)
		p.metrics.recordEvaluation("clock")

		state, err := p.triggers.FireStateOf(trig.ID)
		if err != nil {
			// Removed since ListActive snapshot
			continue
		}

		due, triggerDate := matchDate(trig.Conditions, state, now)
		if !due {
			continue
		}

		if !p.allowed(trig, now) {
			continue
		}

		fire := trigger.FireContext{
			Type:        trigger.FireDateAnniversary,
			Date:        now,
			TriggerDate: triggerDate,
		}
		p.fire(ctx, trig, fire, now, "clock")
	}

	p.metrics.observeDuration(time.Since(started).Seconds())
}

// matchLocation reports whether any location condition contains the
// position, and the distance to the first matching anchor. Conditions
// missing their location payload fail closed.
func matchLocation(conditions []trigger.Condition, pos trigger.Position) (bool, float64) {
	for _, cond := range conditions {
		if cond.Type != trigger.ConditionLocation || cond.Location == nil {
			continue
		}
		distance := geo.Distance(pos.Coordinate(), cond.Location.Anchor)
		if distance <= cond.Location.RadiusMeters {
			return true, distance
		}
	}
	return false, 0
}

// matchDate reports whether any date condition is due, and the trigger
// date of the first due condition. Conditions missing their date payload
// fail closed.
func matchDate(conditions []trigger.Condition, state trigger.FireState, now time.Time) (bool, time.Time) {
	for _, cond := range conditions {
		if cond.Type != trigger.ConditionDate || cond.Date == nil {
			continue
		}
		if trigger.IsDue(*cond.Date, state, now) {
			return true, cond.Date.TriggerDate
		}
	}
	return false, time.Time{}
}

// allowed applies the rate limiter with the registry's daily counter
func (p *Processor) allowed(trig trigger.MemoryTrigger, now time.Time) bool {
	if trigger.Allowed(trig.Settings, now, p.triggers.FiresToday(trig.ID, now)) {
		return true
	}
	p.metrics.recordRateLimited()
	p.logger.Debug("fire suppressed by rate limiter", "trigger_id", trig.ID)
	return false
}

// fire stamps the registry then dispatches the action list. Stamping
// first prevents duplicate fires from overlapping cycles.
func (p *Processor) fire(ctx context.Context, trig trigger.MemoryTrigger, fire trigger.FireContext, now time.Time, kind string) {
	updated, err := p.triggers.MarkFired(ctx, trig.ID, now)
	if err != nil {
		// Trigger removed between the snapshot and the stamp
		p.logger.Debug("skipping fire for missing trigger", "trigger_id", trig.ID, "error", err)
		return
	}

	p.fired.Add(1)
	p.metrics.recordFired(kind)
	p.logger.Info("trigger fired",
		"trigger_id", trig.ID, "name", trig.Name, "type", fire.Type,
		"trigger_count", updated.TriggerCount)

	p.dispatcher.Execute(ctx, updated, fire)
}

func (p *Processor) recordError(err error) {
	p.errorCount.Add(1)
	p.lastError.Store(err.Error())
}

// Create creates an evaluator processor from raw config
func Create(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	cfg := DefaultConfig()
	if len(rawConfig) > 0 {
		var userConfig Config
		if err := component.SafeUnmarshal(rawConfig, &userConfig); err != nil {
			return nil, errors.Wrap(err, "evaluator-factory", "create", "config parsing")
		}
		if userConfig.LocationSubject != "" {
			cfg.LocationSubject = userConfig.LocationSubject
		}
		if userConfig.ClockSubject != "" {
			cfg.ClockSubject = userConfig.ClockSubject
		}
	}

	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"evaluator-factory", "create", "NATS client validation")
	}

	triggers, _ := deps.Triggers.(*trigger.Registry)
	if triggers == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("trigger registry is required"),
			"evaluator-factory", "create", "registry validation")
	}

	dispatcher, _ := deps.Dispatcher.(Dispatcher)
	if dispatcher == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("dispatcher is required"),
			"evaluator-factory", "create", "dispatcher validation")
	}

	return New(Deps{
		Name:            "evaluator",
		Config:          cfg,
		Triggers:        triggers,
		Dispatcher:      dispatcher,
		NATSClient:      deps.NATSClient,
		MetricsRegistry: deps.MetricsRegistry,
		Logger:          deps.GetLoggerWithComponent("evaluator"),
	}), nil
}

// Register registers the evaluator factory with the given registry
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "evaluator",
		Factory:     Create,
		Schema:      evaluatorSchema,
		Type:        "processor",
		Protocol:    "nats",
		Domain:      "triggers",
		Description: "Condition evaluator matching signals against trigger rules",
		Version:     "1.0.0",
	})
}
