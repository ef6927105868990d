// Package engine assembles the TriggerKit runtime: trigger registry,
// event bus, action dispatcher, and the signal, evaluation, and delivery
// components, behind a single Start/Stop lifecycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/triggerkit/component"
	"github.com/c360/triggerkit/componentregistry"
	"github.com/c360/triggerkit/dispatch"
	"github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/eventbus"
	"github.com/c360/triggerkit/health"
	"github.com/c360/triggerkit/input/location"
	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
	"github.com/c360/triggerkit/store"
	"github.com/c360/triggerkit/trigger"
)

// healthInterval is how often the engine refreshes component health
const healthInterval = 10 * time.Second

// Options configures an Engine
type Options struct {
	NATSClient *natsclient.Client // required
	Provider   location.Provider  // required; platform geolocation source

	// Store persists triggers across restarts. Nil keeps triggers in
	// memory only.
	Store trigger.Store

	// Components describes the component instances to create. Nil uses
	// DefaultComponents.
	Components map[string]component.ComponentConfig

	// MetricsPort serves Prometheus metrics when > 0. Requires a
	// MetricsRegistry.
	MetricsPort int

	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics
}

// DefaultComponents returns the standard component set: both signal
// sources, the evaluator, and the WebSocket notification sink.
func DefaultComponents() map[string]component.ComponentConfig {
	return map[string]component.ComponentConfig{
		"location-main":  {Type: "input", Name: "location", Enabled: true},
		"clock-main":     {Type: "input", Name: "clock", Enabled: true},
		"evaluator-main": {Type: "processor", Name: "evaluator", Enabled: true},
		"websocket-sink": {Type: "output", Name: "websocket", Enabled: true},
	}
}

// instance pairs a component with its registry name for lifecycle
// ordering
type instance struct {
	name string
	comp component.LifecycleComponent
}

// Engine owns the trigger pipeline. Construction wires everything;
// Start brings components up in dependency order (outputs, processor,
// inputs) and Stop tears them down in reverse, cancelling pending
// deferred actions and clearing bus subscribers.
type Engine struct {
	logger     *slog.Logger
	natsClient *natsclient.Client

	triggers   *trigger.Registry
	bus        *eventbus.Bus
	dispatcher *dispatch.Dispatcher
	components *component.Registry
	monitor    *health.Monitor

	// lifecycle order: outputs, then processors, then inputs
	instances []instance

	metricsServer *metric.Server
	metrics       *engineMetrics

	shutdown chan struct{}
	running  atomic.Bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// New wires an Engine from options. No I/O happens here; components
// connect in Start.
func New(opts Options) (*Engine, error) {
	if opts.NATSClient == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"),
			"engine", "New", "options validation")
	}
	if opts.Provider == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("position provider is required"),
			"engine", "New", "options validation")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	triggerStore := opts.Store
	if triggerStore == nil {
		triggerStore = store.NewMemoryStore()
	}

	triggers := trigger.NewRegistry(triggerStore, logger)
	bus := eventbus.New(eventbus.Deps{
		Client:   opts.NATSClient,
		Logger:   logger,
		Registry: opts.MetricsRegistry,
	})
	dispatcher := dispatch.New(dispatch.Deps{
		Bus:      bus,
		Logger:   logger,
		Registry: opts.MetricsRegistry,
	})

	components := component.NewRegistry()
	if err := componentregistry.Register(components); err != nil {
		return nil, errors.Wrap(err, "engine", "New", "factory registration")
	}

	deps := component.Dependencies{
		NATSClient:      opts.NATSClient,
		MetricsRegistry: opts.MetricsRegistry,
		Logger:          logger,
		Triggers:        triggers,
		Dispatcher:      dispatcher,
		Positions:       opts.Provider,
		Bus:             bus,
	}

	configs := opts.Components
	if configs == nil {
		configs = DefaultComponents()
	}

	instances, err := createInstances(components, configs, deps)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:     logger.With("component", "engine"),
		natsClient: opts.NATSClient,
		triggers:   triggers,
		bus:        bus,
		dispatcher: dispatcher,
		components: components,
		monitor:    health.NewMonitor(),
		instances:  instances,
		metrics:    newEngineMetrics(opts.MetricsRegistry),
	}

	if opts.MetricsPort > 0 && opts.MetricsRegistry != nil {
		e.metricsServer = metric.NewServer(opts.MetricsPort, "/metrics", opts.MetricsRegistry)
	}

	return e, nil
}

// createInstances builds enabled components and orders them for startup:
// outputs first so the delivery path exists, then the evaluator, then
// the signal sources that feed it.
func createInstances(
	registry *component.Registry,
	configs map[string]component.ComponentConfig,
	deps component.Dependencies,
) ([]instance, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	typeOrder := map[string]int{"output": 0, "processor": 1, "input": 2}

	var instances []instance
	for _, name := range names {
		cfg := configs[name]
		if !cfg.Enabled {
			continue
		}

		comp, err := registry.CreateComponent(name, cfg, deps)
		if err != nil {
			return nil, errors.Wrap(err, "engine", "New",
				fmt.Sprintf("create component %s", name))
		}

		lifecycle, ok := comp.(component.LifecycleComponent)
		if !ok {
			return nil, errors.WrapInvalid(
				fmt.Errorf("component %s does not implement lifecycle", name),
				"engine", "New", "component validation")
		}
		instances = append(instances, instance{name: name, comp: lifecycle})
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return typeOrder[instances[i].comp.Meta().Type] < typeOrder[instances[j].comp.Meta().Type]
	})

	return instances, nil
}

// Start loads persisted triggers and brings all components up. A failed
// component start rolls back the ones already started.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	begin := time.Now()

	// A store that cannot be read degrades to an empty trigger set
	// rather than blocking startup
	if err := e.triggers.LoadFromStore(ctx); err != nil {
		e.logger.Error("failed to load persisted triggers, starting empty", "error", err)
	} else {
		e.logger.Info("triggers loaded", "count", e.triggers.Count())
	}

	started := make([]instance, 0, len(e.instances))
	for _, inst := range e.instances {
		if err := inst.comp.Initialize(); err != nil {
			e.rollback(started)
			return errors.Wrap(err, "engine", "Start",
				fmt.Sprintf("initialize %s", inst.name))
		}
		if err := inst.comp.Start(ctx); err != nil {
			e.rollback(started)
			return errors.Wrap(err, "engine", "Start",
				fmt.Sprintf("start %s", inst.name))
		}
		started = append(started, inst)
		e.logger.Info("component started", "name", inst.name)
	}

	e.shutdown = make(chan struct{})
	e.running.Store(true)

	if e.metricsServer != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.metricsServer.Start(); err != nil {
				e.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.healthLoop()
	}()

	e.refreshHealth()
	e.metrics.recordStart(time.Since(begin).Seconds())
	e.metrics.setComponentsRunning(len(e.instances))
	e.logger.Info("engine started", "components", len(e.instances))
	return nil
}

// rollback stops components started before a failed Start, in reverse
// order
func (e *Engine) rollback(started []instance) {
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].comp.Stop(5 * time.Second); err != nil {
			e.logger.Warn("rollback stop failed", "name", started[i].name, "error", err)
		}
	}
}

// Stop tears the engine down: signal sources first so no new signals
// arrive, then the evaluator, then delivery. Pending deferred actions
// are cancelled and bus subscribers cleared. Idempotent.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running.Load() {
		return nil
	}
	e.running.Store(false)
	close(e.shutdown)

	var firstErr error
	for i := len(e.instances) - 1; i >= 0; i-- {
		inst := e.instances[i]
		if err := inst.comp.Stop(timeout); err != nil {
			e.logger.Warn("component stop failed", "name", inst.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	e.dispatcher.Close()
	e.bus.ClearSubscribers()

	if e.metricsServer != nil {
		if err := e.metricsServer.Stop(); err != nil {
			e.logger.Warn("metrics server stop failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		if firstErr == nil {
			firstErr = errors.WrapTransient(
				fmt.Errorf("stop timeout after %v", timeout),
				"engine", "Stop", "graceful shutdown")
		}
	}

	e.monitor.Clear()
	e.metrics.recordStop()
	e.metrics.setComponentsRunning(0)
	e.logger.Info("engine stopped")
	return firstErr
}

// Running reports whether the engine has been started and not stopped
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Triggers returns the trigger registry for CRUD operations
func (e *Engine) Triggers() *trigger.Registry {
	return e.triggers
}

// Bus returns the event bus for subscribing to notifications and events
func (e *Engine) Bus() *eventbus.Bus {
	return e.bus
}

// Dispatcher returns the action dispatcher
func (e *Engine) Dispatcher() *dispatch.Dispatcher {
	return e.dispatcher
}

// Components returns the component instance registry
func (e *Engine) Components() *component.Registry {
	return e.components
}

// Health aggregates component health into one engine status
func (e *Engine) Health() health.Status {
	e.refreshHealth()
	return e.monitor.AggregateHealth("triggerkit")
}

// healthLoop periodically refreshes component health and the active
// trigger gauge
func (e *Engine) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			return
		case <-ticker.C:
			e.refreshHealth()
		}
	}
}

// refreshHealth copies component self-reported health into the monitor
func (e *Engine) refreshHealth() {
	for _, inst := range e.instances {
		e.monitor.Update(inst.name, health.FromComponentHealth(inst.name, inst.comp.Health()))
	}
	if e.natsClient.IsHealthy() {
		e.monitor.UpdateHealthy("nats", "connected")
	} else {
		e.monitor.UpdateDegraded("nats", "disconnected, events stay in-process")
	}
	e.metrics.setActiveTriggers(len(e.triggers.ListActive()))
}
