package component

import (
	"log/slog"

	"github.com/c360/triggerkit/metric"
	"github.com/c360/triggerkit/natsclient"
)

// Dependencies provides all external dependencies needed by components.
// Component factories receive this structure rather than individual fields.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for messaging
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())

	// Domain collaborators, typed as any to avoid import cycles.
	// Triggers is a *trigger.Registry; Dispatcher implements the
	// evaluator's Dispatcher contract; Positions is a location.Provider;
	// Bus is an *eventbus.Bus.
	Triggers   any
	Dispatcher any
	Positions  any
	Bus        any
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
