// Package componentregistry registers every TriggerKit component factory
// with a component registry, so engines and tools share one catalog of
// available component types.
package componentregistry

import (
	"errors"

	"github.com/c360/triggerkit/component"
	pkgerrors "github.com/c360/triggerkit/errors"
	"github.com/c360/triggerkit/evaluator"
	"github.com/c360/triggerkit/input/clock"
	"github.com/c360/triggerkit/input/location"
	"github.com/c360/triggerkit/output/websocket"
)

// Register registers all TriggerKit components with the provided registry:
//
// Inputs (signal sources):
//   - location (position updates from a geolocation provider)
//   - clock (periodic ticks for date evaluation)
//
// Processors:
//   - evaluator (trigger condition evaluation and rate limiting)
//
// Outputs:
//   - websocket (notification broadcast to connected clients)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := location.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "location input registration")
	}

	if err := clock.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "clock input registration")
	}

	if err := evaluator.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "evaluator processor registration")
	}

	if err := websocket.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", "websocket output registration")
	}

	return nil
}
