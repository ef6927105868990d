package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/c360/triggerkit/errors"
)

// Info holds metadata about an available component type
type Info struct {
	Type        string `json:"type"`        // "input", "processor", "output"
	Protocol    string `json:"protocol"`    // Technical protocol (geolocation, timer, websocket, etc.)
	Domain      string `json:"domain"`      // Business domain (signal, evaluation, delivery)
	Description string `json:"description"` // Human-readable description
	Version     string `json:"version"`     // Component version
}

// Factory creates a component instance from configuration. The factory
// receives raw JSON configuration and dependencies, parses its own config,
// and returns a properly initialized component. All I/O belongs in the
// component's Start() method, not in the factory.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Registration holds factory and metadata for a component type
type Registration struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Protocol    string       `json:"protocol"`
	Domain      string       `json:"domain"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Schema      ConfigSchema `json:"schema"`
	Factory     Factory      `json:"-"`
}

// RegistrationConfig provides a clean API for component registration.
// It maps 1:1 to Registration struct fields.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Schema      ConfigSchema
	Type        string
	Protocol    string
	Domain      string
	Description string
	Version     string
}

// ComponentConfig describes a component instance to create: which factory,
// whether it is enabled, and the factory-specific configuration blob.
type ComponentConfig struct {
	Type    string          `json:"type"`    // input, processor, output
	Name    string          `json:"name"`    // factory name (e.g. "location", "clock")
	Enabled bool            `json:"enabled"` // whether the instance should run
	Config  json.RawMessage `json:"config"`  // factory-specific configuration
}

// Registry manages component factories and instances with thread-safe
// registration and lookup.
type Registry struct {
	factories map[string]*Registration
	instances map[string]Discoverable
	resources map[string]string // resource ID -> instance name
	mu        sync.RWMutex
}

// NewRegistry creates a new empty component registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]Discoverable),
		resources: make(map[string]string),
	}
}

// RegisterWithConfig registers a component factory using a configuration struct
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	registration := &Registration{
		Name:        config.Name,
		Factory:     config.Factory,
		Schema:      config.Schema,
		Type:        config.Type,
		Protocol:    config.Protocol,
		Domain:      config.Domain,
		Description: config.Description,
		Version:     config.Version,
	}

	return r.RegisterFactory(config.Name, registration)
}

// RegisterFactory registers a component factory with the given name.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil || registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	if registration.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[name] = registration
	return nil
}

// CreateComponent creates and registers a new component instance. The
// instanceName is the unique identifier for this instance (e.g.
// "location-main"); config names the factory and carries its settings.
func (r *Registry) CreateComponent(
	instanceName string, config ComponentConfig, deps Dependencies,
) (Discoverable, error) {
	if instanceName == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateComponent", "instance name validation")
	}
	if config.Name == "" || config.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateComponent", "component config validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[config.Name]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("unknown component factory '%s'", config.Name)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateComponent", "factory lookup")
	}

	if registration.Type != config.Type {
		msg := fmt.Errorf("component '%s' is type '%s', not '%s'", config.Name, registration.Type, config.Type)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateComponent", "type validation")
	}

	instance, err := registration.Factory(config.Config, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}

	if err := r.RegisterInstance(instanceName, instance); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance registration")
	}

	return instance, nil
}

// RegisterInstance registers a component instance with the given name.
// Returns an error if an instance with the same name or a conflicting
// exclusive resource is already registered.
func (r *Registry) RegisterInstance(name string, comp Discoverable) error {
	if name == "" || comp == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		msg := fmt.Errorf("instance '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterInstance", "duplicate instance check")
	}

	// Exclusive resources (network listeners) may only be claimed once
	for _, port := range append(comp.InputPorts(), comp.OutputPorts()...) {
		if port.Config == nil || !port.Config.IsExclusive() {
			continue
		}
		resourceID := port.Config.ResourceID()
		if owner, exists := r.resources[resourceID]; exists {
			msg := fmt.Errorf("resource conflict: %s already used by component '%s'", resourceID, owner)
			return errors.WrapInvalid(msg, "Registry", "RegisterInstance", "exclusive resource check")
		}
	}

	r.instances[name] = comp
	for _, port := range append(comp.InputPorts(), comp.OutputPorts()...) {
		if port.Config != nil && port.Config.IsExclusive() {
			r.resources[port.Config.ResourceID()] = name
		}
	}

	return nil
}

// UnregisterInstance removes a component instance from the registry
func (r *Registry) UnregisterInstance(name string) {
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if comp, exists := r.instances[name]; exists {
		for _, port := range append(comp.InputPorts(), comp.OutputPorts()...) {
			if port.Config != nil && port.Config.IsExclusive() {
				if owner, ok := r.resources[port.Config.ResourceID()]; ok && owner == name {
					delete(r.resources, port.Config.ResourceID())
				}
			}
		}
	}

	delete(r.instances, name)
}

// ListComponents returns all registered component instances
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Discoverable, len(r.instances))
	maps.Copy(result, r.instances)
	return result
}

// Component retrieves a specific component instance by name.
// Returns nil if the component is not found.
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.instances[name]
}

// ListAvailable returns information about all registered component types
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Info, len(r.factories))
	for name, registration := range r.factories {
		result[name] = Info{
			Type:        registration.Type,
			Protocol:    registration.Protocol,
			Domain:      registration.Domain,
			Description: registration.Description,
			Version:     registration.Version,
		}
	}
	return result
}

// GetComponentSchema retrieves a component's schema from its registration
func (r *Registry) GetComponentSchema(name string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registration, exists := r.factories[name]
	if !exists {
		return ConfigSchema{}, errors.WrapInvalid(
			fmt.Errorf("component type %q not found", name),
			"Registry", "GetComponentSchema", "type lookup")
	}

	return registration.Schema, nil
}
