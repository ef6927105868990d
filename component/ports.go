// Package component provides port configuration for component connections.
package component

import "fmt"

// Direction for data flow
type Direction string

// Direction constants for port data flow
const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes any I/O interface
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable is the minimal contract for port configuration types
type Portable interface {
	ResourceID() string // Unique identifier for conflict detection
	IsExclusive() bool  // Whether multiple components can share
	Type() string       // Port type identifier
}

// NATSPort is a NATS pub/sub subject port
type NATSPort struct {
	Subject string `json:"subject"`
}

// ResourceID returns the subject as the resource identifier
func (p NATSPort) ResourceID() string { return "nats:" + p.Subject }

// IsExclusive reports that NATS subjects can be shared by many components
func (p NATSPort) IsExclusive() bool { return false }

// Type returns the port type identifier
func (p NATSPort) Type() string { return "nats" }

// NetworkPort is a network listener port (HTTP/WebSocket servers)
type NetworkPort struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// ResourceID returns protocol://host:port
func (p NetworkPort) ResourceID() string {
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
}

// IsExclusive reports that a network listener owns its port exclusively
func (p NetworkPort) IsExclusive() bool { return true }

// Type returns the port type identifier
func (p NetworkPort) Type() string { return "network" }

// TimerPort is an internal periodic timer source
type TimerPort struct {
	Interval string `json:"interval"` // Go duration string, e.g. "60s"
}

// ResourceID returns a timer identifier
func (p TimerPort) ResourceID() string { return "timer:" + p.Interval }

// IsExclusive reports that timers are private to their component
func (p TimerPort) IsExclusive() bool { return false }

// Type returns the port type identifier
func (p TimerPort) Type() string { return "timer" }

// ProviderPort is an in-process callback source, such as the platform
// geolocation provider feeding the location input
type ProviderPort struct {
	Kind string `json:"kind"`
}

// ResourceID returns a provider identifier
func (p ProviderPort) ResourceID() string { return "provider:" + p.Kind }

// IsExclusive reports that providers are private to their component
func (p ProviderPort) IsExclusive() bool { return false }

// Type returns the port type identifier
func (p ProviderPort) Type() string { return "provider" }

// PortDefinition represents a port configuration from JSON
type PortDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`    // nats, network, timer
	Subject     string `json:"subject,omitempty"` // NATS subject or network address
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// PortConfig represents port configuration in component config
type PortConfig struct {
	Inputs  []PortDefinition `json:"inputs,omitempty"`
	Outputs []PortDefinition `json:"outputs,omitempty"`
}

// BuildPortFromDefinition creates a Port from a PortDefinition
func BuildPortFromDefinition(def PortDefinition, direction Direction) Port {
	port := Port{
		Name:        def.Name,
		Direction:   direction,
		Required:    def.Required,
		Description: def.Description,
	}

	switch def.Type {
	case "timer":
		port.Config = TimerPort{Interval: def.Subject}
	default: // Default to NATS pub/sub
		port.Config = NATSPort{Subject: def.Subject}
	}

	return port
}
