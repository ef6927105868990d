// Package config defines the application configuration: platform
// identity, NATS connection settings, and the component instance map,
// with a thread-safe wrapper and a layered JSON loader.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/triggerkit/component"
)

// ComponentConfigs holds component instance configurations keyed by
// instance name (e.g. "location-main").
type ComponentConfigs map[string]component.ComponentConfig

// Config is the complete application configuration
type Config struct {
	Version    string           `json:"version"` // semantic version for config evolution
	Platform   PlatformConfig   `json:"platform"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
	Components ComponentConfigs `json:"components"`
}

// PlatformConfig identifies this deployment
type PlatformConfig struct {
	ID          string `json:"id"`                    // platform identifier (e.g. "triggerkit-1")
	InstanceID  string `json:"instance_id,omitempty"` // e.g. "dev-local", "phone-alpha"
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string        `json:"urls,omitempty"`
	MaxReconnects int             `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration   `json:"reconnect_wait,omitempty"`
	Username      string          `json:"username,omitempty"`
	Password      string          `json:"password,omitempty"`
	Token         string          `json:"token,omitempty"`
	JetStream     JetStreamConfig `json:"jetstream,omitempty"`
}

// JetStreamConfig controls trigger persistence
type JetStreamConfig struct {
	Enabled       bool   `json:"enabled"`
	Domain        string `json:"domain,omitempty"`
	TriggerBucket string `json:"trigger_bucket,omitempty"` // KV bucket for persisted triggers
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port,omitempty"` // default 9090
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy via JSON round-trip
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return errors.New("platform.id is required")
	}
	if !isValidNATSSubjectPart(c.Platform.ID) {
		return fmt.Errorf(
			"platform.id %q is not valid for NATS subjects (alphanumeric with dots, dashes, underscores)",
			c.Platform.ID)
	}

	if c.Metrics.Enabled && c.Metrics.Port != 0 &&
		(c.Metrics.Port < 1024 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range 1024-65535", c.Metrics.Port)
	}

	for instanceName, compConfig := range c.Components {
		if instanceName == "" {
			return errors.New("component instance name cannot be empty")
		}
		if compConfig.Name == "" {
			return fmt.Errorf("component %s: factory name is required", instanceName)
		}
		switch compConfig.Type {
		case "input", "processor", "output":
		default:
			return fmt.Errorf("component %s: unknown type %q", instanceName, compConfig.Type)
		}
	}

	return nil
}

// isValidNATSSubjectPart reports whether s can appear in a NATS subject
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// GetPlatform returns the platform identifier, preferring instance_id
func (c *Config) GetPlatform() string {
	if c.Platform.InstanceID != "" {
		return c.Platform.InstanceID
	}
	return c.Platform.ID
}

// String returns an indented JSON representation
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// UnmarshalJSON accepts reconnect_wait either as a duration string
// ("2s") or as nanoseconds
func (n *NATSConfig) UnmarshalJSON(data []byte) error {
	type Alias NATSConfig
	aux := &struct {
		ReconnectWait any `json:"reconnect_wait"`
		*Alias
	}{Alias: (*Alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch v := aux.ReconnectWait.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("nats.reconnect_wait: %w", err)
		}
		n.ReconnectWait = d
	case float64:
		n.ReconnectWait = time.Duration(v)
	case nil:
	default:
		return fmt.Errorf("nats.reconnect_wait: unsupported type %T", v)
	}
	return nil
}

// normalize lowercases identity fields in place
func (c *Config) normalize() {
	c.Platform.ID = strings.ToLower(c.Platform.ID)
	c.Platform.InstanceID = strings.ToLower(c.Platform.InstanceID)
}
