package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// maxConfigFileSize rejects runaway config files
const maxConfigFileSize = 1 << 20

// Loader loads configuration from layered JSON files with environment
// overrides. Later layers win over earlier ones.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "TRIGGERKIT",
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation on load
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, all layers, and environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, raw)
	}

	l.applyEnvOverrides(cfg)
	cfg.normalize()

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the built-in configuration: local NATS with
// JetStream persistence and the full standard component set.
func Defaults() *Config {
	return &Config{
		Version: "1.0.0",
		Platform: PlatformConfig{
			ID:          "triggerkit",
			Environment: "dev",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: JetStreamConfig{
				Enabled:       true,
				TriggerBucket: "triggerkit_triggers",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Components: ComponentConfigs{
			"location-main":  {Type: "input", Name: "location", Enabled: true},
			"clock-main":     {Type: "input", Name: "clock", Enabled: true},
			"evaluator-main": {Type: "processor", Name: "evaluator", Enabled: true},
			"websocket-sink": {Type: "output", Name: "websocket", Enabled: true},
		},
	}
}

// loadRawJSON reads a config file as a generic map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap merges a raw override map into the base config. Only
// keys present in the map override.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedMap := deepMerge(baseMap, override)

	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}
	return &merged
}

// deepMerge recursively merges two maps, override winning
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies TRIGGERKIT_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_PLATFORM_ID"); val != "" {
		cfg.Platform.ID = val
	}
	if val := os.Getenv(l.envPrefix + "_ENVIRONMENT"); val != "" {
		cfg.Platform.Environment = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
}
