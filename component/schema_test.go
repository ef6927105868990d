package component

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaTestConfig struct {
	Interval int     `json:"interval" schema:"type:int,description:Tick interval in seconds,default:60"`
	Subject  string  `json:"subject" schema:"type:string,description:NATS subject,required"`
	Mode     string  `json:"mode" schema:"type:enum,description:Delivery mode,enum:push|pull,default:push"`
	Radius   float64 `json:"radius" schema:"type:float,description:Radius in meters,default:100.5"`
	Untagged string  `json:"untagged"`
}

func TestGenerateConfigSchema(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf(schemaTestConfig{}))

	require.Len(t, schema.Properties, 4)
	assert.NotContains(t, schema.Properties, "untagged")

	interval := schema.Properties["interval"]
	assert.Equal(t, "int", interval.Type)
	assert.Equal(t, "Tick interval in seconds", interval.Description)
	assert.Equal(t, 60, interval.Default)

	mode := schema.Properties["mode"]
	assert.Equal(t, []string{"push", "pull"}, mode.Enum)
	assert.Equal(t, "push", mode.Default)

	assert.Equal(t, 100.5, schema.Properties["radius"].Default)
	assert.Equal(t, []string{"subject"}, schema.Required)
}

func TestGenerateConfigSchema_NonStruct(t *testing.T) {
	schema := GenerateConfigSchema(reflect.TypeOf(42))
	assert.Empty(t, schema.Properties)

	schema = GenerateConfigSchema(nil)
	assert.Empty(t, schema.Properties)
}

type validatedConfig struct {
	Port int `json:"port"`
}

func (c *validatedConfig) Validate() error {
	if c.Port < 1 {
		return fmt.Errorf("port must be positive, got %d", c.Port)
	}
	return nil
}

func TestSafeUnmarshal(t *testing.T) {
	var cfg validatedConfig
	err := SafeUnmarshal(json.RawMessage(`{"port": 8080}`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestSafeUnmarshal_EmptyConfigKeepsDefaults(t *testing.T) {
	cfg := validatedConfig{Port: 9090}
	require.NoError(t, SafeUnmarshal(nil, &cfg))
	assert.Equal(t, 9090, cfg.Port)
}

func TestSafeUnmarshal_Rejects(t *testing.T) {
	deep := strings.Repeat(`{"a":`, 12) + `1` + strings.Repeat(`}`, 12)

	tests := []struct {
		name string
		raw  string
	}{
		{"oversized document", `{"pad":"` + strings.Repeat("x", MaxJSONSize) + `"}`},
		{"malformed JSON", `{"port":`},
		{"excessive nesting", deep},
		{"control character", "{\"name\":\"a\x01b\"}"},
		{"oversized string", `{"name":"` + strings.Repeat("y", MaxStringLength+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg validatedConfig
			assert.Error(t, SafeUnmarshal(json.RawMessage(tt.raw), &cfg))
		})
	}
}

func TestSafeUnmarshal_TargetMustBePointer(t *testing.T) {
	var cfg validatedConfig
	assert.Error(t, SafeUnmarshal(json.RawMessage(`{}`), cfg))
}

func TestSafeUnmarshal_RunsValidate(t *testing.T) {
	var cfg validatedConfig
	err := SafeUnmarshal(json.RawMessage(`{"port": -1}`), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port must be positive")
}
