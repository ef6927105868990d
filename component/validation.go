package component

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/c360/triggerkit/errors"
)

// Limits applied to raw component configuration before parsing
const (
	// MaxJSONSize caps a single component config document
	MaxJSONSize = 64 * 1024
	// MaxStringLength caps any single string or key inside a config
	MaxStringLength = 4096

	maxConfigDepth = 10
	maxArraySize   = 1000
)

// Validatable is implemented by configs that can self-validate after
// unmarshaling
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates raw JSON config and unmarshals it into target.
// It is the single gate all component factories pass user config through:
// oversized documents, excessive nesting, huge arrays, and strings with
// embedded control characters are rejected before any field is applied.
// If target implements Validatable, its Validate method runs last.
func SafeUnmarshal(rawConfig json.RawMessage, target any) error {
	if err := validateRawConfig(rawConfig); err != nil {
		return errors.Wrap(err, "component", "SafeUnmarshal", "config validation")
	}

	// Empty config is valid, target keeps its defaults
	if len(rawConfig) == 0 {
		return nil
	}

	if reflect.TypeOf(target).Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"component", "SafeUnmarshal", "target type check")
	}

	if err := json.Unmarshal(rawConfig, target); err != nil {
		return errors.WrapInvalid(err, "component", "SafeUnmarshal", "JSON unmarshaling")
	}

	if validatable, ok := target.(Validatable); ok {
		if err := validatable.Validate(); err != nil {
			return errors.Wrap(err, "component", "SafeUnmarshal", "struct validation")
		}
	}

	return nil
}

// validateRawConfig performs structural validation on raw JSON
func validateRawConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > MaxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), MaxJSONSize),
			"component", "validateRawConfig", "size check")
	}

	if len(rawConfig) == 0 {
		return nil
	}

	var config any
	decoder := json.NewDecoder(strings.NewReader(string(rawConfig)))
	decoder.UseNumber()
	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "component", "validateRawConfig", "JSON parsing")
	}

	return validateConfigValue(config, 0)
}

func validateConfigValue(value any, depth int) error {
	if depth > maxConfigDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, maxConfigDepth),
			"component", "validateConfigValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		return validateConfigString(val)

	case json.Number:
		if _, err := val.Int64(); err != nil {
			if _, err := val.Float64(); err != nil {
				return errors.WrapInvalid(err, "component", "validateConfigValue", "number validation")
			}
		}

	case []any:
		if len(val) > maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), maxArraySize),
				"component", "validateConfigValue", "array size check")
		}
		for i, elem := range val {
			if err := validateConfigValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "component", "validateConfigValue",
					fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, field := range val {
			if len(key) > MaxStringLength {
				return errors.WrapInvalid(
					fmt.Errorf("key %q exceeds maximum length", key),
					"component", "validateConfigValue", "key length check")
			}
			if err := validateConfigString(key); err != nil {
				return errors.Wrap(err, "component", "validateConfigValue", "key validation")
			}
			if err := validateConfigValue(field, depth+1); err != nil {
				return errors.Wrap(err, "component", "validateConfigValue",
					fmt.Sprintf("object field %q", key))
			}
		}

	case bool, nil:
		// always safe

	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T in config", value),
			"component", "validateConfigValue", "type check")
	}

	return nil
}

// validateConfigString rejects null bytes and control characters other
// than common whitespace
func validateConfigString(s string) error {
	if len(s) > MaxStringLength {
		return errors.WrapInvalid(
			fmt.Errorf("string length %d exceeds maximum %d", len(s), MaxStringLength),
			"component", "validateConfigString", "string length check")
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("string contains control character 0x%02x", r),
				"component", "validateConfigString", "control character check")
		}
	}
	return nil
}
