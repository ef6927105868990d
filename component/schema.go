package component

import (
	"reflect"
	"strconv"
	"strings"
)

// GenerateConfigSchema builds a ConfigSchema from `schema:` struct tags.
//
// Tag directives are comma separated; key-value pairs use a colon:
//
//	Interval int `json:"interval" schema:"type:int,description:Tick interval in seconds,default:60"`
//
// Supported directives: type (required), description, default,
// enum (pipe-separated values), required (flag). Fields without a schema
// tag are skipped. Intended for init-time use, cached in a package-level
// variable.
func GenerateConfigSchema(t reflect.Type) ConfigSchema {
	schema := ConfigSchema{
		Properties: make(map[string]PropertySchema),
	}

	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("schema")
		if tag == "" {
			continue
		}

		name := propertyName(field)
		prop, required := parseSchemaTag(tag)
		if prop.Type == "" {
			continue
		}

		schema.Properties[name] = prop
		if required {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

// propertyName derives the schema property name from the json tag,
// falling back to the lowercased field name
func propertyName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag != "" {
		name := strings.Split(jsonTag, ",")[0]
		if name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

// parseSchemaTag parses the comma-separated directives of a schema tag
func parseSchemaTag(tag string) (PropertySchema, bool) {
	var prop PropertySchema
	var defaultValue string
	var hasDefault, required bool

	for _, directive := range strings.Split(tag, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}

		key, value, found := strings.Cut(directive, ":")
		if !found {
			if key == "required" {
				required = true
			}
			continue
		}

		switch key {
		case "type":
			prop.Type = value
		case "description":
			prop.Description = value
		case "default":
			defaultValue = value
			hasDefault = true
		case "enum":
			prop.Enum = strings.Split(value, "|")
		}
	}

	if hasDefault {
		prop.Default = convertDefault(prop.Type, defaultValue)
	}

	return prop, required
}

// convertDefault converts a raw default string to the declared type.
// Unparseable values fall back to the raw string.
func convertDefault(propType, raw string) any {
	switch propType {
	case "int":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	case "float":
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	case "bool":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return raw
}
