package llm

import "encoding/json"

// Schema types.
const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeInteger = "integer"
)

// Schema is a provider-neutral subset of JSON Schema. Providers translate it
// into their own structured-output formats.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// MarshalJSON emits standard JSON Schema; objects are closed to extra keys.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type alias Schema
	if s.Type != TypeObject {
		return json.Marshal((*alias)(s))
	}
	return json.Marshal(&struct {
		*alias
		AdditionalProperties bool `json:"additionalProperties"`
	}{alias: (*alias)(s)})
}

// String returns the schema as indented JSON for prompt embedding.
func (s *Schema) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Object builds an object schema.
func Object(required []string, props map[string]*Schema) *Schema {
	return &Schema{Type: TypeObject, Properties: props, Required: required}
}

// String builds a string schema.
func String(description string) *Schema {
	return &Schema{Type: TypeString, Description: description}
}

// Enum builds a string schema restricted to values.
func Enum(description string, values ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: values}
}

// Boolean builds a boolean schema.
func Boolean(description string) *Schema {
	return &Schema{Type: TypeBoolean, Description: description}
}

// Array builds an array schema of items.
func Array(description string, items *Schema) *Schema {
	return &Schema{Type: TypeArray, Description: description, Items: items}
}
