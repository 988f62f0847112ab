// Package annotation turns user-declared extraction fields into the strict
// JSON-schema envelopes the OCR provider accepts for document-level and
// bounding-box annotations.
//
// Fields can come from three places:
//   - a named document template (invoice, letter, contract, ...)
//   - a visual field collection, one entry per field
//   - raw JSON, either the custom-fields JSON or the advanced-mode schema
//
// Whatever the source, the result is a FieldSchema, which BuildJSONSchema
// converts into the provider envelope.
package annotation

import (
	"fmt"
	"sort"
)

// FieldType is the JSON type of an extracted field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray:
		return true
	default:
		return false
	}
}

// Items describes the element type of an array field.
type Items struct {
	Type string `json:"type" yaml:"type"`
}

// FieldSpec declares a single field to extract.
type FieldSpec struct {
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description" yaml:"description"`
	Items       *Items    `json:"items,omitempty" yaml:"items,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

// FieldSchema maps unique field names to their specs.
type FieldSchema map[string]FieldSpec

// Names returns the field names in sorted order.
func (s FieldSchema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the schema.
func (s FieldSchema) Clone() FieldSchema {
	if s == nil {
		return nil
	}
	out := make(FieldSchema, len(s))
	for name, spec := range s {
		if spec.Items != nil {
			items := *spec.Items
			spec.Items = &items
		}
		out[name] = spec
	}
	return out
}

// normalizeSpec enforces that items is present exactly when the type is array.
func normalizeSpec(spec FieldSpec) FieldSpec {
	if spec.Type == TypeArray {
		if spec.Items == nil || spec.Items.Type == "" {
			spec.Items = &Items{Type: string(TypeString)}
		}
		return spec
	}
	spec.Items = nil
	return spec
}

// arrayOf is shorthand for an array-of-strings field.
func arrayOf(description string) FieldSpec {
	return FieldSpec{Type: TypeArray, Description: description, Items: &Items{Type: string(TypeString)}}
}

func (s FieldSpec) String() string {
	if s.Type == TypeArray && s.Items != nil {
		return fmt.Sprintf("%s<%s>", s.Type, s.Items.Type)
	}
	return string(s.Type)
}
