package annotation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Schema names used for the two annotation formats.
const (
	DocumentSchemaName = "DocumentAnnotation"
	BBoxSchemaName     = "BBoxAnnotation"
)

// RequiredPolicy selects which fields end up in the envelope's required list.
type RequiredPolicy string

const (
	// RequiredSelected lists only fields declared with Required set.
	RequiredSelected RequiredPolicy = "selected"
	// RequiredAll lists every field.
	RequiredAll RequiredPolicy = "all"
)

// ParseRequiredPolicy maps a configuration value onto a policy. The empty
// string selects RequiredSelected.
func ParseRequiredPolicy(s string) (RequiredPolicy, error) {
	switch RequiredPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RequiredSelected:
		return RequiredSelected, nil
	case RequiredAll:
		return RequiredAll, nil
	default:
		return "", fmt.Errorf("unknown required policy %q (want %q or %q)", s, RequiredSelected, RequiredAll)
	}
}

// JSONSchemaEnvelope is the provider-facing annotation format.
type JSONSchemaEnvelope struct {
	Type       string      `json:"type"`
	JSONSchema NamedSchema `json:"json_schema"`
}

// NamedSchema wraps the object schema with its name and strictness flag.
type NamedSchema struct {
	Name   string       `json:"name"`
	Strict bool         `json:"strict"`
	Schema ObjectSchema `json:"schema"`
}

// ObjectSchema is the strict object schema describing all extracted fields.
type ObjectSchema struct {
	Type                 string              `json:"type"`
	Title                string              `json:"title"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property is one field of an ObjectSchema.
type Property struct {
	Type        FieldType `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Items       *Items    `json:"items,omitempty"`
}

// BuildJSONSchema converts fields into the strict envelope named schemaName.
// The required list is sorted so the envelope is deterministic.
func BuildJSONSchema(fields FieldSchema, schemaName string, policy RequiredPolicy) (*JSONSchemaEnvelope, error) {
	const op = "BuildJSONSchema"

	if fields == nil {
		return nil, schemaError(op, ErrSchemaBuild, "schema source is not an object")
	}

	properties := make(map[string]Property, len(fields))
	required := make([]string, 0, len(fields))

	for name, spec := range fields {
		if name == "" {
			return nil, schemaError(op, ErrSchemaBuild, "field name must not be empty")
		}
		if !spec.Type.Valid() {
			return nil, schemaError(op, ErrSchemaBuild, "field %q has unsupported type %q", name, spec.Type)
		}
		spec = normalizeSpec(spec)

		prop := Property{
			Type:        spec.Type,
			Title:       FieldTitle(name),
			Description: spec.Description,
		}
		if spec.Items != nil {
			items := *spec.Items
			prop.Items = &items
		}
		properties[name] = prop

		if policy == RequiredAll || spec.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	return &JSONSchemaEnvelope{
		Type: "json_schema",
		JSONSchema: NamedSchema{
			Name:   strings.ToLower(schemaName),
			Strict: true,
			Schema: ObjectSchema{
				Type:                 "object",
				Title:                schemaName,
				Properties:           properties,
				Required:             required,
				AdditionalProperties: false,
			},
		},
	}, nil
}

// FieldTitle capitalizes each underscore-separated word of name, keeping the
// underscores: "total_amount" becomes "Total_Amount".
func FieldTitle(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, "_")
}
