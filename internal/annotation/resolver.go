package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CustomFieldSentinel in CollectionEntry.FieldName means "use CustomFieldName".
const CustomFieldSentinel = "__custom__"

// FieldSource is where a FieldSchema comes from. It is one of TemplateSource,
// CollectionSource or RawJSONSource.
type FieldSource interface {
	fieldSource()
}

// TemplateSource names a preset. Unknown ids resolve to an empty schema.
type TemplateSource struct {
	ID string
}

// CollectionSource is the visual field collection, one entry per field.
type CollectionSource struct {
	Entries []CollectionEntry
}

// RawJSONSource is a JSON object mapping field names to FieldSpecs. Label
// names the input in error messages.
type RawJSONSource struct {
	Text  string
	Label string
}

func (TemplateSource) fieldSource()   {}
func (CollectionSource) fieldSource() {}
func (RawJSONSource) fieldSource()    {}

// CollectionEntry is one row of the visual field collection. Entries naming
// a quick field may leave FieldType and Description empty to inherit the
// preset; a nil Required inherits the preset default too.
type CollectionEntry struct {
	FieldName       string `json:"fieldName" yaml:"fieldName"`
	CustomFieldName string `json:"customFieldName,omitempty" yaml:"customFieldName,omitempty"`
	FieldType       string `json:"fieldType" yaml:"fieldType"`
	Description     string `json:"description" yaml:"description"`
	Required        *bool  `json:"required,omitempty" yaml:"required,omitempty"`
}

// Name returns the effective field name, resolving the custom sentinel.
func (e CollectionEntry) Name() string {
	if e.FieldName == CustomFieldSentinel {
		return strings.TrimSpace(e.CustomFieldName)
	}
	return strings.TrimSpace(e.FieldName)
}

// Selection is the user's document-field choice for one item.
type Selection struct {
	Template         string
	Collection       []CollectionEntry
	CustomFieldsJSON string
	AdvancedMode     bool
	AdvancedJSON     string
}

// Source picks the single field source a selection stands for. Advanced
// mode wins over everything else; the custom template reads the collection,
// falling back to the custom-fields JSON when no collection was given.
func (s Selection) Source() FieldSource {
	switch {
	case s.AdvancedMode:
		return RawJSONSource{Text: s.AdvancedJSON, Label: "Document Annotation Schema"}
	case s.Template == CustomTemplate && len(s.Collection) > 0:
		return CollectionSource{Entries: s.Collection}
	case s.Template == CustomTemplate && strings.TrimSpace(s.CustomFieldsJSON) != "":
		return RawJSONSource{Text: s.CustomFieldsJSON, Label: "Custom Fields"}
	case s.Template == CustomTemplate:
		return CollectionSource{}
	default:
		return TemplateSource{ID: s.Template}
	}
}

// Resolve produces the FieldSchema described by src.
func Resolve(src FieldSource) (FieldSchema, error) {
	switch src := src.(type) {
	case TemplateSource:
		schema, _ := Template(src.ID)
		return schema, nil
	case CollectionSource:
		return fromCollection(src.Entries)
	case RawJSONSource:
		return fromJSON(src.Text, src.Label)
	default:
		return nil, schemaError("Resolve", ErrSchemaBuild, "unknown field source %T", src)
	}
}

// ResolveDocumentFields resolves the document-level fields of a selection.
func ResolveDocumentFields(sel Selection) (FieldSchema, error) {
	return Resolve(sel.Source())
}

// ResolveBBoxFields resolves element-level fields: the given JSON in advanced
// mode, the default bbox schema otherwise.
func ResolveBBoxFields(advancedMode bool, schemaJSON string) (FieldSchema, error) {
	if !advancedMode {
		return DefaultBBoxSchema(), nil
	}
	return Resolve(RawJSONSource{Text: schemaJSON, Label: "BBox Annotation Schema"})
}

func fromCollection(entries []CollectionEntry) (FieldSchema, error) {
	const op = "fromCollection"

	schema := make(FieldSchema, len(entries))
	for i, entry := range entries {
		name := entry.Name()
		if name == "" {
			continue
		}

		spec := FieldSpec{
			Type:        FieldType(strings.TrimSpace(entry.FieldType)),
			Description: strings.TrimSpace(entry.Description),
		}
		if preset, ok := QuickField(name); ok {
			if spec.Type == "" {
				spec.Type = preset.Type
			}
			if spec.Description == "" {
				spec.Description = preset.Description
			}
		}
		// Only an explicit true marks a collection field required.
		spec.Required = entry.Required != nil && *entry.Required

		if spec.Type == "" || spec.Description == "" {
			continue
		}
		if !spec.Type.Valid() {
			return nil, schemaError(op, ErrSchemaBuild, "entry %d (%s): unsupported field type %q", i, name, spec.Type)
		}

		// Later entries replace earlier ones with the same name.
		schema[name] = normalizeSpec(spec)
	}
	return schema, nil
}

func fromJSON(text, label string) (FieldSchema, error) {
	const op = "fromJSON"
	if label == "" {
		label = "Schema"
	}

	var raw any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, schemaError(op, ErrInvalidSchemaJSON, "%s: %v", label, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, schemaError(op, ErrSchemaBuild, "%s must be a JSON object of field definitions", label)
	}

	var schema FieldSchema
	if err := json.Unmarshal([]byte(text), &schema); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, schemaError(op, ErrSchemaBuild, "%s: field %q: expected %s", label, typeErr.Field, typeErr.Type)
		}
		return nil, schemaError(op, ErrSchemaBuild, "%s: %v", label, err)
	}

	for name, spec := range schema {
		if name == "" {
			return nil, schemaError(op, ErrSchemaBuild, "%s: field name must not be empty", label)
		}
		if !spec.Type.Valid() {
			return nil, schemaError(op, ErrSchemaBuild, "%s: field %q has unsupported type %q", label, name, spec.Type)
		}
		schema[name] = normalizeSpec(spec)
	}
	return schema, nil
}

// String describes the source for logs.
func (s TemplateSource) String() string   { return fmt.Sprintf("template(%s)", s.ID) }
func (s CollectionSource) String() string { return fmt.Sprintf("collection(%d entries)", len(s.Entries)) }
func (s RawJSONSource) String() string    { return fmt.Sprintf("json(%s)", s.Label) }
