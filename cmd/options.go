package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"dococr/internal/annotation"
	"dococr/internal/logger"
	"dococr/internal/ocr"
)

// itemOptions are the per-item settings shared by the ocr and serve
// commands. Flags and form fields both land here before becoming an
// ocr.Item.
type itemOptions struct {
	Operation string
	Model     string

	Template         string
	Collection       []annotation.CollectionEntry
	CustomFieldsJSON string
	IncludeBBox      bool
	AdvancedMode     bool
	DocumentSchema   string
	BBoxSchema       string
	Pages            string

	IncludeImages bool
	ExpiryHours   int
}

func defaultItemOptions() itemOptions {
	return itemOptions{
		Operation:   string(ocr.OperationBasic),
		Template:    annotation.CustomTemplate,
		Pages:       ocr.DefaultPages,
		ExpiryHours: ocr.DefaultExpiryHours,
	}
}

// item converts the options into an ocr.Item. Empty schema inputs fall back
// to the default custom fields for the custom template, and to the default
// document and bbox schemas in advanced mode.
func (o itemOptions) item() (ocr.Item, error) {
	op, err := ocr.ParseOperation(o.Operation)
	if err != nil {
		return ocr.Item{}, err
	}

	template := strings.TrimSpace(o.Template)
	if template == "" {
		template = annotation.CustomTemplate
	}
	if _, ok := annotation.Template(template); !ok && op == ocr.OperationAnnotate {
		log := logger.WithComponent("options")
		log.Warn().
			Str("template", template).
			Strs("available", annotation.TemplateNames()).
			Msg("Unknown template, no document annotation will be requested")
	}

	customJSON := o.CustomFieldsJSON
	if template == annotation.CustomTemplate && len(o.Collection) == 0 && strings.TrimSpace(customJSON) == "" {
		if customJSON, err = schemaJSON(annotation.DefaultCustomFields()); err != nil {
			return ocr.Item{}, err
		}
	}

	documentSchema, bboxSchema := o.DocumentSchema, o.BBoxSchema
	if o.AdvancedMode {
		if strings.TrimSpace(documentSchema) == "" {
			if documentSchema, err = schemaJSON(annotation.DefaultAdvancedDocumentSchema()); err != nil {
				return ocr.Item{}, err
			}
		}
		if strings.TrimSpace(bboxSchema) == "" {
			if bboxSchema, err = schemaJSON(annotation.DefaultBBoxSchema()); err != nil {
				return ocr.Item{}, err
			}
		}
	}

	pages := o.Pages
	return ocr.Item{
		BinaryProperty: ocr.DefaultBinaryProperty,
		Operation:      op,
		Model:          strings.TrimSpace(o.Model),
		Options: ocr.Options{
			IncludeImageBase64: o.IncludeImages,
			ExpiryHours:        o.ExpiryHours,
		},
		Annotation: ocr.AnnotationParams{
			Template:           template,
			Collection:         o.Collection,
			CustomFieldsJSON:   customJSON,
			IncludeBBox:        o.IncludeBBox,
			AdvancedMode:       o.AdvancedMode,
			DocumentSchemaJSON: documentSchema,
			BBoxSchemaJSON:     bboxSchema,
			Pages:              &pages,
		},
	}, nil
}

func schemaJSON(schema annotation.FieldSchema) (string, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode default schema: %w", err)
	}
	return string(data), nil
}

// fieldFile is the YAML layout accepted by --fields. Either a top-level list
// of entries or a document with a "fields" list.
type fieldFile struct {
	Fields []annotation.CollectionEntry `yaml:"fields"`
}

// loadFieldCollection reads a visual field collection from a YAML file.
func loadFieldCollection(path string) ([]annotation.CollectionEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields file: %w", err)
	}
	return parseFieldCollection(data)
}

func parseFieldCollection(data []byte) ([]annotation.CollectionEntry, error) {
	var entries []annotation.CollectionEntry
	if err := yaml.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var file fieldFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid fields file: %w", err)
	}
	return file.Fields, nil
}

// readInlineOrFile returns value, or the contents of the named file when
// value starts with "@".
func readInlineOrFile(value string) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
