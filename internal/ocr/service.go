// Package ocr runs documents through the provider's OCR pipeline.
//
// For every item the Processor:
//   - resolves the binary into bytes and a trusted content type
//   - uploads the file with purpose "ocr"
//   - requests a signed URL for the upload
//   - optionally builds document and bbox annotation schemas
//   - submits the OCR request and merges the response with _metadata
//
// Items run strictly one after another in input order. With best-effort
// continuation a failed item becomes an {"error", "item"} record and the run
// goes on; otherwise the first failure ends the run.
//
// Provider limits enforced locally before any upload:
//   - Maximum file size: 50 MiB
//   - Maximum PDF length: 1000 pages
//   - Document annotations: at most 8 pages
package ocr

import (
	"context"

	"dococr/internal/annotation"
	"dococr/internal/mistral"
)

// Operation selects plain OCR or OCR with structured annotations.
type Operation string

const (
	OperationBasic    Operation = "basicOcr"
	OperationAnnotate Operation = "ocrWithAnnotations"
)

// ParseOperation validates a user-supplied operation name. Empty means basic.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case "", OperationBasic:
		return OperationBasic, nil
	case OperationAnnotate:
		return OperationAnnotate, nil
	default:
		return "", NewOCRError("ParseOperation", ErrInvalidOptions, "unknown operation "+s)
	}
}

const (
	DefaultBinaryProperty = "data"
	DefaultPages          = "0-7"
	DefaultExpiryHours    = 24
	MinExpiryHours        = 1
	MaxExpiryHours        = 168

	MaxDocumentPages = 8
	MaxTotalPages    = 1000
	MaxFileSize      = 50 * 1024 * 1024
)

// Provider is the authenticated capability to call the OCR API. The
// mistral client implements it; retries happen inside.
type Provider interface {
	UploadFile(ctx context.Context, fileName, mimeType string, data []byte) (*mistral.UploadedFile, error)
	SignedURL(ctx context.Context, fileID string, expiryHours int) (*mistral.SignedURL, error)
	OCR(ctx context.Context, req *mistral.OCRRequest) (map[string]any, error)
}

// BinaryPayload is the host's description of one binary attachment. Data
// is either inline base64 or a StoredPrefix handle.
type BinaryPayload struct {
	Data     string
	MimeType string
	FileName string
}

// BinarySource gives access to item attachments.
type BinarySource interface {
	// BinaryPayload returns the attachment, or nil when none exists.
	BinaryPayload(index int, property string) (*BinaryPayload, error)

	// BinaryBytes dereferences a stored (non-inline) attachment.
	BinaryBytes(ctx context.Context, index int, property string) ([]byte, error)
}

// Options are the per-item request options.
type Options struct {
	IncludeImageBase64 bool
	// ExpiryHours is clamped into [1,168]; zero selects 24.
	ExpiryHours int
}

// AnnotationParams hold the annotation controls, used only with
// OperationAnnotate.
type AnnotationParams struct {
	Template         string
	Collection       []annotation.CollectionEntry
	CustomFieldsJSON string

	IncludeBBox  bool
	AdvancedMode bool

	DocumentSchemaJSON string
	BBoxSchemaJSON     string

	// Pages is the page expression for document annotations; nil selects
	// DefaultPages, an empty string means no restriction.
	Pages *string
}

// Selection maps the params onto the field source resolver input.
func (p AnnotationParams) Selection() annotation.Selection {
	return annotation.Selection{
		Template:         p.Template,
		Collection:       p.Collection,
		CustomFieldsJSON: p.CustomFieldsJSON,
		AdvancedMode:     p.AdvancedMode,
		AdvancedJSON:     p.DocumentSchemaJSON,
	}
}

// Item is one unit of work.
type Item struct {
	// BinaryProperty names the attachment; empty selects "data".
	BinaryProperty string
	Operation      Operation
	Model          string
	Options        Options
	Annotation     AnnotationParams
}

// Metadata is attached to every successful result under MetadataKey.
type Metadata struct {
	Operation              Operation `json:"operation"`
	UploadedFileID         string    `json:"uploadedFileId"`
	SignedURL              string    `json:"signedUrl"`
	ProcessedAt            string    `json:"processedAt"`
	DocumentTemplate       *string   `json:"documentTemplate,omitempty"`
	IncludeBBoxAnnotations *bool     `json:"includeBboxAnnotations,omitempty"`
	AdvancedMode           *bool     `json:"advancedMode,omitempty"`
}

// MetadataKey is the reserved result key holding Metadata.
const MetadataKey = "_metadata"

// Result is the output of one item: either the merged provider payload or
// an error record. Index is the item's input position.
type Result struct {
	Index int
	JSON  map[string]any
	Err   error
}

// Failed reports whether the result is an error record.
func (r Result) Failed() bool { return r.Err != nil }
