package ocr

import (
	"context"
	"fmt"
	"time"

	"dococr/internal/annotation"
	"dococr/internal/logger"
	"dococr/internal/mistral"
)

// processedAtLayout matches JavaScript's toISOString.
const processedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// ItemRecorder observes item processing. *metrics.Recorder implements it.
type ItemRecorder interface {
	StartItem()
	FinishItem(operation string, duration time.Duration, err error)
}

// Config configures a Processor.
type Config struct {
	// DefaultModel is used for items without a model.
	DefaultModel   string
	RequiredPolicy annotation.RequiredPolicy
	Recorder       ItemRecorder
}

// Processor sequences upload, sign and OCR for each item.
type Processor struct {
	provider     Provider
	binaries     BinarySource
	defaultModel string
	policy       annotation.RequiredPolicy
	recorder     ItemRecorder
	now          func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(provider Provider, binaries BinarySource, cfg Config) *Processor {
	model := cfg.DefaultModel
	if model == "" {
		model = mistral.DefaultModel
	}
	policy := cfg.RequiredPolicy
	if policy == "" {
		policy = annotation.RequiredSelected
	}
	return &Processor{
		provider:     provider,
		binaries:     binaries,
		defaultModel: model,
		policy:       policy,
		recorder:     cfg.Recorder,
		now:          time.Now,
	}
}

// ProcessItem runs one item through the pipeline and returns the provider
// payload merged with its Metadata under MetadataKey. Validation happens
// before the first provider call.
func (p *Processor) ProcessItem(ctx context.Context, index int, item Item) (map[string]any, error) {
	log := logger.WithComponent("ocr").With().Int("item", index).Logger()
	start := time.Now()

	operation, err := ParseOperation(string(item.Operation))
	if err != nil {
		return nil, err
	}

	doc, err := Normalize(ctx, p.binaries, index, item.BinaryProperty)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("file_name", doc.FileName).
		Str("mime_type", doc.MimeType).
		Int("size_bytes", len(doc.Data)).
		Msg("Binary normalized")

	model := item.Model
	if model == "" {
		model = p.defaultModel
	}
	req := &mistral.OCRRequest{
		Model:              model,
		Document:           mistral.DocumentURL{Type: "document_url"},
		IncludeImageBase64: item.Options.IncludeImageBase64,
	}
	if operation == OperationAnnotate {
		if err := p.applyAnnotations(req, item.Annotation); err != nil {
			return nil, WrapOCRError("Annotations", err, doc.FileName)
		}
	}

	uploaded, err := p.provider.UploadFile(ctx, doc.FileName, doc.MimeType, doc.Data)
	if err != nil {
		return nil, WrapOCRError("Upload", err, doc.FileName)
	}
	if uploaded == nil || uploaded.ID == "" {
		return nil, NewOCRError("Upload", ErrUploadFailed, doc.FileName)
	}
	log.Debug().Str("file_id", uploaded.ID).Msg("File uploaded")

	signed, err := p.provider.SignedURL(ctx, uploaded.ID, ClampExpiryHours(item.Options.ExpiryHours))
	if err != nil {
		return nil, WrapOCRError("SignedURL", err, uploaded.ID)
	}
	if signed == nil || signed.URL == "" {
		return nil, NewOCRError("SignedURL", ErrSignedURLFailed, uploaded.ID)
	}
	log.Debug().Str("file_id", uploaded.ID).Msg("Signed URL issued")

	req.Document.DocumentURL = signed.URL
	resp, err := p.provider.OCR(ctx, req)
	if err != nil {
		return nil, WrapOCRError("OCR", err, uploaded.ID)
	}
	if len(resp) == 0 {
		return nil, NewOCRError("OCR", ErrOCRFailed, uploaded.ID)
	}

	meta := Metadata{
		Operation:      operation,
		UploadedFileID: uploaded.ID,
		SignedURL:      signed.URL,
		ProcessedAt:    p.now().UTC().Format(processedAtLayout),
	}
	if operation == OperationAnnotate {
		tmpl := item.Annotation.Template
		bbox := item.Annotation.IncludeBBox
		advanced := item.Annotation.AdvancedMode
		meta.DocumentTemplate = &tmpl
		meta.IncludeBBoxAnnotations = &bbox
		meta.AdvancedMode = &advanced
	}

	out := make(map[string]any, len(resp)+1)
	for k, v := range resp {
		out[k] = v
	}
	out[MetadataKey] = meta

	log.Info().
		Str("file_id", uploaded.ID).
		Str("operation", string(operation)).
		Dur("duration", time.Since(start)).
		Msg("Item processed")

	return out, nil
}

// applyAnnotations resolves both annotation schemas into req.
func (p *Processor) applyAnnotations(req *mistral.OCRRequest, params AnnotationParams) error {
	docFields, err := annotation.ResolveDocumentFields(params.Selection())
	if err != nil {
		return err
	}

	if len(docFields) > 0 {
		env, err := annotation.BuildJSONSchema(docFields, annotation.DocumentSchemaName, p.policy)
		if err != nil {
			return err
		}
		req.DocumentAnnotationFormat = env

		expr := DefaultPages
		if params.Pages != nil {
			expr = *params.Pages
		}
		pages := annotation.ParsePages(expr)
		if len(pages) > MaxDocumentPages {
			return fmt.Errorf("%w: %d pages selected", ErrTooManyPages, len(pages))
		}
		if len(pages) > 0 {
			req.Pages = pages
		}
	}

	if params.IncludeBBox {
		bboxFields, err := annotation.ResolveBBoxFields(params.AdvancedMode, params.BBoxSchemaJSON)
		if err != nil {
			return err
		}
		env, err := annotation.BuildJSONSchema(bboxFields, annotation.BBoxSchemaName, p.policy)
		if err != nil {
			return err
		}
		req.BBoxAnnotationFormat = env
	}
	return nil
}

// ClampExpiryHours bounds hours to [1,168]; zero or less selects 24.
func ClampExpiryHours(hours int) int {
	switch {
	case hours <= 0:
		return DefaultExpiryHours
	case hours > MaxExpiryHours:
		return MaxExpiryHours
	default:
		return hours
	}
}
