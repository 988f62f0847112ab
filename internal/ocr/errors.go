package ocr

import (
	"errors"
	"fmt"

	"dococr/internal/annotation"
)

// Validation errors. They are never retried.
var (
	// ErrMissingBinary is returned when the item has no binary under the
	// requested property.
	ErrMissingBinary = errors.New("no binary data found on item")

	// ErrEmptyOrCorruptData is returned when the payload is absent, too short
	// to be a document, or not decodable.
	ErrEmptyOrCorruptData = errors.New("binary data is empty or corrupted")

	// ErrUnsupportedFormat is returned when the content type is not accepted
	// by the provider.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned when the decoded document exceeds 50 MiB.
	ErrFileTooLarge = errors.New("file size exceeds the maximum limit (50MB)")

	// ErrTooManyPages is returned when document annotations are requested for
	// more than 8 pages.
	ErrTooManyPages = errors.New("document annotations are limited to a maximum of 8 pages")

	// ErrDocumentTooLong is returned when a PDF has more than 1000 pages.
	ErrDocumentTooLong = errors.New("document exceeds the maximum of 1000 pages")

	// ErrInvalidOptions is returned for an unknown operation or out-of-range
	// option values that cannot be corrected.
	ErrInvalidOptions = errors.New("invalid OCR options")
)

// Upstream errors: a provider call answered without a usable payload.
var (
	ErrUploadFailed    = errors.New("failed to upload file: no file id returned")
	ErrSignedURLFailed = errors.New("failed to get signed URL: no url returned")
	ErrOCRFailed       = errors.New("OCR processing failed: empty response")
)

// OCRError wraps errors with the pipeline step that failed.
type OCRError struct {
	// Op is the step that failed, e.g. "Normalize" or "Upload".
	Op string

	Err error

	// Details carries item-specific context such as the file name.
	Details string
}

func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps err as an OCRError unless it already is one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}

// IsValidation reports whether err is a validation failure of the item's
// input rather than a provider or transport failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingBinary,
		ErrEmptyOrCorruptData,
		ErrUnsupportedFormat,
		ErrFileTooLarge,
		ErrTooManyPages,
		ErrDocumentTooLong,
		ErrInvalidOptions,
		annotation.ErrInvalidSchemaJSON,
		annotation.ErrSchemaBuild,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
