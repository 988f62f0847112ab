package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"dococr/internal/logger"
)

// StoredPrefix marks a BinaryPayload.Data handle whose bytes live outside
// the payload and must be fetched through BinarySource.BinaryBytes.
const StoredPrefix = "filesystem-"

// minEncodedLength is the shortest payload accepted as a document.
const minEncodedLength = 10

func init() {
	api.DisableConfigDir()
}

// Document is a normalized binary ready for upload.
type Document struct {
	Data     []byte
	MimeType string
	FileName string
}

// Normalize resolves the attachment of item index into bytes and a trusted
// content type. It performs no network calls.
func Normalize(ctx context.Context, src BinarySource, index int, property string) (*Document, error) {
	const op = "Normalize"
	log := logger.WithComponent("ocr")

	if property == "" {
		property = DefaultBinaryProperty
	}

	payload, err := src.BinaryPayload(index, property)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("property %q", property))
	}
	if payload == nil {
		return nil, NewOCRError(op, ErrMissingBinary, fmt.Sprintf("property %q does not exist on item %d", property, index))
	}

	fileName := strings.TrimSpace(payload.FileName)
	if fileName == "" {
		fileName = "document"
	}

	if len(strings.TrimSpace(payload.Data)) < minEncodedLength {
		return nil, NewOCRError(op, ErrEmptyOrCorruptData, fileName)
	}

	var data []byte
	if strings.HasPrefix(payload.Data, StoredPrefix) {
		data, err = src.BinaryBytes(ctx, index, property)
		if err != nil {
			return nil, WrapOCRError(op, err, fileName)
		}
	} else {
		data, err = decodeInline(payload.Data)
		if err != nil {
			return nil, NewOCRError(op, err, fileName)
		}
	}

	if len(data) == 0 {
		return nil, NewOCRError(op, ErrEmptyOrCorruptData, fileName)
	}
	if len(data) > MaxFileSize {
		return nil, NewOCRError(op, ErrFileTooLarge, fmt.Sprintf("%s is %.1f MB", fileName, float64(len(data))/(1024*1024)))
	}

	mimeType := baseMIME(payload.MimeType)
	if mimeType == "" {
		if byName, ok := MIMEForFileName(fileName); ok {
			mimeType = byName
		} else {
			mimeType = baseMIME(mimetype.Detect(data).String())
			log.Debug().
				Str("file_name", fileName).
				Str("detected_mime", mimeType).
				Msg("No content type declared, detected from content")
		}
	}
	if mimeType == "text/plain" {
		if corrected, ok := MIMEForFileName(fileName); ok {
			log.Info().
				Str("file_name", fileName).
				Str("original_mime", mimeType).
				Str("corrected_mime", corrected).
				Msg("Corrected content type from file extension")
			mimeType = corrected
		}
	}

	if !IsSupportedMIME(mimeType) {
		return nil, NewOCRError(op, ErrUnsupportedFormat, fmt.Sprintf("%s has type %s", fileName, mimeType))
	}

	if mimeType == "application/pdf" {
		if pages, ok := pdfPageCount(data); ok && pages > MaxTotalPages {
			return nil, NewOCRError(op, ErrDocumentTooLong, fmt.Sprintf("%s has %d pages", fileName, pages))
		}
	}

	return &Document{Data: data, MimeType: mimeType, FileName: fileName}, nil
}

// decodeInline decodes base64 data, rejecting oversized payloads before
// allocating for them.
func decodeInline(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if estimatedDecodedLen(encoded) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyOrCorruptData, err)
	}
	return data, nil
}

func estimatedDecodedLen(encoded string) int {
	n := len(encoded) / 4 * 3
	if rem := len(encoded) % 4; rem > 1 {
		n += rem - 1
	}
	return n - strings.Count(encoded[max(0, len(encoded)-2):], "=")
}

// pdfPageCount counts pages with relaxed validation. ok is false when the
// PDF cannot be parsed; the provider then has the final word.
func pdfPageCount(data []byte) (pages int, ok bool) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	defer func() {
		if recover() != nil {
			pages, ok = 0, false
		}
	}()

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, false
	}
	return n, true
}
