package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Binaries is an in-memory BinarySource indexed by item position, then by
// property name.
type Binaries []map[string]BinaryPayload

// InlinePayload builds a payload carrying data as base64.
func InlinePayload(data []byte, mimeType, fileName string) BinaryPayload {
	return BinaryPayload{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		FileName: fileName,
	}
}

// FilePayload builds a stored payload referring to a file on disk. The
// content type is left for the normalizer to determine.
func FilePayload(path string) BinaryPayload {
	return BinaryPayload{
		Data:     StoredPrefix + path,
		FileName: filepath.Base(path),
	}
}

func (b Binaries) BinaryPayload(index int, property string) (*BinaryPayload, error) {
	if index < 0 || index >= len(b) || b[index] == nil {
		return nil, nil
	}
	payload, ok := b[index][property]
	if !ok {
		return nil, nil
	}
	return &payload, nil
}

func (b Binaries) BinaryBytes(ctx context.Context, index int, property string) ([]byte, error) {
	const op = "BinaryBytes"

	payload, _ := b.BinaryPayload(index, property)
	if payload == nil {
		return nil, NewOCRError(op, ErrMissingBinary, fmt.Sprintf("property %q does not exist on item %d", property, index))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := strings.TrimPrefix(payload.Data, StoredPrefix)
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewOCRError(op, ErrMissingBinary, err.Error())
	}
	if info.IsDir() {
		return nil, NewOCRError(op, ErrEmptyOrCorruptData, path+" is a directory")
	}
	if info.Size() > MaxFileSize {
		return nil, NewOCRError(op, ErrFileTooLarge, fmt.Sprintf("%s is %.1f MB", path, float64(info.Size())/(1024*1024)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewOCRError(op, ErrEmptyOrCorruptData, err.Error())
	}
	return data, nil
}
