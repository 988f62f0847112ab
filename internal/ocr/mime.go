package ocr

import (
	"path/filepath"
	"strings"
)

// extensionMIME corrects content types that upstream tooling reported as
// text/plain.
var extensionMIME = map[string]string{
	".pdf":   "application/pdf",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".tiff":  "image/tiff",
	".tif":   "image/tiff",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".epub":  "application/epub+zip",
	".rtf":   "application/rtf",
	".odt":   "application/vnd.oasis.opendocument.text",
	".tex":   "application/x-latex",
	".ipynb": "application/x-ipynb+json",
}

var supportedMIME = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/gif":       {},
	"image/webp":      {},
	"image/tiff":      {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/epub+zip":                    {},
	"application/rtf":                         {},
	"application/vnd.oasis.opendocument.text": {},
	"application/x-latex":                     {},
	"application/x-ipynb+json":                {},
	"text/troff":                              {},
	"text/x-dokuwiki":                         {},
}

// familyMatched lists the top-level types where any subtype is accepted.
var familyMatched = map[string]struct{}{
	"image": {},
}

// MIMEForFileName returns the content type for a known extension.
func MIMEForFileName(name string) (string, bool) {
	mimeType, ok := extensionMIME[strings.ToLower(filepath.Ext(name))]
	return mimeType, ok
}

// IsSupportedMIME reports whether the provider accepts mimeType.
func IsSupportedMIME(mimeType string) bool {
	mimeType = baseMIME(mimeType)
	if _, ok := supportedMIME[mimeType]; ok {
		return true
	}
	top, _, found := strings.Cut(mimeType, "/")
	if !found {
		return false
	}
	_, ok := familyMatched[top]
	return ok
}

// IsSupportedFileName reports whether a file with this name would be
// accepted based on its extension alone.
func IsSupportedFileName(name string) bool {
	_, ok := MIMEForFileName(name)
	return ok
}

// baseMIME lower-cases mimeType and strips parameters.
func baseMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}
