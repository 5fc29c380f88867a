// Package extract turns uploaded files into plain text.
package extract

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedType is returned for extensions with no extractor.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrExtractionFailed wraps any failure reading or decoding a supported file.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Extractor dispatches on the declared file extension.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// SupportedExtensions lists the accepted extensions, lowercased with a leading dot.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".docx"}
}

// IsSupported reports whether ext names an extractable file type.
func IsSupported(ext string) bool {
	return slices.Contains(SupportedExtensions(), normalizeExt(ext))
}

// Extract reads the file at path as the type named by ext.
func (e *Extractor) Extract(path, ext string) (string, error) {
	ext = normalizeExt(ext)
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".txt":
		return extractText(path)
	case ".docx":
		return extractDOCX(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtractionFailed, fmt.Sprintf(format, args...))
}
