// Package textract pulls plain text out of uploaded resume files.
package textract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file kinds no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract converts one uploaded document to plain text. The format is
// picked by file extension.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt", ".md":
		return normalize(string(data)), nil
	case ".pdf":
		return e.extractPDF(data)
	case ".docx":
		return e.extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// normalize smooths out line endings and blank-line runs so prompts stay
// compact regardless of where the file was written.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}
