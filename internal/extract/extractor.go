// Package extract provides text extraction from uploaded document formats.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content, dispatching
// on the file extension.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext includes the leading dot (e.g. ".pdf"). Extensions outside the
// supported set are rejected; upload validation normally screens them out
// before extraction runs.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odt", ".odp", ".ods":
		return extractOpenDocument(content)
	case ".rtf":
		return extractRTF(content)
	case ".eml":
		return extractEmail(content)
	case ".txt", ".md", "":
		return extractPlain(content)
	default:
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
}

// readZipFile returns the contents of the named entry in the archive, or nil
// when the entry is absent.
func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}
