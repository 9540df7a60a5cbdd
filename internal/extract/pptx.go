package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// pptxSlidePrefix is the path prefix of slide parts inside a .pptx zip.
const pptxSlidePrefix = "ppt/slides/slide"

// drawText matches <a:t>text</a:t>, the DrawingML text node used on slides.
var drawText = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX extracts text from .pptx bytes by scanning every
// ppt/slides/slideN.xml part for <a:t> text nodes, in archive order.
func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	var pieces [][]string
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract PPTX: open %s: %w", f.Name, err)
		}
		slideXML, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract PPTX: read %s: %w", f.Name, err)
		}
		pieces = append(pieces, drawText.FindAllStringSubmatch(string(slideXML), -1)...)
	}
	return joinTagMatches(pieces), nil
}
