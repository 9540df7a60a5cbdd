package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
)

// odfContentPath is the main content part of any OpenDocument container
// (.odt, .odp, .ods).
const odfContentPath = "content.xml"

// OpenDocument text lives in text:p, text:span, and text:h elements.
// Separate patterns keep opening and closing tags paired.
var odfTextRes = []*regexp.Regexp{
	regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`),
	regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`),
	regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`),
}

// extractOpenDocument extracts text from OpenDocument bytes. All three
// container flavors (text, presentation, spreadsheet) are zips holding a
// content.xml, so one scan serves .odt, .odp, and .ods alike.
func extractOpenDocument(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: not a zip: %w", err)
	}
	contentXML, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	if contentXML == nil {
		return "", fmt.Errorf("extract OpenDocument: %s not found", odfContentPath)
	}
	s := string(contentXML)
	var pieces [][]string
	for _, re := range odfTextRes {
		pieces = append(pieces, re.FindAllStringSubmatch(s, -1)...)
	}
	return joinTagMatches(pieces), nil
}
