package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const (
	wordDocumentPath    = "word/document.xml"
	packageContentTypes = "[Content_Types].xml"
	wordMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wordText matches <w:t>text</w:t> including variants carrying attributes
// such as xml:space="preserve".
var wordText = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// The Override element in [Content_Types].xml may list PartName and
// ContentType in either order.
var wordOverrideRes = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(wordMainContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(wordMainContentType) + `"[^>]+PartName="([^"]+)"`),
}

// extractDOCX extracts text from .docx bytes. A DOCX is a zip whose main
// body lives in word/document.xml (or wherever [Content_Types].xml points).
// All <w:t> text nodes are collected so content survives regardless of
// paragraph and run attributes.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	docPath := wordMainDocumentPath(zr)
	docXML, err := readZipFile(zr, docPath)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	return joinTagMatches(wordText.FindAllStringSubmatch(string(docXML), -1)), nil
}

// wordMainDocumentPath resolves the main document part from
// [Content_Types].xml, falling back to the conventional word/document.xml.
func wordMainDocumentPath(zr *zip.Reader) string {
	data, err := readZipFile(zr, packageContentTypes)
	if err != nil || data == nil {
		return wordDocumentPath
	}
	for _, re := range wordOverrideRes {
		if m := re.FindStringSubmatch(string(data)); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return wordDocumentPath
}

// joinTagMatches joins the first capture group of every match with single
// spaces, trimming each piece.
func joinTagMatches(matches [][]string) string {
	var b strings.Builder
	for _, m := range matches {
		piece := strings.TrimSpace(m[1])
		if piece == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(piece)
	}
	return b.String()
}
