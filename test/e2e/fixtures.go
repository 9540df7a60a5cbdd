package e2e

import (
	"archive/zip"
	"bytes"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions lists the formats the fixture builder can produce:
// plain text (.txt, .md), mail (.eml), RTF, OOXML (.docx, .xlsx, .pptx), and
// OpenDocument (.odt, .odp, .ods). The extractor also handles .pdf, but there
// is no minimal PDF with extractable text worth hand-building here; PDF
// extraction is covered by the extract package's own tests.
var SupportedFileExtensions = []string{
	".txt", ".md", ".eml", ".rtf",
	".docx", ".xlsx", ".pptx",
	".odt", ".odp", ".ods",
}

// MinimalFile returns the smallest well-formed file of the given extension
// whose extracted text contains the given text.
func MinimalFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(text), nil
	case ".eml":
		return minimalEml(text), nil
	case ".rtf":
		return minimalRtf(text), nil
	case ".docx":
		return minimalDocx(text), nil
	case ".pptx":
		return minimalPptx(text), nil
	case ".odt":
		return minimalOdt(text), nil
	case ".odp":
		return minimalOdp(text), nil
	case ".ods":
		return minimalOds(text), nil
	case ".xlsx":
		return minimalXlsx(text)
	default:
		return []byte(text), nil
	}
}

func minimalEml(text string) []byte {
	raw := "Subject: Fixture\r\n" +
		"From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"\r\n" +
		text + "\r\n"
	return []byte(raw)
}

func minimalRtf(text string) []byte {
	return []byte(`{\rtf1\ansi ` + text + `}`)
}

func minimalDocx(text string) []byte {
	return singleEntryZip("word/document.xml",
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>`+text+`</w:t></w:r></w:p></w:body></w:document>`)
}

func minimalPptx(text string) []byte {
	return singleEntryZip("ppt/slides/slide1.xml",
		`<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>`+text+`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
}

func minimalOdt(text string) []byte {
	return singleEntryZip("content.xml",
		`<office:document><office:body><office:text><text:p>`+text+`</text:p></office:text></office:body></office:document>`)
}

func minimalOdp(text string) []byte {
	return singleEntryZip("content.xml",
		`<office:document><office:body><draw:page><draw:text-box><text:p>`+text+`</text:p></draw:text-box></draw:page></office:body></office:document>`)
}

func minimalOds(text string) []byte {
	return singleEntryZip("content.xml",
		`<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>`+text+`</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`)
}

func minimalXlsx(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func singleEntryZip(name, content string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create(name)
	_, _ = fw.Write([]byte(content))
	_ = w.Close()
	return buf.Bytes()
}
