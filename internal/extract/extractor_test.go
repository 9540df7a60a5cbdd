package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	content := []byte("Hello world\nLine 2")
	got, err := e.ExtractBytes(content, ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_plainUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("caf\xc3\xa9"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "café" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "hello\uFFFDworld" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("raw content"), ".xyz"); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestExtract_nonexistent(t *testing.T) {
	e := NewExtractor()
	if _, err := e.Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtract_plainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "File content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := NewExtractor()
	got, err := e.ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Title\nValue 1\tValue 2" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_excelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := NewExtractor()
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Searchable text" {
		t.Errorf("got %q", got)
	}
}

// zipWith builds an in-memory zip holding the given name/content entries.
func zipWith(entries map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(content))
	}
	_ = w.Close()
	return buf.Bytes()
}

func minimalDocx(text string) []byte {
	return zipWith(map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`,
	})
}

func TestExtractBytes_docx(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes(minimalDocx("Searchable docx content"), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Searchable docx content" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_docxContentTypesOverride(t *testing.T) {
	// The main document may live somewhere other than word/document.xml;
	// [Content_Types].xml points at it, in either attribute order.
	docXML := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Redirected body</w:t></w:r></w:p></w:body></w:document>`
	overrides := map[string]string{
		"PartName first":    `<Override PartName="/word/document2.xml" ContentType="` + wordMainContentType + `"/>`,
		"ContentType first": `<Override ContentType="` + wordMainContentType + `" PartName="/word/document2.xml"/>`,
	}
	for name, override := range overrides {
		t.Run(name, func(t *testing.T) {
			content := zipWith(map[string]string{
				"[Content_Types].xml": `<?xml version="1.0"?><Types>` + override + `</Types>`,
				"word/document2.xml":  docXML,
			})
			got, err := NewExtractor().ExtractBytes(content, ".docx")
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != "Redirected body" {
				t.Errorf("got %q", got)
			}
		})
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for invalid docx")
	}
}

func TestExtractBytes_pptx(t *testing.T) {
	content := zipWith(map[string]string{
		"ppt/slides/slide1.xml": `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>First slide</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`,
	})
	e := NewExtractor()
	got, err := e.ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "First slide" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_pptxIgnoresNonSlideParts(t *testing.T) {
	content := zipWith(map[string]string{
		"ppt/slides/slide1.xml":           `<p:sld><a:t>Slide text</a:t></p:sld>`,
		"docProps/core.xml":               `<a:t>Metadata text</a:t>`,
		"ppt/notesSlides/notesSlide1.xml": `<a:t>Speaker notes</a:t>`,
	})
	e := NewExtractor()
	got, err := e.ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "Slide text" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_pptxNotZip(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".pptx"); err == nil {
		t.Error("expected error for invalid pptx")
	}
}

func minimalODF(contentXML string) []byte {
	return zipWith(map[string]string{"content.xml": contentXML})
}

func TestExtractBytes_openDocument(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		xml  string
		want string
	}{
		{
			"odt paragraphs",
			".odt",
			`<office:document><office:body><office:text><text:p>Written content</text:p></office:text></office:body></office:document>`,
			"Written content",
		},
		{
			"odp page with heading",
			".odp",
			`<office:document><office:body><draw:page><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page></office:body></office:document>`,
			// Grouped by element kind: paragraphs, spans, then headings.
			"Body text Slide title",
		},
		{
			"ods cells",
			".ods",
			`<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row></table:table></office:body></office:document>`,
			"Cell A Cell B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewExtractor().ExtractBytes(minimalODF(tt.xml), tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_openDocumentContentMissing(t *testing.T) {
	content := zipWith(map[string]string{"other.xml": "<text:p>hidden</text:p>"})
	e := NewExtractor()
	if _, err := e.ExtractBytes(content, ".odp"); err == nil {
		t.Error("expected error when content.xml missing")
	}
}

func TestExtract_odfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pres.odp")
	content := minimalODF(`<office:document><office:body><draw:page><text:p>From file</text:p></draw:page></office:body></office:document>`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "From file" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_rtf(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(`{\rtf1\ansi Hello from RTF}`), ".rtf")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "Hello from RTF") {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_emlSimple(t *testing.T) {
	raw := "Subject: Quarterly Report\r\n" +
		"From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"\r\n" +
		"The numbers look good this quarter.\r\n"

	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.HasPrefix(got, "Subject: Quarterly Report\nFrom: alice@example.com\nTo: bob@example.com\n") {
		t.Errorf("header block wrong:\n%s", got)
	}
	if !strings.Contains(got, "---") {
		t.Error("missing header/body separator")
	}
	if !strings.Contains(got, "The numbers look good this quarter.") {
		t.Errorf("body missing:\n%s", got)
	}
}

func TestExtractBytes_emlMissingHeaders(t *testing.T) {
	raw := "Subject: Only subject\r\n\r\nbody\r\n"
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "From: N/A") || !strings.Contains(got, "To: N/A") {
		t.Errorf("missing headers should read N/A:\n%s", got)
	}
}

func TestExtractBytes_emlEncodedSubject(t *testing.T) {
	raw := "Subject: =?utf-8?q?Caf=C3=A9_notes?=\r\n\r\nbody\r\n"
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "Subject: Café notes") {
		t.Errorf("encoded subject not decoded:\n%s", got)
	}
}

func TestExtractBytes_emlMultipartPrefersPlain(t *testing.T) {
	raw := "Subject: Multi\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain wins\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html loses</p>\r\n" +
		"--XYZ--\r\n"

	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "plain wins") {
		t.Errorf("plain part missing:\n%s", got)
	}
	if strings.Contains(got, "html loses") {
		t.Errorf("html part should be dropped when plain exists:\n%s", got)
	}
}

func TestExtractBytes_emlHTMLOnlyStripped(t *testing.T) {
	raw := "Subject: HTML\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<html><body><p>Visible text</p></body></html>\r\n"

	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "Visible text") {
		t.Errorf("html text missing:\n%s", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("tags not stripped:\n%s", got)
	}
}

func TestExtractBytes_emlQuotedPrintable(t *testing.T) {
	raw := "Subject: QP\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9 meeting\r\n"

	e := NewExtractor()
	got, err := e.ExtractBytes([]byte(raw), ".eml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !strings.Contains(got, "café meeting") {
		t.Errorf("quoted-printable not decoded:\n%s", got)
	}
}

func TestExtractBytes_emlInvalid(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not an email at all"), ".eml"); err == nil {
		t.Error("expected error for malformed email")
	}
}
