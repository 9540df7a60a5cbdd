package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// extractEmail extracts text from .eml bytes: a header block (Subject, From,
// To, Date) followed by the message body. Multipart mail prefers text/plain
// parts; HTML-only mail is tag-stripped.
func extractEmail(content []byte) (string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract email: %w", err)
	}

	var b strings.Builder
	for _, key := range []string{"Subject", "From", "To", "Date"} {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(headerOrNA(msg.Header, key))
		b.WriteByte('\n')
	}
	b.WriteString("---\n")

	body, err := emailBody(msg)
	if err != nil {
		return "", fmt.Errorf("extract email: %w", err)
	}
	b.WriteString(body)
	return strings.TrimSpace(b.String()), nil
}

func headerOrNA(h mail.Header, key string) string {
	if v := decodeMIMEHeader(h.Get(key)); v != "" {
		return v
	}
	return "N/A"
}

// decodeMIMEHeader decodes RFC 2047 encoded-word headers, falling back to
// the raw value when decoding fails.
func decodeMIMEHeader(v string) string {
	if v == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

func emailBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unparseable content type: read the body as-is.
		data, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", readErr
		}
		return string(data), nil
	}
	if strings.HasPrefix(mediaType, "multipart/") {
		return multipartText(msg.Body, params["boundary"])
	}
	data, err := io.ReadAll(msg.Body)
	if err != nil {
		return "", err
	}
	data = decodeTransfer(data, msg.Header.Get("Content-Transfer-Encoding"))
	if mediaType == "text/html" {
		return stripTags(string(data)), nil
	}
	return string(data), nil
}

// multipartText collects text/plain parts, recursing into nested multiparts,
// and falls back to tag-stripped text/html when no plain part exists.
func multipartText(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}
	mr := multipart.NewReader(r, boundary)
	var plain, html []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "application/octet-stream"
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			continue
		}
		data = decodeTransfer(data, part.Header.Get("Content-Transfer-Encoding"))
		switch {
		case mediaType == "text/plain":
			plain = append(plain, string(data))
		case mediaType == "text/html":
			html = append(html, stripTags(string(data)))
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedErr := multipartText(bytes.NewReader(data), params["boundary"])
			if nestedErr == nil && nested != "" {
				plain = append(plain, nested)
			}
		}
	}
	if len(plain) > 0 {
		return strings.Join(plain, "\n"), nil
	}
	return strings.Join(html, "\n"), nil
}

// decodeTransfer undoes the Content-Transfer-Encoding. Unknown or broken
// encodings return the data unchanged rather than failing the extraction.
func decodeTransfer(data []byte, encoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		compact := strings.NewReplacer("\r", "", "\n", "").Replace(string(data))
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return data
		}
		return decoded
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

// stripTags drops everything between < and >, then drops blank lines.
func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
