package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns content as a string. Invalid UTF-8 sequences are
// replaced with the replacement character rather than rejected.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return s, nil
}
