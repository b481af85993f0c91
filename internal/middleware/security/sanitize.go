package security

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips HTML and non-printable characters from free text the
// user typed, such as transaction descriptions and category names.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}
