package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Post and message bodies are plain text; every tag is stripped.
var sanitizer = bluemonday.StrictPolicy()

// SanitizeText strips markup from user-submitted text and trims surrounding whitespace.
// Entities escaped by the policy are decoded again so the stored text stays plain.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
}
