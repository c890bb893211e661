package sanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var htmlPolicy = bluemonday.StrictPolicy()

const maxTextLen = 255

// Text trims whitespace, removes null bytes and strips every HTML tag from
// free-form profile input. Entities escaped by the policy are decoded again
// since the value is stored as plain text, not HTML. The result is capped at
// maxTextLen runes.
func Text(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(html.UnescapeString(htmlPolicy.Sanitize(input)))
	if utf8.RuneCountInString(input) > maxTextLen {
		input = string([]rune(input)[:maxTextLen])
	}
	return input
}

// Digits keeps only the decimal digits of a phone number.
func Digits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
