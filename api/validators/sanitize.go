package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims free text such as product titles and checkout notes,
// drops control characters and caps it at maxLen bytes without splitting a
// multi-byte rune, so accented titles survive the cut.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), r == utf8.RuneError:
			return -1
		}
		return r
	}, input))
	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimSpace(cleaned[:cut])
}

// NormalizeTrackingCode uppercases a carrier code and removes pasted spaces
// and dashes: " br 123-456 br " becomes "BR123456BR".
func NormalizeTrackingCode(input string, maxLen int) string {
	code := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || unicode.IsControl(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, input)
	return SanitizeString(code, maxLen)
}
