package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes name safe as a single path component. Separators
// and wildcard characters become dashes, quoting and redirection characters
// are dropped, and control characters are removed.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*`, r):
			return '-'
		case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	return strings.Trim(strings.TrimSpace(cleaned), ".")
}
