package util

import "strings"

// SanitizeText strips characters Postgres text columns reject, mainly
// NUL bytes that pdf extraction leaks into chunk text. Common
// whitespace survives; other C0 controls are dropped.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	cleaned := strings.Map(func(ch rune) rune {
		switch ch {
		case '\n', '\r', '\t':
			return ch
		}
		if ch < 0x20 {
			return -1
		}
		return ch
	}, s)
	return strings.TrimSpace(cleaned)
}
