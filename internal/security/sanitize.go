package security

import (
	"html"
	"strings"
)

// Sanitize HTML-entity-encodes & < > " ' and strips NUL and C0 control
// characters other than tab, newline and carriage return.
//
// Existing entities are decoded before re-encoding, which makes the
// function idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	decoded := html.UnescapeString(stripControl(s))
	return html.EscapeString(stripControl(decoded))
}

func stripControl(s string) string {
	if strings.IndexFunc(s, isStrippedControl) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
}

func isStrippedControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return r < 0x20 || r == 0x7f
}

// SanitizeFields returns a copy of fields with every string value sanitized.
// Nested objects and string slices are walked; other values are kept as is.
func SanitizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case []string:
		cleaned := make([]string, len(t))
		for i, s := range t {
			cleaned[i] = Sanitize(s)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(t))
		for i, item := range t {
			cleaned[i] = sanitizeValue(item)
		}
		return cleaned
	case map[string]any:
		return SanitizeFields(t)
	default:
		return v
	}
}
