package logger

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// SanitizedEmail masks an email identity for logging ("alice@example.com"
// becomes "a****@*******.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if n := utf8.RuneCountInString(username); n > 1 {
		first, _ := utf8.DecodeRuneInString(username)
		username = string(first) + strings.Repeat("*", n-1)
	}

	if labels := strings.Split(domain, "."); len(labels) > 1 {
		for i := range labels[:len(labels)-1] {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{"password", "token", "secret", "api_key", "apikey", "identity", "email", "auth"}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
