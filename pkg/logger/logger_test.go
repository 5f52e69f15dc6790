package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@b.io", "a@*.io"},
		{"bob@localhost", "b**@localhost"},
		{"not-an-email", "[invalid-email]"},
		{"a@b@c", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizedEmail(tt.input))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("identity=alice"))
	assert.True(t, SanitizeQueryString("Password=x"))
	assert.False(t, SanitizeQueryString("page=2&limit=10"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSecurityLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecurityLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "development")

	sl.Log(context.Background(), SecurityRecord{
		EventType: "ACCOUNT_LOCKED",
		Identity:  "alice@example.com",
		ClientIP:  "1.2.3.4",
		RiskScore: 100,
		Timestamp: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Metadata:  map[string]any{"failed_attempts": 5},
	})

	line := decodeLine(t, &buf)
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "security event", line["msg"])
	assert.Equal(t, "ACCOUNT_LOCKED", line["event_type"])
	assert.Equal(t, "alice@example.com", line["identity"])
	assert.Equal(t, "2026-03-10T12:00:00Z", line["timestamp"])
	assert.Equal(t, map[string]any{"failed_attempts": float64(5)}, line["metadata"])
}

func TestSecurityLogger_MasksIdentityInProduction(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecurityLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "production")

	sl.Log(context.Background(), SecurityRecord{EventType: "LOGIN_SUCCESS", Identity: "alice@example.com", Success: true})
	line := decodeLine(t, &buf)
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "a****@*******.com", line["identity"])

	buf.Reset()
	sl.Log(context.Background(), SecurityRecord{EventType: "LOGIN_FAILURE", Identity: "svc-account-7"})
	assert.Equal(t, "[REDACTED]", decodeLine(t, &buf)["identity"])
}
