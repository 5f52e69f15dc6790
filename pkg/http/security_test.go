package http_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "critical threat",
			err:    &models.SecurityError{Kind: models.KindThreatDetected, Class: models.ClassAuthentication},
			status: http.StatusForbidden,
			code:   "request_blocked",
		},
		{
			name:   "high threat",
			err:    &models.SecurityError{Kind: models.KindThreatDetected, Class: models.ClassValidation},
			status: http.StatusBadRequest,
			code:   "invalid_input",
		},
		{"rate limit", models.NewRateLimitError(100, time.Minute, 30*time.Second), http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"locked", models.NewAccountLockedError(time.Now().Add(time.Minute), time.Minute), http.StatusLocked, "account_locked"},
		{"auth failed", models.NewAuthenticationFailedError(3, false), http.StatusUnauthorized, "unauthorized"},
		{"suspicious", models.NewSuspiciousActivityError(85), http.StatusForbidden, "request_blocked"},
		{"wrapped", fmt.Errorf("login: %w", models.NewSuspiciousActivityError(85)), http.StatusForbidden, "request_blocked"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"bad request", fmt.Errorf("decode: %w", models.ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{"unauthorized", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := pkghttp.StatusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestWriteSecurityError_DoesNotLeakDetails(t *testing.T) {
	err := &models.SecurityError{
		Kind:     models.KindThreatDetected,
		Class:    models.ClassAuthentication,
		Severity: models.SeverityCritical,
		Message:  "q: SQL UNION injection",
		Messages: []string{"q: SQL UNION injection"},
	}
	w := httptest.NewRecorder()

	pkghttp.WriteSecurityError(w, err)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "UNION")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "request_blocked", resp.Error)
	assert.Equal(t, "Request blocked for security reasons", resp.Message)
}

func TestWriteSecurityError_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteSecurityError(w, models.NewRateLimitError(10, time.Minute, 44500*time.Millisecond))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "45", w.Header().Get("Retry-After"))
}
