package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/BradenHooton/bastion/internal/models"
)

// Public messages for security rejections. Detector messages and matched
// patterns stay in server logs.
const (
	msgBlocked       = "Request blocked for security reasons"
	msgInvalidInput  = "Request contains invalid input"
	msgRateLimited   = "Too many requests. Please try again later."
	msgLocked        = "Account temporarily locked. Please try again later."
	msgAuthFailed    = "Authentication failed"
	msgInternalError = "Internal server error"
)

// StatusForError maps an error to the HTTP status, error code and public
// message used to report it
func StatusForError(err error) (int, string, string) {
	if se, ok := models.AsSecurityError(err); ok {
		switch se.Kind {
		case models.KindThreatDetected:
			if se.Class == models.ClassValidation {
				return http.StatusBadRequest, "invalid_input", msgInvalidInput
			}
			return http.StatusForbidden, "request_blocked", msgBlocked
		case models.KindRateLimitExceeded:
			return http.StatusTooManyRequests, "rate_limit_exceeded", msgRateLimited
		case models.KindAccountLocked:
			return http.StatusLocked, "account_locked", msgLocked
		case models.KindAuthenticationFailed:
			return http.StatusUnauthorized, "unauthorized", msgAuthFailed
		case models.KindSuspiciousActivity:
			return http.StatusForbidden, "request_blocked", msgBlocked
		}
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, models.ErrBadRequest):
		return http.StatusBadRequest, "bad_request", "Invalid request"
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", msgAuthFailed
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Forbidden"
	default:
		return http.StatusInternalServerError, "internal_error", msgInternalError
	}
}

// WriteSecurityError writes err as a JSON error response, setting
// Retry-After when the error carries a retry delay
func WriteSecurityError(w http.ResponseWriter, err error) {
	if se, ok := models.AsSecurityError(err); ok {
		if secs := se.RetryAfterSeconds(); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	status, code, message := StatusForError(err)
	WriteError(w, status, code, message)
}
