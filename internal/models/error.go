package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Security decision errors, matched with errors.Is on a *SecurityError
	ErrThreatDetected       = errors.New("threat detected")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrAccountLocked        = errors.New("account is temporarily locked")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrSuspiciousActivity   = errors.New("suspicious activity detected")
)

// ErrorKind tags the variant of a SecurityError
type ErrorKind string

const (
	KindThreatDetected       ErrorKind = "THREAT_DETECTED"
	KindRateLimitExceeded    ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindAccountLocked        ErrorKind = "ACCOUNT_LOCKED"
	KindAuthenticationFailed ErrorKind = "AUTHENTICATION_FAILED"
	KindSuspiciousActivity   ErrorKind = "SUSPICIOUS_ACTIVITY"
)

// ErrorClass separates client-correctable validation failures from security rejections
type ErrorClass string

const (
	ClassAuthentication ErrorClass = "authentication"
	ClassValidation     ErrorClass = "validation"
)

var kindSentinels = map[ErrorKind]error{
	KindThreatDetected:       ErrThreatDetected,
	KindRateLimitExceeded:    ErrRateLimitExceeded,
	KindAccountLocked:        ErrAccountLocked,
	KindAuthenticationFailed: ErrAuthenticationFailed,
	KindSuspiciousActivity:   ErrSuspiciousActivity,
}

// SecurityError is the single error type raised by the engine. Only the
// fields relevant to Kind are populated.
type SecurityError struct {
	Kind     ErrorKind
	Class    ErrorClass
	Severity Severity
	// Message is a server-side summary; it may name detector messages and
	// must not be shown to clients verbatim.
	Message string

	// ThreatDetected
	Messages     []string
	HighMessages []string
	Fields       []string
	Categories   []ThreatType

	// RateLimitExceeded
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration

	// AccountLocked
	LockoutUntil time.Time

	// AuthenticationFailed
	RemainingAttempts int
	AccountLocked     bool

	// SuspiciousActivity
	RiskScore int
}

func (e *SecurityError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", strings.ToLower(string(e.Kind)), e.Message)
	}
	return strings.ToLower(string(e.Kind))
}

// Unwrap exposes the kind sentinel so errors.Is(err, ErrAccountLocked) works
func (e *SecurityError) Unwrap() error {
	return kindSentinels[e.Kind]
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds
func (e *SecurityError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

// AsSecurityError extracts a *SecurityError from an error chain
func AsSecurityError(err error) (*SecurityError, bool) {
	var se *SecurityError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// NewRateLimitError builds a RateLimitExceeded error
func NewRateLimitError(limit int, window, retryAfter time.Duration) *SecurityError {
	return &SecurityError{
		Kind:       KindRateLimitExceeded,
		Class:      ClassAuthentication,
		Severity:   SeverityHigh,
		Message:    fmt.Sprintf("more than %d requests in %s", limit, window),
		Limit:      limit,
		Window:     window,
		RetryAfter: retryAfter,
	}
}

// NewAccountLockedError builds an AccountLocked error
func NewAccountLockedError(lockoutUntil time.Time, retryAfter time.Duration) *SecurityError {
	return &SecurityError{
		Kind:         KindAccountLocked,
		Class:        ClassAuthentication,
		Severity:     SeverityHigh,
		Message:      fmt.Sprintf("locked until %s", lockoutUntil.UTC().Format(time.RFC3339)),
		LockoutUntil: lockoutUntil,
		RetryAfter:   retryAfter,
	}
}

// NewAuthenticationFailedError builds an AuthenticationFailed error
func NewAuthenticationFailedError(remaining int, locked bool) *SecurityError {
	msg := fmt.Sprintf("%d attempts remaining", remaining)
	if locked {
		msg = "account now locked"
	}
	return &SecurityError{
		Kind:              KindAuthenticationFailed,
		Class:             ClassAuthentication,
		Severity:          SeverityMedium,
		Message:           msg,
		RemainingAttempts: remaining,
		AccountLocked:     locked,
	}
}

// NewSuspiciousActivityError builds a SuspiciousActivity error
func NewSuspiciousActivityError(score int) *SecurityError {
	return &SecurityError{
		Kind:      KindSuspiciousActivity,
		Class:     ClassAuthentication,
		Severity:  SeverityHigh,
		Message:   fmt.Sprintf("risk score %d", score),
		RiskScore: score,
	}
}
