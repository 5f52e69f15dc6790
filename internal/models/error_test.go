package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityError_IsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("login rejected: %w", NewAccountLockedError(time.Now().Add(time.Minute), time.Minute))

	assert.True(t, errors.Is(err, ErrAccountLocked))
	assert.False(t, errors.Is(err, ErrRateLimitExceeded))

	se, ok := AsSecurityError(err)
	require.True(t, ok)
	assert.Equal(t, KindAccountLocked, se.Kind)
	assert.Equal(t, ClassAuthentication, se.Class)
}

func TestSecurityError_RetryAfterSecondsRoundsUp(t *testing.T) {
	err := NewRateLimitError(10, time.Minute, 1500*time.Millisecond)
	assert.Equal(t, 2, err.RetryAfterSeconds())

	err.RetryAfter = 0
	assert.Equal(t, 0, err.RetryAfterSeconds())
}

func TestNewAuthenticationFailedError_Message(t *testing.T) {
	assert.Contains(t, NewAuthenticationFailedError(3, false).Error(), "3 attempts remaining")
	assert.Contains(t, NewAuthenticationFailedError(0, true).Error(), "account now locked")
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	var s Severity
	require.NoError(t, s.UnmarshalText([]byte("critical")))
	assert.Equal(t, SeverityCritical, s)

	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", string(text))

	assert.Error(t, s.UnmarshalText([]byte("severe")))
}

func TestMaxSeverity(t *testing.T) {
	findings := []ThreatFinding{
		{Severity: SeverityLow},
		{Severity: SeverityHigh},
		{Severity: SeverityMedium},
	}
	assert.Equal(t, SeverityHigh, MaxSeverity(findings))
	assert.Equal(t, Severity(0), MaxSeverity(nil))
	assert.Len(t, FilterBySeverity(findings, SeverityMedium), 1)
}
