package models

import "time"

// SecurityEventType enumerates the events emitted to the security event log
type SecurityEventType string

const (
	EventLoginSuccess               SecurityEventType = "LOGIN_SUCCESS"
	EventLoginFailure               SecurityEventType = "LOGIN_FAILURE"
	EventAccountLocked              SecurityEventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked            SecurityEventType = "ACCOUNT_UNLOCKED"
	EventSuspiciousActivity         SecurityEventType = "SUSPICIOUS_ACTIVITY"
	EventPrivilegeEscalationAttempt SecurityEventType = "PRIVILEGE_ESCALATION_ATTEMPT"
)

// SecurityEventTypes lists every event type in declaration order
var SecurityEventTypes = []SecurityEventType{
	EventLoginSuccess,
	EventLoginFailure,
	EventAccountLocked,
	EventAccountUnlocked,
	EventSuspiciousActivity,
	EventPrivilegeEscalationAttempt,
}

// SecurityEvent is a write-once record handed to an event sink
type SecurityEvent struct {
	ID        string            `json:"id"`
	Type      SecurityEventType `json:"type"`
	Identity  string            `json:"identity,omitempty"`
	ClientIP  string            `json:"client_ip"`
	UserAgent string            `json:"user_agent"`
	RiskScore int               `json:"risk_score"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  EventMetadata     `json:"metadata,omitempty"`
}

// IsSuccess reports whether the event records a non-adverse outcome
func (e SecurityEvent) IsSuccess() bool {
	return e.Type == EventLoginSuccess || e.Type == EventAccountUnlocked
}

// EventMetadata holds free-form key/value context for an event
type EventMetadata map[string]any
