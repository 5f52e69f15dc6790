package models

import "time"

// LoginAttempt represents a single login attempt recorded against an identity
type LoginAttempt struct {
	ClientIP      string    `json:"client_ip"`
	UserAgent     string    `json:"user_agent"`
	Success       bool      `json:"success"`
	Timestamp     time.Time `json:"timestamp"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// LockState is the lockout state machine position of an identity
type LockState string

const (
	LockStateUnlocked LockState = "UNLOCKED"
	LockStateLocked   LockState = "LOCKED"
)

// AccountSecurityState is the per-identity record owned by the account store
type AccountSecurityState struct {
	Identity            string
	FailedLoginAttempts int
	IsLocked            bool
	LockoutUntil        *time.Time
	LastSuccessfulLogin *time.Time
	LastFailedLogin     *time.Time
	LoginAttemptHistory []LoginAttempt
}

// State returns the lockout state
func (s *AccountSecurityState) State() LockState {
	if s.IsLocked {
		return LockStateLocked
	}
	return LockStateUnlocked
}

// LockExpired reports whether a lock is present but its expiry has passed
func (s *AccountSecurityState) LockExpired(now time.Time) bool {
	return s.IsLocked && (s.LockoutUntil == nil || !now.Before(*s.LockoutUntil))
}

// LastActivity returns the most recent attempt time, or the zero time
func (s *AccountSecurityState) LastActivity() time.Time {
	if n := len(s.LoginAttemptHistory); n > 0 {
		return s.LoginAttemptHistory[n-1].Timestamp
	}
	return time.Time{}
}

// Clone returns a deep copy safe to hand out of the store
func (s *AccountSecurityState) Clone() AccountSecurityState {
	c := *s
	c.LockoutUntil = cloneTime(s.LockoutUntil)
	c.LastSuccessfulLogin = cloneTime(s.LastSuccessfulLogin)
	c.LastFailedLogin = cloneTime(s.LastFailedLogin)
	c.LoginAttemptHistory = append([]LoginAttempt(nil), s.LoginAttemptHistory...)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SecurityStats is the externally exposed summary of an identity
type SecurityStats struct {
	Identity            string     `json:"identity"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	IsLocked            bool       `json:"is_locked"`
	State               LockState  `json:"state"`
	LockoutUntil        *time.Time `json:"lockout_until,omitempty"`
	LastFailedLogin     *time.Time `json:"last_failed_login,omitempty"`
	LastSuccessfulLogin *time.Time `json:"last_successful_login,omitempty"`
	RecentLoginIPs      []string   `json:"recent_login_ips"`
}

// RateLimitBucket is the fixed-window counter for one key
type RateLimitBucket struct {
	Key         string
	WindowStart time.Time
	Count       int
}
