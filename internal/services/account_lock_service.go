package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/benbjohnson/clock"
)

// maxHistoryEntries bounds the attempt history kept per identity
const maxHistoryEntries = 500

// FailureResult describes the account after a recorded failure
type FailureResult struct {
	FailedAttempts    int
	RemainingAttempts int
	Locked            bool
	LockoutUntil      time.Time
}

// LockStatus is the outcome of CheckLocked
type LockStatus struct {
	Locked       bool
	LockoutUntil time.Time
	RetryAfter   time.Duration
	// Expired is set when this call released an expired lock
	Expired bool
}

// AccountLockService runs the per-identity lockout state machine.
// Expired locks are released lazily by the next call that observes them.
type AccountLockService struct {
	accounts          *repositories.AccountStateRepository
	maxFailedAttempts int
	lockoutDuration   time.Duration
	historyRetention  time.Duration
	sink              events.Sink
	clock             clock.Clock
	logger            *slog.Logger
}

// NewAccountLockService creates a new AccountLockService
func NewAccountLockService(accounts *repositories.AccountStateRepository, policy config.AuthPolicyConfig, clk clock.Clock, sink events.Sink, logger *slog.Logger) *AccountLockService {
	if sink == nil {
		sink = events.Discard
	}
	return &AccountLockService{
		accounts:          accounts,
		maxFailedAttempts: policy.MaxFailedAttempts,
		lockoutDuration:   policy.LockoutDuration,
		historyRetention:  policy.HistoryRetention,
		sink:              sink,
		clock:             clk,
		logger:            logger,
	}
}

// RecordFailure counts a failed login and locks the account once the
// threshold is reached
func (s *AccountLockService) RecordFailure(ctx context.Context, identity, clientIP, userAgent, reason string) FailureResult {
	now := s.clock.Now()
	var (
		result   FailureResult
		released bool
	)

	s.accounts.Update(identity, func(state *models.AccountSecurityState) {
		if state.LockExpired(now) {
			s.release(state)
			released = true
		}

		state.FailedLoginAttempts++
		state.LastFailedLogin = &now
		appendAttempt(state, models.LoginAttempt{
			ClientIP:      clientIP,
			UserAgent:     userAgent,
			Success:       false,
			Timestamp:     now,
			FailureReason: reason,
		})

		result.FailedAttempts = state.FailedLoginAttempts
		if state.IsLocked {
			result.Locked = true
			result.LockoutUntil = *state.LockoutUntil
			return
		}

		if state.FailedLoginAttempts >= s.maxFailedAttempts {
			until := now.Add(s.lockoutDuration)
			state.IsLocked = true
			state.LockoutUntil = &until
			result.Locked = true
			result.LockoutUntil = until
			return
		}

		result.RemainingAttempts = s.maxFailedAttempts - state.FailedLoginAttempts
	})

	if released {
		s.emitUnlocked(ctx, identity, "lockout_expired", "")
	}

	if result.Locked && result.FailedAttempts == s.maxFailedAttempts {
		s.logger.WarnContext(ctx, "account locked",
			slog.String("identity", identity),
			slog.String("client_ip", clientIP),
			slog.Int("failed_attempts", result.FailedAttempts),
			slog.Time("lockout_until", result.LockoutUntil),
		)
		s.sink.Emit(models.SecurityEvent{
			Type:      models.EventAccountLocked,
			Identity:  identity,
			ClientIP:  clientIP,
			UserAgent: userAgent,
			RiskScore: 100,
			Timestamp: now,
			Metadata: models.EventMetadata{
				"failed_attempts":  result.FailedAttempts,
				"lockout_until":    result.LockoutUntil.UTC().Format(time.RFC3339),
				"lockout_duration": s.lockoutDuration.String(),
			},
		})
	}

	return result
}

// RecordSuccess clears failures and any lock, and prunes old history
func (s *AccountLockService) RecordSuccess(ctx context.Context, identity, clientIP, userAgent string) {
	now := s.clock.Now()
	cutoff := now.Add(-s.historyRetention)

	s.accounts.Update(identity, func(state *models.AccountSecurityState) {
		s.release(state)
		state.LastSuccessfulLogin = &now
		appendAttempt(state, models.LoginAttempt{
			ClientIP:  clientIP,
			UserAgent: userAgent,
			Success:   true,
			Timestamp: now,
		})
		pruneHistory(state, cutoff)
	})
}

// CheckLocked reports whether identity is locked now, releasing an expired
// lock as a side effect
func (s *AccountLockService) CheckLocked(ctx context.Context, identity string) LockStatus {
	now := s.clock.Now()

	var status LockStatus
	known := s.accounts.View(identity, func(state *models.AccountSecurityState) {
		status.Locked = state.IsLocked
	})
	if !known || !status.Locked {
		return LockStatus{}
	}

	status = LockStatus{}
	s.accounts.Update(identity, func(state *models.AccountSecurityState) {
		switch {
		case state.LockExpired(now):
			s.release(state)
			status.Expired = true
		case state.IsLocked:
			status.Locked = true
			status.LockoutUntil = *state.LockoutUntil
			status.RetryAfter = state.LockoutUntil.Sub(now)
		}
	})

	if status.Expired {
		s.emitUnlocked(ctx, identity, "lockout_expired", "")
	}
	return status
}

// Unlock releases identity regardless of expiry. It reports false when the
// identity has never been seen.
func (s *AccountLockService) Unlock(ctx context.Context, identity, actor string) bool {
	var wasLocked bool
	known := s.accounts.View(identity, func(*models.AccountSecurityState) {})
	if !known {
		return false
	}

	s.accounts.Update(identity, func(state *models.AccountSecurityState) {
		wasLocked = state.IsLocked
		s.release(state)
	})

	s.logger.InfoContext(ctx, "account unlocked manually",
		slog.String("identity", identity),
		slog.String("actor", actor),
		slog.Bool("was_locked", wasLocked),
	)
	s.emitUnlocked(ctx, identity, "manual", actor)
	return true
}

// Snapshot returns a copy of the state of identity
func (s *AccountLockService) Snapshot(identity string) (models.AccountSecurityState, bool) {
	return s.accounts.Get(identity)
}

// release moves state to UNLOCKED with no pending failures
func (s *AccountLockService) release(state *models.AccountSecurityState) {
	state.IsLocked = false
	state.LockoutUntil = nil
	state.FailedLoginAttempts = 0
}

func (s *AccountLockService) emitUnlocked(ctx context.Context, identity, reason, actor string) {
	meta := models.EventMetadata{"reason": reason}
	if actor != "" {
		meta["actor"] = actor
	}
	s.logger.InfoContext(ctx, "account lock released",
		slog.String("identity", identity),
		slog.String("reason", reason),
	)
	s.sink.Emit(models.SecurityEvent{
		Type:      models.EventAccountUnlocked,
		Identity:  identity,
		Timestamp: s.clock.Now(),
		Metadata:  meta,
	})
}

func appendAttempt(state *models.AccountSecurityState, attempt models.LoginAttempt) {
	state.LoginAttemptHistory = append(state.LoginAttemptHistory, attempt)
	if n := len(state.LoginAttemptHistory); n > maxHistoryEntries {
		trimmed := make([]models.LoginAttempt, maxHistoryEntries)
		copy(trimmed, state.LoginAttemptHistory[n-maxHistoryEntries:])
		state.LoginAttemptHistory = trimmed
	}
}

// pruneHistory drops attempts older than cutoff; history is in time order
func pruneHistory(state *models.AccountSecurityState, cutoff time.Time) {
	i := 0
	for i < len(state.LoginAttemptHistory) && state.LoginAttemptHistory[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		state.LoginAttemptHistory = append([]models.LoginAttempt(nil), state.LoginAttemptHistory[i:]...)
	}
}
