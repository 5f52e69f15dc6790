package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/security"
	"github.com/benbjohnson/clock"
)

// Failure reasons recorded on LOGIN_FAILURE events raised by PreLoginCheck
const (
	ReasonAccountLocked     = "account_locked"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonSuspicious        = "high_risk_score"
)

// AuthSecurityService guards the login flow: lockout, per-IP login rate
// limiting and risk scoring before credentials are checked, and outcome
// bookkeeping after
type AuthSecurityService struct {
	locks   *AccountLockService
	risk    *RiskService
	limiter *security.RateLimiter
	sink    events.Sink
	clock   clock.Clock
	logger  *slog.Logger
}

// NewAuthSecurityService creates a new AuthSecurityService. limiter may be
// nil to disable login rate limiting.
func NewAuthSecurityService(locks *AccountLockService, risk *RiskService, limiter *security.RateLimiter, clk clock.Clock, sink events.Sink, logger *slog.Logger) *AuthSecurityService {
	if sink == nil {
		sink = events.Discard
	}
	return &AuthSecurityService{
		locks:   locks,
		risk:    risk,
		limiter: limiter,
		sink:    sink,
		clock:   clk,
		logger:  logger,
	}
}

// PreLoginCheck rejects a login attempt before credentials are verified.
// Checks run in order and the first failing one returns its error.
func (s *AuthSecurityService) PreLoginCheck(ctx context.Context, identity, clientIP, userAgent string) error {
	// 1. Lockout
	if status := s.locks.CheckLocked(ctx, identity); status.Locked {
		s.emitLoginFailure(identity, clientIP, userAgent, 0, ReasonAccountLocked, models.EventMetadata{
			"lockout_until": status.LockoutUntil.UTC().Format(time.RFC3339),
		})
		s.logger.WarnContext(ctx, "login blocked: account locked",
			slog.String("identity", identity),
			slog.String("client_ip", clientIP),
			slog.Duration("retry_after", status.RetryAfter),
		)
		return models.NewAccountLockedError(status.LockoutUntil, status.RetryAfter)
	}

	// 2. Per-IP login rate limit
	if s.limiter != nil {
		if rl := s.limiter.Check(clientIP); !rl.Allowed {
			s.emitLoginFailure(identity, clientIP, userAgent, 0, ReasonRateLimitExceeded, models.EventMetadata{
				"count": rl.Count,
				"limit": rl.Limit,
			})
			s.logger.WarnContext(ctx, "login blocked: rate limit exceeded",
				slog.String("client_ip", clientIP),
				slog.Int("count", rl.Count),
				slog.Int("limit", rl.Limit),
			)
			return rl.Err()
		}
	}

	// 3. Risk score
	assessment := s.risk.Assess(identity, clientIP, userAgent)
	thresholds := s.risk.Thresholds()

	if assessment.Score >= thresholds.High {
		s.sink.Emit(models.SecurityEvent{
			Type:      models.EventSuspiciousActivity,
			Identity:  identity,
			ClientIP:  clientIP,
			UserAgent: userAgent,
			RiskScore: assessment.Score,
			Timestamp: s.clock.Now(),
			Metadata:  riskMetadata(assessment, ReasonSuspicious),
		})
		s.logger.WarnContext(ctx, "login blocked: high risk score",
			slog.String("identity", identity),
			slog.String("client_ip", clientIP),
			slog.Int("risk_score", assessment.Score),
		)
		return models.NewSuspiciousActivityError(assessment.Score)
	}

	if assessment.Score >= thresholds.Low {
		s.logger.WarnContext(ctx, "elevated login risk",
			slog.String("identity", identity),
			slog.String("client_ip", clientIP),
			slog.Int("risk_score", assessment.Score),
			slog.String("risk_level", string(assessment.Level)),
		)
	}

	return nil
}

// OnLoginFailure records a failed credential check. It always returns an
// AuthenticationFailed error.
func (s *AuthSecurityService) OnLoginFailure(ctx context.Context, identity, clientIP, userAgent, reason string) error {
	result := s.locks.RecordFailure(ctx, identity, clientIP, userAgent, reason)
	score := s.risk.Score(identity, clientIP, userAgent)

	s.emitLoginFailure(identity, clientIP, userAgent, score, reason, models.EventMetadata{
		"failed_attempts":    result.FailedAttempts,
		"remaining_attempts": result.RemainingAttempts,
		"account_locked":     result.Locked,
	})
	s.logger.InfoContext(ctx, "login failed",
		slog.String("identity", identity),
		slog.String("client_ip", clientIP),
		slog.String("reason", reason),
		slog.Int("failed_attempts", result.FailedAttempts),
	)

	return models.NewAuthenticationFailedError(result.RemainingAttempts, result.Locked)
}

// OnLoginSuccess records a successful login. A login from an IP not seen
// among the recent successful logins raises a SUSPICIOUS_ACTIVITY event but
// never fails.
func (s *AuthSecurityService) OnLoginSuccess(ctx context.Context, identity, clientIP, userAgent string) {
	knownIPs := s.recentSuccessIPs(identity)
	assessment := s.risk.Assess(identity, clientIP, userAgent)

	s.locks.RecordSuccess(ctx, identity, clientIP, userAgent)
	now := s.clock.Now()

	s.sink.Emit(models.SecurityEvent{
		Type:      models.EventLoginSuccess,
		Identity:  identity,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		RiskScore: assessment.Score,
		Timestamp: now,
	})

	if len(knownIPs) > 0 && !slices.Contains(knownIPs, clientIP) {
		meta := riskMetadata(assessment, "new_login_ip")
		meta["known_ip_count"] = len(knownIPs)
		s.sink.Emit(models.SecurityEvent{
			Type:      models.EventSuspiciousActivity,
			Identity:  identity,
			ClientIP:  clientIP,
			UserAgent: userAgent,
			RiskScore: assessment.Score,
			Timestamp: now,
			Metadata:  meta,
		})
		s.logger.InfoContext(ctx, "login from new IP",
			slog.String("identity", identity),
			slog.String("client_ip", clientIP),
		)
	}
}

// GetSecurityStats summarises identity. An unknown identity yields zero stats.
func (s *AuthSecurityService) GetSecurityStats(identity string) models.SecurityStats {
	now := s.clock.Now()
	stats := models.SecurityStats{Identity: identity, State: models.LockStateUnlocked, RecentLoginIPs: []string{}}

	state, ok := s.locks.Snapshot(identity)
	if !ok {
		return stats
	}

	stats.LastFailedLogin = state.LastFailedLogin
	stats.LastSuccessfulLogin = state.LastSuccessfulLogin
	if !state.LockExpired(now) {
		stats.FailedLoginAttempts = state.FailedLoginAttempts
		stats.IsLocked = state.IsLocked
		stats.State = state.State()
		stats.LockoutUntil = state.LockoutUntil
	}
	stats.RecentLoginIPs = successIPs(state, now.Add(-s.locks.historyRetention))
	return stats
}

// UnlockAccount releases identity on behalf of actor
func (s *AuthSecurityService) UnlockAccount(ctx context.Context, identity, actor string) error {
	if !s.locks.Unlock(ctx, identity, actor) {
		return models.ErrNotFound
	}
	return nil
}

// Assess exposes the risk of a prospective login without recording anything
func (s *AuthSecurityService) Assess(identity, clientIP, userAgent string) RiskAssessment {
	return s.risk.Assess(identity, clientIP, userAgent)
}

func (s *AuthSecurityService) recentSuccessIPs(identity string) []string {
	state, ok := s.locks.Snapshot(identity)
	if !ok {
		return nil
	}
	return successIPs(state, s.clock.Now().Add(-s.locks.historyRetention))
}

func (s *AuthSecurityService) emitLoginFailure(identity, clientIP, userAgent string, score int, reason string, meta models.EventMetadata) {
	meta["reason"] = reason
	s.sink.Emit(models.SecurityEvent{
		Type:      models.EventLoginFailure,
		Identity:  identity,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		RiskScore: score,
		Timestamp: s.clock.Now(),
		Metadata:  meta,
	})
}

// successIPs lists distinct IPs of successful logins since cutoff, newest first
func successIPs(state models.AccountSecurityState, cutoff time.Time) []string {
	seen := make(map[string]bool)
	ips := []string{}
	for i := len(state.LoginAttemptHistory) - 1; i >= 0; i-- {
		a := state.LoginAttemptHistory[i]
		if !a.Success || a.Timestamp.Before(cutoff) {
			continue
		}
		if !seen[a.ClientIP] {
			seen[a.ClientIP] = true
			ips = append(ips, a.ClientIP)
		}
	}
	return ips
}

func riskMetadata(a RiskAssessment, reason string) models.EventMetadata {
	return models.EventMetadata{
		"reason":             reason,
		"risk_level":         string(a.Level),
		"failed_attempts":    a.FailedAttempts,
		"recent_ip_attempts": a.RecentIPAttempts,
		"new_device":         a.NewDevice,
		"off_hours":          a.OffHours,
	}
}
