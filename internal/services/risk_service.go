package services

import (
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/benbjohnson/clock"
)

// Risk score weights
const (
	failedAttemptWeight = 15
	failedAttemptCap    = 60
	recentIPWeight      = 5
	recentIPCap         = 30
	recentIPWindow      = 60 * time.Second
	newDeviceWeight     = 20
	offHoursWeight      = 10

	offHoursStart = 22
	offHoursEnd   = 6
)

// RiskLevel is the band a score falls into
type RiskLevel string

const (
	RiskMinimal RiskLevel = "minimal"
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
)

// RiskAssessment is a scored login attempt with the contributing signals
type RiskAssessment struct {
	Score            int       `json:"score"`
	Level            RiskLevel `json:"level"`
	FailedAttempts   int       `json:"failed_attempts"`
	RecentIPAttempts int       `json:"recent_ip_attempts"`
	NewDevice        bool      `json:"new_device"`
	OffHours         bool      `json:"off_hours"`
}

// RiskService scores login attempts from the account state. It never
// mutates what it reads.
type RiskService struct {
	accounts   *repositories.AccountStateRepository
	thresholds config.RiskThresholds
	clock      clock.Clock
}

// NewRiskService creates a new RiskService
func NewRiskService(accounts *repositories.AccountStateRepository, thresholds config.RiskThresholds, clk clock.Clock) *RiskService {
	return &RiskService{
		accounts:   accounts,
		thresholds: thresholds,
		clock:      clk,
	}
}

// Score returns the 0-100 risk of a login by identity from clientIP/userAgent
func (s *RiskService) Score(identity, clientIP, userAgent string) int {
	return s.Assess(identity, clientIP, userAgent).Score
}

// Assess scores a login attempt and reports each signal
func (s *RiskService) Assess(identity, clientIP, userAgent string) RiskAssessment {
	now := s.clock.Now()
	a := RiskAssessment{NewDevice: true}

	s.accounts.View(identity, func(state *models.AccountSecurityState) {
		if !state.LockExpired(now) {
			a.FailedAttempts = state.FailedLoginAttempts
		}

		since := now.Add(-recentIPWindow)
		for _, attempt := range state.LoginAttemptHistory {
			if attempt.ClientIP == clientIP && attempt.UserAgent == userAgent {
				a.NewDevice = false
			}
			if attempt.ClientIP == clientIP && !attempt.Timestamp.Before(since) {
				a.RecentIPAttempts++
			}
		}
	})

	hour := now.Hour()
	a.OffHours = hour < offHoursEnd || hour >= offHoursStart

	score := min(a.FailedAttempts*failedAttemptWeight, failedAttemptCap)
	score += min(a.RecentIPAttempts*recentIPWeight, recentIPCap)
	if a.NewDevice {
		score += newDeviceWeight
	}
	if a.OffHours {
		score += offHoursWeight
	}

	a.Score = max(0, min(score, 100))
	a.Level = s.Level(a.Score)
	return a
}

// Level maps a score onto the configured thresholds
func (s *RiskService) Level(score int) RiskLevel {
	switch {
	case score >= s.thresholds.High:
		return RiskHigh
	case score >= s.thresholds.Medium:
		return RiskMedium
	case score >= s.thresholds.Low:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// Thresholds returns the configured bands
func (s *RiskService) Thresholds() config.RiskThresholds {
	return s.thresholds
}
