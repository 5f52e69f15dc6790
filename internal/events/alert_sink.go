package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// Alerter notifies operators of a security event
type Alerter interface {
	SendSecurityAlert(ctx context.Context, event models.SecurityEvent) error
}

// AlertSink forwards lockouts, privilege escalation attempts and high-risk
// suspicious activity to an Alerter
type AlertSink struct {
	alerter      Alerter
	minRiskScore int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewAlertSink alerts on SUSPICIOUS_ACTIVITY events scoring at least minRiskScore
func NewAlertSink(alerter Alerter, minRiskScore int, logger *slog.Logger) *AlertSink {
	return &AlertSink{
		alerter:      alerter,
		minRiskScore: minRiskScore,
		timeout:      10 * time.Second,
		logger:       logger,
	}
}

// ShouldAlert reports whether event warrants an operator alert
func (s *AlertSink) ShouldAlert(event models.SecurityEvent) bool {
	switch event.Type {
	case models.EventAccountLocked, models.EventPrivilegeEscalationAttempt:
		return true
	case models.EventSuspiciousActivity:
		return event.RiskScore >= s.minRiskScore
	default:
		return false
	}
}

// Emit sends an alert for qualifying events
func (s *AlertSink) Emit(event models.SecurityEvent) {
	if !s.ShouldAlert(event) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.alerter.SendSecurityAlert(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to send security alert",
			slog.String("event_type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}
