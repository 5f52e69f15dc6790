package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/security"
	"github.com/benbjohnson/clock"
)

// noon keeps the off-hours signal out of risk scores
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

type testEnv struct {
	clock    *clock.Mock
	events   *events.Recorder
	accounts *repositories.AccountStateRepository
	locks    *AccountLockService
	risk     *RiskService
	auth     *AuthSecurityService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, config.ProductionSecurityConfig().Auth)
}

func newTestEnvWithPolicy(t *testing.T, policy config.AuthPolicyConfig) *testEnv {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(noon)
	rec := &events.Recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	accounts := repositories.NewAccountStateRepository()

	locks := NewAccountLockService(accounts, policy, clk, rec, logger)
	risk := NewRiskService(accounts, policy.RiskThresholds, clk)

	var limiter *security.RateLimiter
	if policy.LoginRateLimit.Enabled {
		limiter = security.NewRateLimiter(repositories.NewRateLimitBucketRepository(), clk,
			policy.LoginRateLimit.MaxRequests, policy.LoginRateLimit.Window)
	}

	return &testEnv{
		clock:    clk,
		events:   rec,
		accounts: accounts,
		locks:    locks,
		risk:     risk,
		auth:     NewAuthSecurityService(locks, risk, limiter, clk, rec, logger),
	}
}
