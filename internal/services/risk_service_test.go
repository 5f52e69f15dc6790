package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestRiskService_UnknownIdentityIsNewDevice(t *testing.T) {
	env := newTestEnv(t)

	a := env.risk.Assess("alice", "1.1.1.1", "ua")

	assert.True(t, a.NewDevice)
	assert.False(t, a.OffHours)
	assert.Equal(t, 20, a.Score)
	assert.Equal(t, RiskMinimal, a.Level)
}

func TestRiskService_KnownDevice(t *testing.T) {
	env := newTestEnv(t)
	env.locks.RecordSuccess(context.Background(), "alice", "1.1.1.1", "ua")
	env.clock.Add(2 * time.Minute)

	a := env.risk.Assess("alice", "1.1.1.1", "ua")

	assert.False(t, a.NewDevice)
	assert.Equal(t, 0, a.Score)
}

func TestRiskService_FailedAttemptsAreCapped(t *testing.T) {
	policy := config.ProductionSecurityConfig().Auth
	policy.MaxFailedAttempts = 100
	env := newTestEnvWithPolicy(t, policy)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		env.locks.RecordFailure(ctx, "alice", "9.9.9.9", "other", "invalid_password")
	}
	env.clock.Add(2 * time.Minute)

	a := env.risk.Assess("alice", "1.1.1.1", "ua")

	assert.Equal(t, 10, a.FailedAttempts)
	assert.Equal(t, 60+20, a.Score)
	assert.Equal(t, RiskHigh, a.Level)
}

func TestRiskService_RecentAttemptsFromSameIP(t *testing.T) {
	policy := config.ProductionSecurityConfig().Auth
	policy.MaxFailedAttempts = 100
	env := newTestEnvWithPolicy(t, policy)
	ctx := context.Background()

	env.locks.RecordSuccess(ctx, "alice", "1.1.1.1", "ua")
	env.locks.RecordSuccess(ctx, "alice", "1.1.1.1", "ua")
	env.clock.Add(30 * time.Second)

	a := env.risk.Assess("alice", "1.1.1.1", "ua")
	assert.Equal(t, 2, a.RecentIPAttempts)
	assert.Equal(t, 10, a.Score)

	env.clock.Add(31 * time.Second)
	assert.Equal(t, 0, env.risk.Score("alice", "1.1.1.1", "ua"))
}

func TestRiskService_OffHours(t *testing.T) {
	env := newTestEnv(t)

	for _, hour := range []int{0, 3, 5, 22, 23} {
		env.clock.Set(time.Date(2026, 3, 11, hour, 30, 0, 0, time.Local))
		a := env.risk.Assess("alice", "1.1.1.1", "ua")
		assert.True(t, a.OffHours, "hour %d", hour)
		assert.Equal(t, 30, a.Score)
	}

	for _, hour := range []int{6, 12, 21} {
		env.clock.Set(time.Date(2026, 3, 12, hour, 30, 0, 0, time.Local))
		assert.False(t, env.risk.Assess("alice", "1.1.1.1", "ua").OffHours, "hour %d", hour)
	}
}

func TestRiskService_ScoreNeverExceeds100(t *testing.T) {
	policy := config.ProductionSecurityConfig().Auth
	policy.MaxFailedAttempts = 1000
	env := newTestEnvWithPolicy(t, policy)
	env.clock.Set(time.Date(2026, 3, 11, 2, 0, 0, 0, time.Local))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		env.locks.RecordFailure(ctx, "alice", "1.1.1.1", "ua", "invalid_password")
	}

	// 60 + 30 + 10 with a known device; a new user agent adds 20 more
	assert.Equal(t, 100, env.risk.Score("alice", "1.1.1.1", "ua"))
	assert.Equal(t, 100, env.risk.Score("alice", "1.1.1.1", "new-ua"))
}

func TestRiskService_MonotonicInSignals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.locks.RecordSuccess(ctx, "alice", "1.1.1.1", "ua")
	env.clock.Add(2 * time.Minute)

	known := env.risk.Score("alice", "1.1.1.1", "ua")
	novel := env.risk.Score("alice", "1.1.1.1", "new-ua")
	assert.GreaterOrEqual(t, novel, known)

	env.locks.RecordFailure(ctx, "alice", "1.1.1.1", "ua", "invalid_password")
	assert.GreaterOrEqual(t, env.risk.Score("alice", "1.1.1.1", "new-ua"), novel)
}

func TestRiskService_ExpiredLockDoesNotCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.locks.RecordFailure(ctx, "alice", "1.1.1.1", "ua", "invalid_password")
	}
	env.clock.Add(time.Hour)

	a := env.risk.Assess("alice", "1.1.1.1", "ua")
	assert.Equal(t, 0, a.FailedAttempts)
}

func TestRiskService_Level(t *testing.T) {
	r := NewRiskService(nil, config.RiskThresholds{Low: 30, Medium: 60, High: 80}, clock.NewMock())

	assert.Equal(t, RiskMinimal, r.Level(29))
	assert.Equal(t, RiskLow, r.Level(30))
	assert.Equal(t, RiskMedium, r.Level(60))
	assert.Equal(t, RiskHigh, r.Level(80))
	assert.Equal(t, RiskHigh, r.Level(100))
}
