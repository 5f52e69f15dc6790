package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/benbjohnson/clock"
)

// EventPurger deletes persisted security events older than a cutoff
type EventPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StoreMetrics receives store sizes and sweep counts
type StoreMetrics interface {
	SetTracked(store string, n int)
	AddSwept(store string, n int)
}

// BucketStore is a named rate limit bucket repository with its TTL
type BucketStore struct {
	Name    string
	Buckets *repositories.RateLimitBucketRepository
	// TTL is how long after its window start a bucket may be dropped; it
	// must be at least the limiter window
	TTL time.Duration
}

// CleanupConfig controls what the sweeper removes
type CleanupConfig struct {
	Interval       time.Duration
	AccountIdleTTL time.Duration
	EventRetention time.Duration
}

// CleanupManager periodically evicts idle account state and expired rate
// limit buckets from memory and purges old persisted events
type CleanupManager struct {
	accounts *repositories.AccountStateRepository
	buckets  []BucketStore
	events   EventPurger
	metrics  StoreMetrics
	config   CleanupConfig
	clock    clock.Clock
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. events and metrics may be nil.
func NewCleanupManager(
	accounts *repositories.AccountStateRepository,
	buckets []BucketStore,
	events EventPurger,
	metrics StoreMetrics,
	cfg CleanupConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *CleanupManager {
	return &CleanupManager{
		accounts: accounts,
		buckets:  buckets,
		events:   events,
		metrics:  metrics,
		config:   cfg,
		clock:    clk,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep immediately and then on every interval until ctx is
// cancelled or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := cm.clock.Ticker(cm.config.Interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	now := cm.clock.Now()

	idle := cm.accounts.DeleteIdle(now.Add(-cm.config.AccountIdleTTL))
	cm.report("accounts", idle, cm.accounts.Count())

	for _, b := range cm.buckets {
		expired := b.Buckets.DeleteExpired(now.Add(-b.TTL))
		cm.report(b.Name, expired, b.Buckets.Count())
	}

	if cm.events == nil || cm.config.EventRetention <= 0 {
		return
	}

	purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.events.DeleteOlderThan(purgeCtx, now.Add(-cm.config.EventRetention))
	if err != nil {
		cm.logger.Error("failed to purge security events", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("security event purge completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

func (cm *CleanupManager) report(store string, swept, remaining int) {
	if swept > 0 {
		cm.logger.Info("swept stale records",
			slog.String("store", store),
			slog.Int("removed", swept),
			slog.Int("remaining", remaining))
	}
	if cm.metrics != nil {
		cm.metrics.AddSwept(store, swept)
		cm.metrics.SetTracked(store, remaining)
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
