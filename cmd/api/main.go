package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/metrics"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/security"
	"github.com/BradenHooton/bastion/internal/services"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	clk := clock.New()
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	collector := metrics.New()

	// In-memory security state
	accounts := repositories.NewAccountStateRepository()
	requestBuckets := repositories.NewRateLimitBucketRepository()
	loginBuckets := repositories.NewRateLimitBucketRepository()

	// Event pipeline: log, metrics and storage share one async queue, alerts get their own
	sinks := events.Multi{
		events.NewLogSink(pkglogger.NewSecurityLogger(logger, cfg.Server.Env)),
		collector,
	}

	var (
		db        *database.DB
		eventRepo *repositories.SecurityEventRepository
	)
	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = database.Connect(ctx, &cfg.Database, logger)
		cancel()
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		eventRepo = repositories.NewSecurityEventRepository(db)
		sinks = append(sinks, events.NewRepositorySink(eventRepo, 5*time.Second, logger))
	}

	var alertQueue *events.Async
	if cfg.Alerts.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		alerts, err := services.NewSESAlertService(ctx, cfg.Alerts.AWSRegion, cfg.Alerts.FromAddress, cfg.Alerts.Recipients, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize alert service", slog.Any("error", err))
			os.Exit(1)
		}
		alertSink := events.NewAlertSink(alerts, cfg.Security.Auth.RiskThresholds.High, logger)
		alertQueue = events.NewAsync(alertSink, events.DefaultBufferSize, logger)
		sinks = append(sinks, events.Filter(alertQueue, alertSink.ShouldAlert))
	}

	eventQueue := events.NewAsync(sinks, events.DefaultBufferSize, logger)
	sink := events.Stamp(eventQueue, clk)

	// Security engine
	policy := security.NewPolicyEngine(cfg.Security, requestBuckets, clk, sink, logger)
	policy.ObserveFindings(collector.ObserveFindings)

	authPolicy := cfg.Security.Auth
	locks := services.NewAccountLockService(accounts, authPolicy, clk, sink, logger)
	risk := services.NewRiskService(accounts, authPolicy.RiskThresholds, clk)
	var loginLimiter *security.RateLimiter
	if authPolicy.LoginRateLimit.Enabled {
		loginLimiter = security.NewRateLimiter(loginBuckets, clk, authPolicy.LoginRateLimit.MaxRequests, authPolicy.LoginRateLimit.Window)
	}
	authSecurity := services.NewAuthSecurityService(locks, risk, loginLimiter, clk, sink, logger)

	// Credentials and tokens
	credentials, err := auth.NewCredentialStore(pkgauth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize credential store", slog.Any("error", err))
		os.Exit(1)
	}
	if err := ensureAdmin(credentials, cfg.Auth, logger); err != nil {
		logger.Error("failed to bootstrap admin credentials", slog.Any("error", err))
		os.Exit(1)
	}
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, clk)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:      cfg.Auth.TimingBaseDelay,
		RandomDelay:    cfg.Auth.TimingRandomDelay,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	// Handlers
	authHandler := handlers.NewAuthHandler(authSecurity, credentials, tokenManager, timingDelay, ipConfig, logger)
	securityHandler := handlers.NewSecurityHandler(authSecurity, policy, logger)
	if eventRepo != nil {
		securityHandler.WithEventHistory(eventRepo, clk)
	}

	// Cleanup of stale in-memory state
	bucketStores := []background.BucketStore{
		{Name: "request_buckets", Buckets: requestBuckets, TTL: 2 * cfg.Security.RateLimit.Window},
		{Name: "login_buckets", Buckets: loginBuckets, TTL: 2 * authPolicy.LoginRateLimit.Window},
	}
	var purger background.EventPurger
	if eventRepo != nil {
		purger = eventRepo
	}
	cleanupManager := background.NewCleanupManager(accounts, bucketStores, purger, collector, background.CleanupConfig{
		Interval:       cfg.Cleanup.Interval,
		AccountIdleTTL: authPolicy.HistoryRetention,
		EventRetention: cfg.Cleanup.EventRetention,
	}, clk, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(cfg.Server.Env))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:     authHandler,
		SecurityHandler: securityHandler,
		TokenManager:    tokenManager,
		Guard:           policy,
		Events:          sink,
		Clock:           clk,
		IPConfig:        ipConfig,
		LoginEdgeLimit:  middlewareCustom.DefaultLoginEdgeLimit(),
		Metrics:         collector.Handler(),
		Health:          healthHandler(db, eventQueue),
		Logger:          logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Flush queued security events after the last request has finished
	if err := eventQueue.Close(shutdownCtx); err != nil {
		logger.Error("security events not fully flushed", slog.Any("error", err), slog.Int64("dropped", eventQueue.Dropped()))
	}
	if alertQueue != nil {
		if err := alertQueue.Close(shutdownCtx); err != nil {
			logger.Error("security alerts not fully sent", slog.Any("error", err), slog.Int64("dropped", alertQueue.Dropped()))
		}
	}

	logger.Info("server stopped gracefully")
}

// ensureAdmin registers the bootstrap admin if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdmin(store *auth.CredentialStore, cfg config.AuthConfig, logger *slog.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, operator endpoints are unreachable")
		return nil
	}

	if err := pkgauth.ValidatePassword(cfg.AdminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}
	if err := store.Add(cfg.AdminEmail, cfg.AdminPassword, auth.RoleAdmin); err != nil {
		return fmt.Errorf("failed to add admin credentials: %w", err)
	}

	logger.Info("admin credentials registered", slog.String("identity", pkglogger.SanitizedEmail(cfg.AdminEmail)))
	return nil
}

func healthHandler(db *database.DB, queue *events.Async) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unhealthy","database_enabled":true,"dropped_events":%d}`, queue.Dropped())
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","database_enabled":%t,"dropped_events":%d}`, db != nil, queue.Dropped())
	}
}
