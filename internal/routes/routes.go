package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
)

// Dependencies are the handlers and middleware the routes are built from
type Dependencies struct {
	AuthHandler     *handlers.AuthHandler
	SecurityHandler *handlers.SecurityHandler
	TokenManager    *auth.TokenManager
	Guard           middleware.Enforcer
	Events          events.Sink
	Clock           clock.Clock
	IPConfig        *pkghttp.IPConfig
	LoginEdgeLimit  middleware.EdgeRateLimitConfig
	Metrics         http.Handler
	Health          http.HandlerFunc
	Logger          *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	guard := middleware.InputGuard(deps.Guard, deps.IPConfig, deps.Logger, "password")

	router.Get("/health", deps.Health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Public, guarded login
	router.With(
		middleware.RateLimitByIP(deps.LoginEdgeLimit, deps.IPConfig),
		guard,
	).Post("/auth/login", deps.AuthHandler.Login)

	// Operator endpoints. /security/scan exists to inspect hostile input
	// and is not behind the input guard.
	router.Route("/security", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(deps.TokenManager))

		require := func(p auth.Permission) func(http.Handler) http.Handler {
			return auth.RequirePermission(p, deps.Events, deps.Clock, deps.IPConfig)
		}

		r.With(require(auth.PermissionReadAccounts)).Get("/accounts/{identity}", deps.SecurityHandler.GetAccountStats)
		r.With(require(auth.PermissionReadAccounts)).Get("/accounts/{identity}/events", deps.SecurityHandler.ListAccountEvents)
		r.With(require(auth.PermissionReadAccounts)).Get("/events/summary", deps.SecurityHandler.EventSummary)
		r.With(require(auth.PermissionUnlockAccounts)).Post("/accounts/{identity}/unlock", deps.SecurityHandler.UnlockAccount)
		r.With(require(auth.PermissionScan)).Post("/scan", deps.SecurityHandler.Scan)
	})
}
