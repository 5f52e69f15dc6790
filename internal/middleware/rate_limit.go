package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// EdgeRateLimitConfig is the coarse per-IP limit applied in front of the
// login endpoint, ahead of the engine's own login limiter
type EdgeRateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultLoginEdgeLimit allows 30 login requests per minute per client IP
func DefaultLoginEdgeLimit() EdgeRateLimitConfig {
	return EdgeRateLimitConfig{Requests: 30, Window: time.Minute}
}

// RateLimitByIP limits requests per client IP, resolving the IP through the
// trusted proxy configuration
func RateLimitByIP(config EdgeRateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
}
