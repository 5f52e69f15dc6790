package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/benbjohnson/clock"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// ClaimsContextKey is the key for storing token claims in context
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware validates bearer tokens and injects their claims into context
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects callers whose role lacks permission and records
// the attempt as PRIVILEGE_ESCALATION_ATTEMPT. It must run after AuthMiddleware.
func RequirePermission(permission Permission, sink events.Sink, clk clock.Clock, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	if sink == nil {
		sink = events.Discard
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			if !HasPermission(claims.Role, permission) {
				sink.Emit(models.SecurityEvent{
					Type:      models.EventPrivilegeEscalationAttempt,
					Identity:  claims.Identity,
					ClientIP:  pkghttp.ExtractClientIP(r, ipConfig),
					UserAgent: r.UserAgent(),
					RiskScore: 70,
					Timestamp: clk.Now(),
					Metadata: models.EventMetadata{
						"role":       claims.Role,
						"permission": string(permission),
						"path":       r.URL.Path,
						"method":     r.Method,
					},
				})
				pkghttp.WriteForbidden(w, "forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetClaimsFromContext extracts token claims from request context
func GetClaimsFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(ClaimsContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
