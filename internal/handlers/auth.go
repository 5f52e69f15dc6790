package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// failureInvalidCredentials is the failure reason recorded for a wrong
// password or an unknown identity; the two are not distinguished.
const failureInvalidCredentials = "invalid_credentials"

// LoginGuard is the authentication-risk surface the login flow runs through
type LoginGuard interface {
	PreLoginCheck(ctx context.Context, identity, clientIP, userAgent string) error
	OnLoginFailure(ctx context.Context, identity, clientIP, userAgent, reason string) error
	OnLoginSuccess(ctx context.Context, identity, clientIP, userAgent string)
}

// TokenIssuer issues access tokens for verified principals
type TokenIssuer interface {
	GenerateAccessToken(identity, role string) (string, time.Time, error)
}

// AuthHandler handles the guarded login endpoint
type AuthHandler struct {
	guard       LoginGuard
	credentials auth.CredentialVerifier
	tokens      TokenIssuer
	timing      *auth.TimingDelay
	ipConfig    *pkghttp.IPConfig
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. A nil timing disables response padding.
func NewAuthHandler(guard LoginGuard, credentials auth.CredentialVerifier, tokens TokenIssuer, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		guard:       guard,
		credentials: credentials,
		tokens:      tokens,
		timing:      timing,
		ipConfig:    ipConfig,
		logger:      logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Identity string `json:"identity" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse carries the access token issued on success
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !pkghttp.IsJSON(r) {
		pkghttp.WriteUnsupportedMediaType(w, "Request body must be application/json")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity := strings.ToLower(strings.TrimSpace(req.Identity))
	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.UserAgent()
	ctx := r.Context()

	if err := h.guard.PreLoginCheck(ctx, identity, clientIP, userAgent); err != nil {
		h.wait(start, false)
		pkghttp.WriteSecurityError(w, err)
		return
	}

	principal, err := h.credentials.Verify(ctx, identity, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			h.logger.Error("credential verification failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		failure := h.guard.OnLoginFailure(ctx, identity, clientIP, userAgent, failureInvalidCredentials)
		h.wait(start, false)
		pkghttp.WriteSecurityError(w, failure)
		return
	}

	h.guard.OnLoginSuccess(ctx, identity, clientIP, userAgent)

	token, expiresAt, err := h.tokens.GenerateAccessToken(principal.Identity, principal.Role)
	if err != nil {
		h.logger.Error("failed to issue access token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.wait(start, true)
	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

func (h *AuthHandler) wait(start time.Time, success bool) {
	if h.timing != nil {
		h.timing.WaitFrom(start, success)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
