package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/security"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
)

// AccountSecurity exposes per-identity security state to operators
type AccountSecurity interface {
	GetSecurityStats(identity string) models.SecurityStats
	UnlockAccount(ctx context.Context, identity, actor string) error
}

// Scanner runs the detector and the decision rule without enforcing them
type Scanner interface {
	Validate(fields map[string]any, clientIP string) []models.ThreatFinding
	Decide(fields map[string]any, findings []models.ThreatFinding) security.Decision
}

// EventHistory reads back persisted security events
type EventHistory interface {
	ListByIdentity(ctx context.Context, identity string, limit int) ([]*models.SecurityEvent, error)
	CountByType(ctx context.Context, eventType models.SecurityEventType, since time.Time) (int, error)
}

// SecurityHandler serves the operator endpoints under /security
type SecurityHandler struct {
	accounts AccountSecurity
	scanner  Scanner
	history  EventHistory
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(accounts AccountSecurity, scanner Scanner, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{accounts: accounts, scanner: scanner, clock: clock.New(), logger: logger}
}

// WithEventHistory enables the event history endpoints. Without it they
// answer 404.
func (h *SecurityHandler) WithEventHistory(history EventHistory, clk clock.Clock) *SecurityHandler {
	h.history = history
	if clk != nil {
		h.clock = clk
	}
	return h
}

const (
	defaultEventLimit    = 50
	maxEventLimit        = 500
	defaultSummaryWindow = 24 * time.Hour
	maxSummaryWindow     = 30 * 24 * time.Hour
)

// EventSummaryResponse counts persisted events per type over a window
type EventSummaryResponse struct {
	Since  time.Time                        `json:"since"`
	Counts map[models.SecurityEventType]int `json:"counts"`
}

// ScanRequest is the body of POST /security/scan
type ScanRequest struct {
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

// ScanResponse reports what the policy engine would do with the fields
type ScanResponse struct {
	Action      security.Action        `json:"action"`
	MaxSeverity string                 `json:"max_severity,omitempty"`
	Findings    []models.ThreatFinding `json:"findings"`
	Messages    []string               `json:"messages,omitempty"`
	ErrorKind   models.ErrorKind       `json:"error_kind,omitempty"`
}

// UnlockResponse confirms a manual unlock
type UnlockResponse struct {
	Identity string `json:"identity"`
	Unlocked bool   `json:"unlocked"`
}

// GetAccountStats handles GET /security/accounts/{identity}
func (h *SecurityHandler) GetAccountStats(w http.ResponseWriter, r *http.Request) {
	identity := identityParam(r)
	if identity == "" {
		pkghttp.WriteBadRequest(w, "identity is required")
		return
	}
	writeJSON(w, http.StatusOK, h.accounts.GetSecurityStats(identity))
}

// UnlockAccount handles POST /security/accounts/{identity}/unlock
func (h *SecurityHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}
	identity := identityParam(r)
	if identity == "" {
		pkghttp.WriteBadRequest(w, "identity is required")
		return
	}

	if err := h.accounts.UnlockAccount(r.Context(), identity, claims.Identity); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No security state for identity")
			return
		}
		h.logger.Error("failed to unlock account", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UnlockResponse{Identity: identity, Unlocked: true})
}

// ListAccountEvents handles GET /security/accounts/{identity}/events
func (h *SecurityHandler) ListAccountEvents(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		pkghttp.WriteNotFound(w, "Event history is not enabled")
		return
	}
	identity := identityParam(r)
	if identity == "" {
		pkghttp.WriteBadRequest(w, "identity is required")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			pkghttp.WriteBadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	list, err := h.history.ListByIdentity(r.Context(), identity, limit)
	if err != nil {
		h.logger.Error("failed to list security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if list == nil {
		list = []*models.SecurityEvent{}
	}

	writeJSON(w, http.StatusOK, list)
}

// EventSummary handles GET /security/events/summary?window=24h
func (h *SecurityHandler) EventSummary(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		pkghttp.WriteNotFound(w, "Event history is not enabled")
		return
	}

	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxSummaryWindow {
			pkghttp.WriteBadRequest(w, "window must be a positive duration of at most 720h")
			return
		}
		window = d
	}

	resp := EventSummaryResponse{
		Since:  h.clock.Now().Add(-window),
		Counts: make(map[models.SecurityEventType]int, len(models.SecurityEventTypes)),
	}
	for _, t := range models.SecurityEventTypes {
		n, err := h.history.CountByType(r.Context(), t, resp.Since)
		if err != nil {
			h.logger.Error("failed to count security events", slog.Any("error", err), slog.String("event_type", string(t)))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		resp.Counts[t] = n
	}

	writeJSON(w, http.StatusOK, resp)
}

// Scan handles POST /security/scan. Findings are returned with their
// matched patterns; the route is restricted to callers with the scan permission.
func (h *SecurityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	if !pkghttp.IsJSON(r) {
		pkghttp.WriteUnsupportedMediaType(w, "Request body must be application/json")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	findings := h.scanner.Validate(req.Fields, "")
	decision := h.scanner.Decide(req.Fields, findings)

	resp := ScanResponse{
		Action:   decision.Action,
		Findings: findings,
		Messages: decision.ErrorMessages,
	}
	if resp.Findings == nil {
		resp.Findings = []models.ThreatFinding{}
	}
	if len(findings) > 0 {
		resp.MaxSeverity = models.MaxSeverity(findings).String()
	}
	if se, ok := models.AsSecurityError(decision.Err); ok {
		resp.ErrorKind = se.Kind
	}

	writeJSON(w, http.StatusOK, resp)
}

func identityParam(r *http.Request) string {
	return strings.ToLower(strings.TrimSpace(chi.URLParam(r, "identity")))
}
