package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/security"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGuard(t *testing.T, verbatim ...string) (http.Handler, *events.Recorder, *map[string]any) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local))
	rec := &events.Recorder{}
	engine := security.NewPolicyEngine(config.ProductionSecurityConfig(), repositories.NewRateLimitBucketRepository(), clk, rec, testLogger())

	seen := map[string]any{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen["query"] = r.URL.Query().Get("q")
		if r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				seen["body"] = body
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return InputGuard(engine, nil, testLogger(), verbatim...)(next), rec, &seen
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.RemoteAddr = "1.2.3.4:1234"
	return req
}

func TestInputGuard_BlocksCriticalBody(t *testing.T) {
	handler, rec, _ := newGuard(t)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, jsonRequest(`{"identity":"x' UNION SELECT password FROM users--","password":"p"}`))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "UNION")
	require.Len(t, rec.OfType(models.EventSuspiciousActivity), 1)
	assert.Equal(t, "1.2.3.4", rec.Events()[0].ClientIP)
}

func TestInputGuard_BlocksHighQueryAsValidation(t *testing.T) {
	handler, _, _ := newGuard(t)
	req := httptest.NewRequest(http.MethodGet, "/security/accounts/x?q=../../etc/passwd", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInputGuard_SanitizesAllowedBody(t *testing.T) {
	handler, _, seen := newGuard(t)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, jsonRequest(`{"title":"<b>Tom & Jerry</b>","count":2}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := (*seen)["body"].(map[string]any)
	assert.Equal(t, "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;", body["title"])
	assert.Equal(t, float64(2), body["count"])
}

func TestInputGuard_VerbatimFieldsAreScannedNotRewritten(t *testing.T) {
	handler, _, seen := newGuard(t, "password")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, jsonRequest(`{"identity":"a & b","password":"Tom&Jerry<3"}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := (*seen)["body"].(map[string]any)
	assert.Equal(t, "Tom&Jerry<3", body["password"])
	assert.Equal(t, "a &amp; b", body["identity"])

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, jsonRequest(`{"identity":"a","password":"<script>x</script>"}`))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInputGuard_PassesCleanRequests(t *testing.T) {
	handler, rec, seen := newGuard(t)
	w := httptest.NewRecorder()
	req := jsonRequest(`{"identity":"alice@example.com","password":"SecureP@ss123"}`)
	req.URL.RawQuery = "q=hello"

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", (*seen)["query"])
	assert.Equal(t, "alice@example.com", (*seen)["body"].(map[string]any)["identity"])
	assert.Empty(t, rec.Events())
}

func TestInputGuard_RejectsMalformedJSON(t *testing.T) {
	handler, _, _ := newGuard(t)

	for _, body := range []string{`{"a":`, `[1,2]`, `null`} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, jsonRequest(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestInputGuard_RefusesNonJSONBodies(t *testing.T) {
	for _, contentType := range []string{"text/plain", "application/x-www-form-urlencoded", ""} {
		handler, _, _ := newGuard(t)
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"identity":"1 UNION SELECT password FROM users"}`))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code, contentType)
	}
}

func TestInputGuard_EmptyBodyNeedsNoContentType(t *testing.T) {
	handler, _, _ := newGuard(t)
	req := httptest.NewRequest(http.MethodPost, "/logout", bytes.NewBufferString("  "))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

type enforcerFunc func(ctx context.Context, fields map[string]any, clientIP, userAgent string) (map[string]any, error)

func (f enforcerFunc) Enforce(ctx context.Context, fields map[string]any, clientIP, userAgent string) (map[string]any, error) {
	return f(ctx, fields, clientIP, userAgent)
}

func TestInputGuard_RateLimitSetsRetryAfter(t *testing.T) {
	engine := enforcerFunc(func(context.Context, map[string]any, string, string) (map[string]any, error) {
		return nil, models.NewRateLimitError(100, time.Minute, 12*time.Second)
	})
	handler := InputGuard(engine, nil, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, jsonRequest(`{"a":"b"}`))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "12", w.Header().Get("Retry-After"))
}

func TestRateLimitByIP(t *testing.T) {
	handler := RateLimitByIP(EdgeRateLimitConfig{Requests: 2, Window: time.Minute}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "5.6.7.8:1000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "9.9.9.9:1000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own budget")
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders("production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := SecureLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/login?token=abc123&x=1", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/auth/login?[REDACTED]", entry["path"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(http.StatusUnauthorized), entry["status"])
	assert.NotContains(t, buf.String(), "abc123")
	assert.Equal(t, "remote_addr", entry["ip_source"])
	assert.NotContains(t, entry, "forwarding_headers_ignored")
}

func TestSecureLogger_FlagsUntrustedForwardingHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	handler := SecureLogger(logger, ipConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.10:5000"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "203.0.113.10", entry["client_ip"])
	assert.Equal(t, true, entry["forwarding_headers_ignored"])
}

func TestSecureLogger_TrustedProxyAttribution(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}
	handler := SecureLogger(logger, ipConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.5:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "203.0.113.42", entry["client_ip"])
	assert.Equal(t, "x_forwarded_for", entry["ip_source"])
}
