package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Emit(t *testing.T) {
	c := New()

	c.Emit(models.SecurityEvent{Type: models.EventAccountLocked, RiskScore: 100})
	c.Emit(models.SecurityEvent{Type: models.EventAccountLocked, RiskScore: 100})
	c.Emit(models.SecurityEvent{
		Type:      models.EventSuspiciousActivity,
		RiskScore: 95,
		Metadata:  models.EventMetadata{"action": "reject"},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("ACCOUNT_LOCKED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("reject")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.riskScores))
}

func TestCollector_ObserveFindings(t *testing.T) {
	c := New()

	c.ObserveFindings([]models.ThreatFinding{
		{Type: models.ThreatSQLInjection, Severity: models.SeverityCritical},
		{Type: models.ThreatSQLInjection, Severity: models.SeverityHigh},
		{Type: models.ThreatSQLInjection, Severity: models.SeverityCritical},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.findings.WithLabelValues("SQL_INJECTION", "CRITICAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.findings.WithLabelValues("SQL_INJECTION", "HIGH")))
}

func TestCollector_StoreGauges(t *testing.T) {
	c := New()

	c.SetTracked("accounts", 12)
	c.AddSwept("accounts", 3)
	c.AddSwept("accounts", 2)

	assert.Equal(t, 12.0, testutil.ToFloat64(c.trackedKeys.WithLabelValues("accounts")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.sweeps.WithLabelValues("accounts")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.Emit(models.SecurityEvent{Type: models.EventLoginSuccess})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `bastion_security_events_total{type="LOGIN_SUCCESS"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
