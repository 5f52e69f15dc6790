package security

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/events"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/benbjohnson/clock"
)

// Action is the outcome of a policy decision
type Action string

const (
	ActionAllow  Action = "allow"
	ActionReject Action = "reject"
)

// Decision is what the caller does with a validated request
type Decision struct {
	Action          Action
	SanitizedFields map[string]any
	ErrorMessages   []string
	Err             error
}

// Evaluation is the raw result of validating a request
type Evaluation struct {
	Findings  []models.ThreatFinding
	RateLimit *RateLimitResult
}

// PolicyEngine combines the detector, the request rate limiter and the
// sanitizer into allow/reject decisions
type PolicyEngine struct {
	detector *ThreatDetector
	limiter  *RateLimiter
	sanitize bool
	logging  bool
	sink     events.Sink
	observe  func([]models.ThreatFinding)
	clock    clock.Clock
	logger   *slog.Logger
}

// NewPolicyEngine builds an engine from the security policy. buckets is the
// process-wide request bucket store; it is unused when rate limiting is off.
func NewPolicyEngine(cfg config.SecurityConfig, buckets *repositories.RateLimitBucketRepository, clk clock.Clock, sink events.Sink, logger *slog.Logger) *PolicyEngine {
	e := &PolicyEngine{
		detector: NewThreatDetector(cfg.Detection, cfg.MaxInputLength),
		sanitize: cfg.EnableInputSanitization,
		logging:  cfg.EnableLogging,
		sink:     sink,
		clock:    clk,
		logger:   logger,
	}
	if cfg.RateLimit.Enabled {
		e.limiter = NewRateLimiter(buckets, clk, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}
	if e.sink == nil {
		e.sink = events.Discard
	}
	return e
}

// ObserveFindings registers fn to receive the findings of every enforced
// request that had any
func (e *PolicyEngine) ObserveFindings(fn func([]models.ThreatFinding)) {
	e.observe = fn
}

// Validate returns the findings across all fields, plus a rate-limit finding
// when clientIP is given and over its limit
func (e *PolicyEngine) Validate(fields map[string]any, clientIP string) []models.ThreatFinding {
	return e.Evaluate(fields, clientIP).Findings
}

// Evaluate is Validate with the rate-limit outcome kept alongside
func (e *PolicyEngine) Evaluate(fields map[string]any, clientIP string) Evaluation {
	var eval Evaluation
	e.scanFields("", fields, &eval.Findings)

	if clientIP != "" && e.limiter != nil {
		rl := e.limiter.Check(clientIP)
		if !rl.Allowed {
			eval.RateLimit = &rl
			eval.Findings = append(eval.Findings, rl.Finding(clientIP))
		}
	}

	return eval
}

func (e *PolicyEngine) scanFields(prefix string, fields map[string]any, out *[]models.ThreatFinding) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := joinField(prefix, name)
		// keys are scanned as they appear in a JSON object, so operator keys
		// such as {"$ne": null} match
		*out = append(*out, e.detector.Scan(name+":", field+"[key]")...)
		e.scanValue(field, fields[name], out)
	}
}

func (e *PolicyEngine) scanValue(field string, value any, out *[]models.ThreatFinding) {
	switch v := value.(type) {
	case map[string]any:
		e.scanFields(field, v, out)
	case []any:
		for i, item := range v {
			e.scanValue(fmt.Sprintf("%s[%d]", field, i), item, out)
		}
	default:
		*out = append(*out, e.detector.ScanValue(v, field)...)
	}
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Decide applies the fail-closed/fail-open rule to findings. CRITICAL
// findings reject with an authentication-class error, a rate-limit violation
// rejects with RateLimitExceeded, HIGH findings reject with a
// validation-class error, anything else is allowed (sanitized if enabled).
func (e *PolicyEngine) Decide(fields map[string]any, findings []models.ThreatFinding) Decision {
	return e.decide(fields, findings, nil)
}

func (e *PolicyEngine) decide(fields map[string]any, findings []models.ThreatFinding, rl *RateLimitResult) Decision {
	critical := models.FilterBySeverity(findings, models.SeverityCritical)
	high := models.FilterBySeverity(findings, models.SeverityHigh)

	if len(critical) > 0 {
		msgs := messages(critical, false)
		return Decision{
			Action:        ActionReject,
			ErrorMessages: msgs,
			Err: &models.SecurityError{
				Kind:         models.KindThreatDetected,
				Class:        models.ClassAuthentication,
				Severity:     models.SeverityCritical,
				Message:      "critical threat detected: " + strings.Join(msgs, "; "),
				Messages:     msgs,
				HighMessages: messages(withoutRateLimit(high), true),
				Fields:       fieldNames(critical),
				Categories:   categories(critical),
			},
		}
	}

	for _, f := range findings {
		if f.Type != models.ThreatRateLimitExceeded {
			continue
		}
		limit, window, retry := 0, e.limiterWindow(), e.limiterWindow()
		if e.limiter != nil {
			limit = e.limiter.maxRequests
			// the finding excerpt is the limited key
			retry = e.limiter.RetryAfter(f.PayloadExcerpt)
		}
		if rl != nil {
			limit, window, retry = rl.Limit, rl.Window, rl.RetryAfter
		}
		err := models.NewRateLimitError(limit, window, retry)
		return Decision{
			Action:        ActionReject,
			ErrorMessages: []string{f.Message},
			Err:           err,
		}
	}

	if len(high) > 0 {
		msgs := messages(high, true)
		return Decision{
			Action:        ActionReject,
			ErrorMessages: msgs,
			Err: &models.SecurityError{
				Kind:       models.KindThreatDetected,
				Class:      models.ClassValidation,
				Severity:   models.SeverityHigh,
				Message:    "high severity threat detected: " + strings.Join(msgs, "; "),
				Messages:   msgs,
				Fields:     fieldNames(high),
				Categories: categories(high),
			},
		}
	}

	out := fields
	if e.sanitize {
		out = SanitizeFields(fields)
	}
	return Decision{Action: ActionAllow, SanitizedFields: out}
}

func (e *PolicyEngine) limiterWindow() time.Duration {
	if e.limiter != nil {
		return e.limiter.window
	}
	return 0
}

// Enforce validates, decides, records the outcome and returns the fields to
// continue with, or the rejection error
func (e *PolicyEngine) Enforce(ctx context.Context, fields map[string]any, clientIP, userAgent string) (map[string]any, error) {
	eval := e.Evaluate(fields, clientIP)
	decision := e.decide(fields, eval.Findings, eval.RateLimit)

	if len(eval.Findings) > 0 {
		e.record(ctx, decision, eval.Findings, clientIP, userAgent)
		if e.observe != nil {
			e.observe(eval.Findings)
		}
	}

	if decision.Action == ActionReject {
		return nil, decision.Err
	}
	return decision.SanitizedFields, nil
}

func (e *PolicyEngine) record(ctx context.Context, decision Decision, findings []models.ThreatFinding, clientIP, userAgent string) {
	maxSeverity := models.MaxSeverity(findings)
	confidence := 0
	for _, f := range findings {
		if f.Severity == maxSeverity && f.Confidence > confidence {
			confidence = f.Confidence
		}
	}

	if e.logging {
		attrs := []slog.Attr{
			slog.String("action", string(decision.Action)),
			slog.String("client_ip", clientIP),
			slog.String("max_severity", maxSeverity.String()),
			slog.Int("finding_count", len(findings)),
			slog.Any("threat_types", categories(findings)),
			slog.Any("fields", fieldNames(findings)),
		}
		level := slog.LevelInfo
		if decision.Action == ActionReject {
			level = slog.LevelWarn
		}
		e.logger.LogAttrs(ctx, level, "input threat findings", attrs...)
	}

	e.sink.Emit(models.SecurityEvent{
		Type:      models.EventSuspiciousActivity,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		RiskScore: confidence,
		Timestamp: e.clock.Now(),
		Metadata: models.EventMetadata{
			"source":        "input_validation",
			"action":        string(decision.Action),
			"max_severity":  maxSeverity.String(),
			"threat_types":  categoryStrings(findings),
			"fields":        fieldNames(findings),
			"finding_count": len(findings),
		},
	})
}

func withoutRateLimit(findings []models.ThreatFinding) []models.ThreatFinding {
	out := make([]models.ThreatFinding, 0, len(findings))
	for _, f := range findings {
		if f.Type != models.ThreatRateLimitExceeded {
			out = append(out, f)
		}
	}
	return out
}

func messages(findings []models.ThreatFinding, withField bool) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		if withField && f.Field != "" {
			out = append(out, fmt.Sprintf("%s: %s", f.Field, f.Message))
			continue
		}
		out = append(out, f.Message)
	}
	return out
}

func fieldNames(findings []models.ThreatFinding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range findings {
		if f.Field != "" && !seen[f.Field] {
			seen[f.Field] = true
			out = append(out, f.Field)
		}
	}
	return out
}

func categories(findings []models.ThreatFinding) []models.ThreatType {
	seen := make(map[models.ThreatType]bool)
	var out []models.ThreatType
	for _, f := range findings {
		if !seen[f.Type] {
			seen[f.Type] = true
			out = append(out, f.Type)
		}
	}
	return out
}

func categoryStrings(findings []models.ThreatFinding) []string {
	cats := categories(findings)
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
