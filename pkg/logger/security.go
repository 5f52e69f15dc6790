package logger

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// SecurityRecord is one security event as written to the log
type SecurityRecord struct {
	EventType string
	Identity  string
	ClientIP  string
	UserAgent string
	RiskScore int
	Success   bool
	Timestamp time.Time
	Metadata  map[string]any
}

// SecurityLogger writes security events as structured slog records
type SecurityLogger struct {
	logger *slog.Logger
	env    string
}

// NewSecurityLogger creates a SecurityLogger. In production identities are
// masked with SanitizedEmail.
func NewSecurityLogger(logger *slog.Logger, env string) *SecurityLogger {
	return &SecurityLogger{
		logger: logger,
		env:    env,
	}
}

// Log writes rec at INFO for successes and WARN otherwise
func (sl *SecurityLogger) Log(ctx context.Context, rec SecurityRecord) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", rec.EventType),
		slog.Int("risk_score", rec.RiskScore),
		slog.String("timestamp", ts.UTC().Format(time.RFC3339)),
	}

	if rec.Identity != "" {
		attrs = append(attrs, sl.identityAttr(rec.Identity))
	}
	if rec.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", rec.ClientIP))
	}
	if rec.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", rec.UserAgent))
	}
	if len(rec.Metadata) > 0 {
		keys := make([]string, 0, len(rec.Metadata))
		for k := range rec.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.Any(k, rec.Metadata[k]))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	level := slog.LevelWarn
	if rec.Success {
		level = slog.LevelInfo
	}
	sl.logger.LogAttrs(ctx, level, "security event", attrs...)
}

func (sl *SecurityLogger) identityAttr(identity string) slog.Attr {
	if sl.env != "production" {
		return slog.String("identity", identity)
	}
	if strings.Contains(identity, "@") {
		return slog.String("identity", SanitizedEmail(identity))
	}
	return RedactedAttr("identity", identity, sl.env)
}

// New builds the process JSON logger at the given level name
func New(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
