package security

import (
	"regexp"

	"github.com/BradenHooton/bastion/internal/models"
)

// pattern is one detector rule. A rule yields at most one finding per scan:
// the first match.
type pattern struct {
	re         *regexp.Regexp
	severity   models.Severity
	confidence int
	message    string
}

// family groups the rules of one attack class
type family struct {
	threat   models.ThreatType
	patterns []pattern
}

func rule(expr string, severity models.Severity, confidence int, message string) pattern {
	return pattern{
		re:         regexp.MustCompile(expr),
		severity:   severity,
		confidence: confidence,
		message:    message,
	}
}

var sqlInjectionFamily = family{
	threat: models.ThreatSQLInjection,
	patterns: []pattern{
		rule(`(?i)\b(select\s+[\w*,\s()."']+?\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from|drop\s+(table|database|schema|index|view)|create\s+(table|database|user)|alter\s+(table|user)|truncate\s+table|exec(ute)?\s*(\(|xp_|sp_))`,
			models.SeverityHigh, 85, "SQL keyword sequence"),
		rule(`(--|/\*|\*/|#)`,
			models.SeverityMedium, 70, "SQL comment marker"),
		rule(`(?i)(\\'|\\"|''|'\s*;|'\s*(or|and)\b)`,
			models.SeverityMedium, 60, "SQL quote escape sequence"),
		rule(`(?i)\b(and|or)\s+(\d+|'[^']*'|"[^"]*")\s*=\s*(\d+|'[^']*'|"[^"]*")`,
			models.SeverityHigh, 90, "boolean-based blind SQL injection"),
		rule(`(?i)(\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+(delay|time)\b)`,
			models.SeverityCritical, 95, "time-based blind SQL injection"),
		rule(`(?i)\bunion\b(\s+(all|distinct))?\s+select\b`,
			models.SeverityCritical, 95, "UNION SELECT injection"),
		rule(`(?i)\b(information_schema|sysobjects|syscolumns|sys\.tables|pg_catalog|pg_tables|sqlite_master|mysql\.user)\b`,
			models.SeverityHigh, 88, "database schema introspection"),
	},
}

var xssFamily = family{
	threat: models.ThreatXSS,
	patterns: []pattern{
		rule(`(?i)<\s*script\b[^>]*>`,
			models.SeverityCritical, 95, "script tag"),
		rule(`(?i)\bon(abort|animation\w+|after\w+|before\w+|blur|change|click|contextmenu|copy|cut|dblclick|drag\w*|drop|error|focus\w*|hashchange|input|invalid|key\w+|load\w*|message|mouse\w+|paste|pointer\w+|reset|resize|scroll|select|show|submit|toggle|touch\w+|transition\w+|unload|wheel)\s*=`,
			models.SeverityHigh, 85, "inline event handler"),
		rule(`(?i)\b(javascript|vbscript)\s*:`,
			models.SeverityHigh, 90, "script URI scheme"),
		rule(`(?i)\bdata\s*:[^,;]*;\s*base64\s*,`,
			models.SeverityMedium, 70, "base64 data URI"),
		rule(`(\beval|\bFunction|\bsetTimeout|\bsetInterval)\s*\(`,
			models.SeverityHigh, 80, "dynamic code evaluation"),
		rule(`(?i)<\s*/?\s*(iframe|object|embed|form|applet|meta|link|base|svg)\b`,
			models.SeverityMedium, 75, "dangerous HTML tag"),
	},
}

var commandInjectionFamily = family{
	threat: models.ThreatCommandInjection,
	patterns: []pattern{
		rule("(?i)([;&|`]|\\$\\(|/bin/|/usr/bin/)\\s*(bash|sh|zsh|ksh|csh|cmd(\\.exe)?|powershell|nc|ncat|netcat|wget|curl|chmod|chown|rm|cat|whoami|uname|passwd|python[0-9.]*|perl|ruby|php)\\b",
			models.SeverityHigh, 85, "shell binary invocation"),
		rule("[|;&`$(){}\\[\\]]",
			models.SeverityMedium, 70, "shell metacharacter"),
		rule("`[^`]+`",
			models.SeverityHigh, 90, "backtick command substitution"),
		rule(`\$\([^)]*\)`,
			models.SeverityHigh, 90, "command substitution"),
	},
}

var noSQLInjectionFamily = family{
	threat: models.ThreatNoSQLInjection,
	patterns: []pattern{
		rule(`\$(where|ne|eq|gt|gte|lt|lte|in|nin|regex|exists|or|and|not|nor|expr|elemMatch|function|accumulator)["']?\s*:`,
			models.SeverityHigh, 85, "NoSQL operator injection"),
		rule(`(?i)(\bfunction\s*\(|\bthis\.\w+|\bdb\.\w+\.\w+|\breturn\s+(true|false)\b|\bemit\s*\()`,
			models.SeverityMedium, 60, "embedded server-side script"),
		rule(`/[^/\s]*(\.\*|\.\+|\^|\$)[^/\s]*/[gimsuy]*`,
			models.SeverityMedium, 70, "inline regular expression"),
	},
}

var ldapInjectionFamily = family{
	threat: models.ThreatLDAPInjection,
	patterns: []pattern{
		rule(`(\(\s*[&|!]?\s*[\w.-]+\s*[~<>]?=[^)]*\)|\*\)|\)\s*\(|\\[0-9a-fA-F]{2}|\x00)`,
			models.SeverityHigh, 80, "LDAP filter metacharacters"),
		rule(`\(\s*[&|!]\s*\(`,
			models.SeverityMedium, 70, "LDAP boolean operator"),
	},
}

var suspiciousFamily = family{
	threat: models.ThreatSuspiciousPattern,
	patterns: []pattern{
		rule(`[A-Za-z0-9+/]{64,}={0,2}`,
			models.SeverityLow, 50, "long base64 run"),
		rule(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`,
			models.SeverityMedium, 70, "control character"),
		rule(`(?i)(\.\./|\.\.\\|%2e%2e(%2f|%5c|/|\\)|\.\.%2f|\.\.%5c)`,
			models.SeverityHigh, 85, "path traversal"),
		rule(`(\$\{[^}]*\}|\$[A-Z_][A-Z0-9_]*\b)`,
			models.SeverityMedium, 75, "environment variable interpolation"),
	},
}

// suspiciousLengthThreshold flags unusually long but still accepted input
const suspiciousLengthThreshold = 500
