package models

import "strings"

// ThreatType classifies a finding produced by the threat detector
type ThreatType string

const (
	ThreatSQLInjection      ThreatType = "SQL_INJECTION"
	ThreatXSS               ThreatType = "XSS"
	ThreatCommandInjection  ThreatType = "COMMAND_INJECTION"
	ThreatNoSQLInjection    ThreatType = "NOSQL_INJECTION"
	ThreatLDAPInjection     ThreatType = "LDAP_INJECTION"
	ThreatSuspiciousPattern ThreatType = "SUSPICIOUS_PATTERN"
	ThreatMalformedInput    ThreatType = "MALFORMED_INPUT"
	ThreatRateLimitExceeded ThreatType = "RATE_LIMIT_EXCEEDED"
)

// Severity is the ordered severity scale shared by findings and errors
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText renders the severity by name so findings serialize readably
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name (case-insensitive)
func (s *Severity) UnmarshalText(text []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(text)))
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return ErrBadRequest
}

// ThreatFinding is a single detector match. Created per scan, never persisted.
type ThreatFinding struct {
	Type           ThreatType `json:"type"`
	Severity       Severity   `json:"severity"`
	Confidence     int        `json:"confidence"` // 0-100
	Message        string     `json:"message"`
	MatchedPattern string     `json:"matched_pattern"`
	Field          string     `json:"field,omitempty"`
	PayloadExcerpt string     `json:"payload_excerpt"`
}

// MaxSeverity returns the highest severity among findings, or 0 when empty
func MaxSeverity(findings []ThreatFinding) Severity {
	var max Severity
	for _, f := range findings {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// FilterBySeverity returns the findings with exactly the given severity
func FilterBySeverity(findings []ThreatFinding, severity Severity) []ThreatFinding {
	var out []ThreatFinding
	for _, f := range findings {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}
