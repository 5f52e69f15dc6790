// Package security implements request input threat detection, sanitization
// and rate limiting.
package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/models"
)

// DefaultMaxInputLength is the length guard applied when none is configured
const DefaultMaxInputLength = 10000

const excerptRadius = 24

// ThreatDetector scans strings against the enabled pattern families.
// It holds no mutable state and is safe for concurrent use.
type ThreatDetector struct {
	families       []family
	suspicious     bool
	maxInputLength int
}

// NewThreatDetector builds a detector with the given families enabled
func NewThreatDetector(detection config.DetectionConfig, maxInputLength int) *ThreatDetector {
	if maxInputLength <= 0 {
		maxInputLength = DefaultMaxInputLength
	}

	d := &ThreatDetector{
		suspicious:     detection.EnableSuspiciousPatterns,
		maxInputLength: maxInputLength,
	}

	if detection.EnableSQLInjection {
		d.families = append(d.families, sqlInjectionFamily)
	}
	if detection.EnableXSS {
		d.families = append(d.families, xssFamily)
	}
	if detection.EnableCommandInjection {
		d.families = append(d.families, commandInjectionFamily)
	}
	if detection.EnableNoSQLInjection {
		d.families = append(d.families, noSQLInjectionFamily)
	}
	if detection.EnableLDAPInjection {
		d.families = append(d.families, ldapInjectionFamily)
	}
	if detection.EnableSuspiciousPatterns {
		d.families = append(d.families, suspiciousFamily)
	}

	return d
}

// Scan returns every finding for input. Families are independent and
// cumulative; each rule contributes at most its first match.
func (d *ThreatDetector) Scan(input, field string) []models.ThreatFinding {
	if input == "" {
		return nil
	}

	var findings []models.ThreatFinding

	if len(input) > d.maxInputLength {
		findings = append(findings, models.ThreatFinding{
			Type:           models.ThreatMalformedInput,
			Severity:       models.SeverityMedium,
			Confidence:     100,
			Message:        fmt.Sprintf("input exceeds maximum length of %d", d.maxInputLength),
			MatchedPattern: "length",
			Field:          field,
			PayloadExcerpt: excerpt(input, 0, 0),
		})
	}

	if d.suspicious && len(input) > suspiciousLengthThreshold {
		findings = append(findings, models.ThreatFinding{
			Type:           models.ThreatSuspiciousPattern,
			Severity:       models.SeverityMedium,
			Confidence:     60,
			Message:        fmt.Sprintf("unusually long input (%d bytes)", len(input)),
			MatchedPattern: "length",
			Field:          field,
			PayloadExcerpt: excerpt(input, 0, 0),
		})
	}

	for _, fam := range d.families {
		for _, p := range fam.patterns {
			loc := p.re.FindStringIndex(input)
			if loc == nil {
				continue
			}
			findings = append(findings, models.ThreatFinding{
				Type:           fam.threat,
				Severity:       p.severity,
				Confidence:     p.confidence,
				Message:        p.message,
				MatchedPattern: p.re.String(),
				Field:          field,
				PayloadExcerpt: excerpt(input, loc[0], loc[1]),
			})
		}
	}

	return findings
}

// ScanValue scans strings and string slices; any other type yields nothing
func (d *ThreatDetector) ScanValue(value any, field string) []models.ThreatFinding {
	switch v := value.(type) {
	case string:
		return d.Scan(v, field)
	case []string:
		var findings []models.ThreatFinding
		for i, s := range v {
			findings = append(findings, d.Scan(s, fmt.Sprintf("%s[%d]", field, i))...)
		}
		return findings
	default:
		return nil
	}
}

// excerpt returns a printable window around s[start:end] for server-side logs
func excerpt(s string, start, end int) string {
	from := start - excerptRadius
	if from < 0 {
		from = 0
	}
	to := end + excerptRadius
	if to > len(s) {
		to = len(s)
	}
	for from > 0 && !utf8.RuneStart(s[from]) {
		from--
	}
	for to < len(s) && !utf8.RuneStart(s[to]) {
		to++
	}

	window := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '?'
		}
		return r
	}, s[from:to])

	if from > 0 {
		window = "…" + window
	}
	if to < len(s) {
		window += "…"
	}
	return window
}
