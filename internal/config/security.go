package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DetectionConfig switches individual detector families on or off
type DetectionConfig struct {
	EnableSQLInjection       bool `yaml:"enable_sql_injection_detection"`
	EnableXSS                bool `yaml:"enable_xss_detection"`
	EnableCommandInjection   bool `yaml:"enable_command_injection_detection"`
	EnableNoSQLInjection     bool `yaml:"enable_nosql_injection_detection"`
	EnableLDAPInjection      bool `yaml:"enable_ldap_injection_detection"`
	EnableSuspiciousPatterns bool `yaml:"enable_suspicious_pattern_detection"`
}

// RateLimitConfig is a fixed-window limit
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRequests int           `yaml:"max_requests" validate:"gte=1"`
	Window      time.Duration `yaml:"window" validate:"gt=0"`
}

// RiskThresholds are the low/medium/high bands of the login risk score
type RiskThresholds struct {
	Low    int `yaml:"low" validate:"gte=0,lte=100"`
	Medium int `yaml:"medium" validate:"gtfield=Low,lte=100"`
	High   int `yaml:"high" validate:"gtfield=Medium,lte=100"`
}

// AuthPolicyConfig drives lockout, login rate limiting and risk scoring
type AuthPolicyConfig struct {
	MaxFailedAttempts int             `yaml:"max_failed_attempts" validate:"gte=1"`
	LockoutDuration   time.Duration   `yaml:"lockout_duration" validate:"gt=0"`
	LoginRateLimit    RateLimitConfig `yaml:"login_rate_limit"`
	HistoryRetention  time.Duration   `yaml:"history_retention" validate:"gt=0"`
	RiskThresholds    RiskThresholds  `yaml:"risk_thresholds"`
}

// SecurityConfig is the complete policy of the security engine
type SecurityConfig struct {
	Detection               DetectionConfig  `yaml:"detection"`
	EnableInputSanitization bool             `yaml:"enable_input_sanitization"`
	EnableLogging           bool             `yaml:"enable_logging"`
	MaxInputLength          int              `yaml:"max_input_length" validate:"gte=1"`
	RateLimit               RateLimitConfig  `yaml:"rate_limit"`
	Auth                    AuthPolicyConfig `yaml:"auth"`
}

func allDetectors() DetectionConfig {
	return DetectionConfig{
		EnableSQLInjection:       true,
		EnableXSS:                true,
		EnableCommandInjection:   true,
		EnableNoSQLInjection:     true,
		EnableLDAPInjection:      true,
		EnableSuspiciousPatterns: true,
	}
}

func defaultAuthPolicy() AuthPolicyConfig {
	return AuthPolicyConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   30 * time.Minute,
		LoginRateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 10,
			Window:      time.Minute,
		},
		HistoryRetention: 30 * 24 * time.Hour,
		RiskThresholds:   RiskThresholds{Low: 30, Medium: 60, High: 80},
	}
}

// DevelopmentSecurityConfig is the permissive profile: detection stays on,
// sanitization and request rate limiting are off, and the length cap is high
func DevelopmentSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Detection:               allDetectors(),
		EnableInputSanitization: false,
		EnableLogging:           true,
		MaxInputLength:          50000,
		RateLimit: RateLimitConfig{
			Enabled:     false,
			MaxRequests: 1000,
			Window:      time.Minute,
		},
		Auth: defaultAuthPolicy(),
	}
}

// ProductionSecurityConfig is the strict profile
func ProductionSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Detection:               allDetectors(),
		EnableInputSanitization: true,
		EnableLogging:           true,
		MaxInputLength:          10000,
		RateLimit: RateLimitConfig{
			Enabled:     true,
			MaxRequests: 100,
			Window:      time.Minute,
		},
		Auth: defaultAuthPolicy(),
	}
}

// SecurityPreset returns the profile for an environment name
func SecurityPreset(env string) SecurityConfig {
	if env == "production" {
		return ProductionSecurityConfig()
	}
	return DevelopmentSecurityConfig()
}

var configValidator = validator.New()

// Validate checks the numeric bounds of the policy
func (c *SecurityConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}
	return nil
}

// LoadSecurityPolicyFile overlays the YAML document at path onto base.
// Keys absent from the file keep their base values.
func LoadSecurityPolicyFile(path string, base SecurityConfig) (SecurityConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read security policy file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse security policy file: %w", err)
	}

	return cfg, nil
}

// YAML renders the policy as a YAML document
func (c SecurityConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// applySecurityEnv overrides individual policy fields from SECURITY_* variables
func applySecurityEnv(c *SecurityConfig) {
	c.Detection.EnableSQLInjection = getEnvAsBool("SECURITY_ENABLE_SQL_INJECTION_DETECTION", c.Detection.EnableSQLInjection)
	c.Detection.EnableXSS = getEnvAsBool("SECURITY_ENABLE_XSS_DETECTION", c.Detection.EnableXSS)
	c.Detection.EnableCommandInjection = getEnvAsBool("SECURITY_ENABLE_COMMAND_INJECTION_DETECTION", c.Detection.EnableCommandInjection)
	c.Detection.EnableNoSQLInjection = getEnvAsBool("SECURITY_ENABLE_NOSQL_INJECTION_DETECTION", c.Detection.EnableNoSQLInjection)
	c.Detection.EnableLDAPInjection = getEnvAsBool("SECURITY_ENABLE_LDAP_INJECTION_DETECTION", c.Detection.EnableLDAPInjection)
	c.Detection.EnableSuspiciousPatterns = getEnvAsBool("SECURITY_ENABLE_SUSPICIOUS_PATTERN_DETECTION", c.Detection.EnableSuspiciousPatterns)

	c.EnableInputSanitization = getEnvAsBool("SECURITY_ENABLE_INPUT_SANITIZATION", c.EnableInputSanitization)
	c.EnableLogging = getEnvAsBool("SECURITY_ENABLE_LOGGING", c.EnableLogging)
	c.MaxInputLength = getEnvAsInt("SECURITY_MAX_INPUT_LENGTH", c.MaxInputLength)

	c.RateLimit.Enabled = getEnvAsBool("SECURITY_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.MaxRequests = getEnvAsInt("SECURITY_RATE_LIMIT_MAX_REQUESTS", c.RateLimit.MaxRequests)
	c.RateLimit.Window = getEnvAsDuration("SECURITY_RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.Auth.MaxFailedAttempts = getEnvAsInt("AUTH_MAX_FAILED_ATTEMPTS", c.Auth.MaxFailedAttempts)
	c.Auth.LockoutDuration = getEnvAsDuration("AUTH_LOCKOUT_DURATION", c.Auth.LockoutDuration)
	c.Auth.LoginRateLimit.MaxRequests = getEnvAsInt("AUTH_LOGIN_RATE_LIMIT_MAX_REQUESTS", c.Auth.LoginRateLimit.MaxRequests)
	c.Auth.LoginRateLimit.Window = getEnvAsDuration("AUTH_LOGIN_RATE_LIMIT_WINDOW", c.Auth.LoginRateLimit.Window)
	c.Auth.RiskThresholds.Low = getEnvAsInt("AUTH_RISK_THRESHOLD_LOW", c.Auth.RiskThresholds.Low)
	c.Auth.RiskThresholds.Medium = getEnvAsInt("AUTH_RISK_THRESHOLD_MEDIUM", c.Auth.RiskThresholds.Medium)
	c.Auth.RiskThresholds.High = getEnvAsInt("AUTH_RISK_THRESHOLD_HIGH", c.Auth.RiskThresholds.High)
}
