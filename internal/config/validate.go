package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.certPath",
				Message: "required when TLS is enabled",
			})
		}
		if cfg.Gateway.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls.keyPath",
				Message: "required when TLS is enabled",
			})
		}
	}

	if cfg.Auth.Secret == "" {
		issues = append(issues, ValidationIssue{
			Path:    "auth.secret",
			Message: "auth secret is required (set SWITCHBOARD_AUTH_SECRET or auth.secret)",
		})
	}

	if cfg.Sessions.MaxLifetimeMinutes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sessions.maxLifetimeMinutes",
			Message: "must not be negative",
		})
	}
	if cfg.Sessions.SweepIntervalSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sessions.sweepIntervalSeconds",
			Message: "must not be negative",
		})
	}
	if cfg.Sessions.MaxLifetimeMinutes > 0 && cfg.Sessions.SweepInterval() > cfg.Sessions.MaxLifetime() {
		issues = append(issues, ValidationIssue{
			Path:    "sessions.sweepIntervalSeconds",
			Message: "sweep interval longer than the max session lifetime",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}
