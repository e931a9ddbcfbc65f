package config

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// FieldError describes one invalid configuration key.
type FieldError struct {
	Key     string
	Problem string
}

// ValidationError is returned by Load and Validate when the configuration
// snapshot cannot be used to start the server.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Key + ": " + f.Problem
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate checks the fields the startup sequence depends on.
func (c *Config) Validate() error {
	var errs []FieldError
	add := func(key, format string, args ...any) {
		errs = append(errs, FieldError{Key: key, Problem: fmt.Sprintf(format, args...)})
	}

	app := c.App
	if strings.TrimSpace(app.Env) == "" {
		add("app.env", "must not be empty")
	}
	if strings.TrimSpace(app.Name) == "" {
		add("app.name", "must not be empty")
	}
	if v := "v" + app.Version; semver.Canonical(v) != v {
		add("app.version", "%q is not a MAJOR.MINOR.PATCH version", app.Version)
	}
	if strings.TrimSpace(app.Host) == "" {
		add("app.host", "must not be empty")
	}
	if app.Port < 1 || app.Port > 65535 {
		add("app.port", "%d is outside 1-65535", app.Port)
	}

	if c.Sync.Enabled && c.Sync.Timeout <= 0 {
		add("sync.timeout", "must be positive when sync is enabled")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
