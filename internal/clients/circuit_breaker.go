package clients

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

const (
	defaultMaxFailures = 3
	defaultOpenTimeout = 30 * time.Second
)

// NewCircuitBreaker returns a gobreaker that trips after cfg.MaxFailures
// consecutive failures and half-opens after cfg.OpenTimeout. Zero values
// fall back to 3 failures and 30 seconds.
func NewCircuitBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

// breakerErr rewrites an open-breaker rejection so callers see a stable
// "circuit open" prefix.
func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit open: %w", err)
	}
	return err
}

// probeResult converts the outcome of a breaker-wrapped probe.
func probeResult(name string, start time.Time, err error) routesync.ProbeResult {
	latency := time.Since(start).Milliseconds()
	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return routesync.ProbeResult{Name: name, OK: false, LatencyMs: latency, Error: errMsg}
	}
	return routesync.ProbeResult{Name: name, OK: true, LatencyMs: latency}
}
