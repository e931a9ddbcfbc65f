package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

const (
	cacheProbeName  = "arc-sonic"
	digestKeyPrefix = "beacon:routes:digest:"
)

// kvStore is the subset of go-redis used by DigestCache. It is implemented by
// realKV and by test doubles.
type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) (string, error)
	Close() error
}

// realKV adapts *redis.Client so tests don't need real *redis.StringCmd values.
type realKV struct {
	client *redis.Client
}

func (r *realKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (r *realKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *realKV) Ping(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realKV) Close() error {
	return r.client.Close()
}

// DigestCache remembers the last route table digest written to the registry
// for each service, so unchanged deployments can skip the reconcile.
type DigestCache struct {
	cfg config.RedisConfig
	cb  *gobreaker.CircuitBreaker
	kv  kvStore
}

// NewDigestCache creates a DigestCache. A client is built per call when no
// kvStore has been injected.
func NewDigestCache(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *DigestCache {
	return &DigestCache{cfg: cfg, cb: cb}
}

// Get returns the cached digest for service, or "" when none is stored.
func (c *DigestCache) Get(ctx context.Context, service string) (string, error) {
	val, err := c.cb.Execute(func() (any, error) {
		kv, done := c.store()
		defer done()
		return kv.Get(ctx, digestKeyPrefix+service)
	})
	if err != nil {
		return "", breakerErr(fmt.Errorf("get digest: %w", err))
	}
	return val.(string), nil
}

// Set stores digest as the current value for service.
func (c *DigestCache) Set(ctx context.Context, service, digest string) error {
	_, err := c.cb.Execute(func() (any, error) {
		kv, done := c.store()
		defer done()
		return nil, kv.Set(ctx, digestKeyPrefix+service, digest)
	})
	if err != nil {
		return breakerErr(fmt.Errorf("set digest: %w", err))
	}
	return nil
}

// Probe sends PING and validates the PONG response through the breaker.
func (c *DigestCache) Probe(ctx context.Context) routesync.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		kv, done := c.store()
		defer done()

		val, err := kv.Ping(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return probeResult(cacheProbeName, start, err)
}

func (c *DigestCache) store() (kvStore, func()) {
	if c.kv != nil {
		return c.kv, func() {}
	}
	kv := &realKV{client: redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port),
		Password: c.cfg.Password,
		DB:       c.cfg.DB,
	})}
	return kv, func() { kv.Close() } //nolint:errcheck
}
