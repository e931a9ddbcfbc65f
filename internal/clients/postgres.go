package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

const registryProbeName = "arc-oracle"

const createRoutesTableSQL = `CREATE TABLE IF NOT EXISTS api_routes (
	service   TEXT        NOT NULL,
	method    TEXT        NOT NULL,
	path      TEXT        NOT NULL,
	handler   TEXT        NOT NULL,
	synced_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (service, method, path)
)`

// reconcileRoutesSQL upserts the incoming rows and deletes the service's
// stale rows in one statement. The DELETE sees the pre-statement snapshot,
// so freshly inserted rows are never removed. RowsAffected is the number of
// deleted rows.
const reconcileRoutesSQL = `WITH incoming AS (
	SELECT * FROM unnest($2::text[], $3::text[], $4::text[]) AS t(method, path, handler)
), upserted AS (
	INSERT INTO api_routes (service, method, path, handler, synced_at)
	SELECT $1, method, path, handler, now() FROM incoming
	ON CONFLICT (service, method, path)
	DO UPDATE SET handler = EXCLUDED.handler, synced_at = EXCLUDED.synced_at
	RETURNING 1
)
DELETE FROM api_routes r
WHERE r.service = $1
  AND NOT EXISTS (SELECT 1 FROM incoming i WHERE i.method = r.method AND i.path = r.path)`

// routeDB abstracts the pgxpool.Pool methods used by RouteStore so tests can
// inject a fake without standing up a real database.
type routeDB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// RouteStore persists the route table in Postgres, one row per method and
// path, keyed by service.
type RouteStore struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.PostgresConfig) (routeDB, error)
}

// NewRouteStore creates a RouteStore. A pool is opened per call and closed
// when the call returns; nothing connects at construction time.
func NewRouteStore(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) *RouteStore {
	return &RouteStore{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Reconcile makes the registry rows for service match routes exactly and
// returns how many stale rows were deleted.
func (s *RouteStore) Reconcile(ctx context.Context, service string, routes []routesync.Route) (int64, error) {
	methods := make([]string, len(routes))
	paths := make([]string, len(routes))
	handlers := make([]string, len(routes))
	for i, r := range routes {
		methods[i], paths[i], handlers[i] = r.Method, r.Path, r.Handler
	}

	removed, err := s.cb.Execute(func() (any, error) {
		db, err := s.connect(ctx, s.cfg)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if _, err := db.Exec(ctx, createRoutesTableSQL); err != nil {
			return nil, fmt.Errorf("ensuring api_routes table: %w", err)
		}

		tag, err := db.Exec(ctx, reconcileRoutesSQL, service, methods, paths, handlers)
		if err != nil {
			return nil, fmt.Errorf("reconciling api_routes: %w", err)
		}
		return tag.RowsAffected(), nil
	})
	if err != nil {
		return 0, breakerErr(err)
	}
	return removed.(int64), nil
}

// Probe pings the registry database through the circuit breaker.
func (s *RouteStore) Probe(ctx context.Context) routesync.ProbeResult {
	start := time.Now()

	_, err := s.cb.Execute(func() (any, error) {
		db, err := s.connect(ctx, s.cfg)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		return nil, nil
	})

	return probeResult(registryProbeName, start, err)
}

// realConnect opens a pgxpool.Pool using the provided PostgresConfig.
func realConnect(ctx context.Context, cfg config.PostgresConfig) (routeDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DB, cfg.SSLMode,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
