package gateway

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/cdc"
	"github.com/graphgate-io/graphgate/internal/config"
	"github.com/graphgate-io/graphgate/internal/exec"
	"github.com/graphgate-io/graphgate/internal/privileges"
)

// eventBuffer is the per-subscriber channel depth of the change hub.
const eventBuffer = 64

func init() {
	Register("postgres", newPostgresBackend)
}

func newPostgresBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConnections
	poolConfig.MinConns = cfg.Database.MinConnections
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.Database.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.Database).
		Str("schema", cfg.AllowedSchema).
		Msg("Connected to PostgreSQL")

	reflector := catalog.NewReflector(pool, cfg.AllowedSchema)
	catalogs := catalog.NewCache(reflector, cfg.Cache.SchemaTTL())
	privs := privileges.NewCache(privileges.NewLoader(pool, cfg.AllowedSchema), cfg.Cache.RolePrivilegesTTL())

	backend := &Backend{
		Catalogs:   catalogs,
		Privileges: privs,
		Reader:     exec.NewReader(pool, cfg.AllowedSchema),
		Writer:     exec.NewMutator(pool, cfg.AllowedSchema),
		Stats: func() (int32, int32) {
			stat := pool.Stat()
			return stat.TotalConns(), stat.IdleConns()
		},
		closeFn: pool.Close,
	}

	if cfg.CDC.Enabled {
		hub := cdc.NewHub(eventBuffer)
		backend.Hub = hub
		backend.Listener = cdc.NewListener(cfg.CDC,
			cfg.Database.ConnectionString(),
			cfg.Database.ReplicationConnectionString(),
			hub)
	}

	return backend, nil
}
