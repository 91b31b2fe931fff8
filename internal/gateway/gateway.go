package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/cdc"
	"github.com/graphgate-io/graphgate/internal/config"
	gqlschema "github.com/graphgate-io/graphgate/internal/graphql"
	"github.com/graphgate-io/graphgate/internal/observability"
	"github.com/graphgate-io/graphgate/internal/transport"
)

// statsInterval is how often connection pool usage is sampled into metrics.
const statsInterval = 15 * time.Second

// Gateway owns the whole serving stack: the database backend, schema
// provider, change feed and HTTP server.
type Gateway struct {
	cfg     *config.Config
	backend *Backend
	server  *transport.Server
	cancel  context.CancelFunc
}

// New wires the gateway from configuration. The returned gateway is not
// serving yet; call Run.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Gateway, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gen := gqlschema.NewGenerator(backend.Reader, backend.Writer, backend.Hub, cfg.CDC.Heartbeat())
	schemas := transport.NewSchemaProvider(backend.Catalogs, backend.Privileges, gen, cfg.Security.RoleBasedSchema)

	if metrics != nil {
		if cache, ok := backend.Catalogs.(*catalog.Cache); ok {
			cache.OnRefresh(metrics.RecordCatalogRefresh)
		}
		if backend.Listener != nil {
			backend.Listener.OnEvent(func(ev *cdc.Event) {
				metrics.RecordCDCEvent(string(ev.Operation))
			})
			backend.Listener.OnReconnect(metrics.RecordCDCReconnect)
		}
	}

	server := transport.NewServer(cfg, schemas, metrics)

	return &Gateway{cfg: cfg, backend: backend, server: server}, nil
}

// SubscriberCount reports active change subscriptions, zero when CDC is off.
// Safe to call before New: it is bound to the hub lazily.
func (g *Gateway) SubscriberCount() int {
	if g.backend.Hub == nil {
		return 0
	}
	return g.backend.Hub.ActiveSubscribers()
}

// Run starts the change listener and blocks serving HTTP until Shutdown.
func (g *Gateway) Run(ctx context.Context, metrics *observability.Metrics) error {
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	if g.backend.Listener != nil {
		g.backend.Listener.Start(runCtx)
		log.Info().
			Str("slot", g.cfg.CDC.SlotName).
			Str("publication", g.cfg.CDC.PublicationName).
			Msg("CDC listener started")
	}

	if metrics != nil && g.backend.Stats != nil {
		go g.sampleStats(runCtx, metrics)
	}

	return g.server.Listen()
}

// Shutdown stops serving: drains HTTP, stops the replication stream and
// closes the pool.
func (g *Gateway) Shutdown() error {
	err := g.server.Shutdown()
	if g.backend.Listener != nil {
		g.backend.Listener.Stop()
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.backend.Close()
	return err
}

func (g *Gateway) sampleStats(ctx context.Context, metrics *observability.Metrics) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(g.backend.Stats())
		}
	}
}
