package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/graphgate-io/graphgate/internal/cdc"
	"github.com/graphgate-io/graphgate/internal/config"
	gqlschema "github.com/graphgate-io/graphgate/internal/graphql"
	"github.com/graphgate-io/graphgate/internal/transport"
)

// Backend bundles the database-specific pieces of the gateway: catalog and
// privilege sources, row readers and writers, and the optional change feed.
// Builders for each supported database type register themselves at init
// time; database_type in the configuration selects one at startup.
type Backend struct {
	Catalogs   transport.CatalogSource
	Privileges transport.PrivilegeSource
	Reader     gqlschema.Reader
	Writer     gqlschema.Writer

	// Hub and Listener are nil when change data capture is disabled.
	Hub      *cdc.Hub
	Listener *cdc.Listener

	// Stats reports connection pool usage for metrics sampling.
	Stats func() (total, idle int32)

	closeFn func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.closeFn != nil {
		b.closeFn()
	}
}

// Builder constructs a Backend from the loaded configuration.
type Builder func(ctx context.Context, cfg *config.Config) (*Backend, error)

var builders = map[string]Builder{}

// Register adds a backend builder under the given database_type name.
// Called from init functions; not safe for concurrent use.
func Register(name string, b Builder) {
	if _, exists := builders[name]; exists {
		panic("gateway: duplicate backend registration: " + name)
	}
	builders[name] = b
}

func newBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	build, ok := builders[cfg.DatabaseType]
	if !ok {
		names := make([]string, 0, len(builders))
		for name := range builders {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported database_type %q, supported: %s",
			cfg.DatabaseType, strings.Join(names, ", "))
	}
	return build(ctx, cfg)
}
