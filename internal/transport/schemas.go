package transport

import (
	"context"
	"sync"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	gqlschema "github.com/graphgate-io/graphgate/internal/graphql"
	"github.com/graphgate-io/graphgate/internal/privileges"
)

// CatalogSource yields the current catalog snapshot.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
}

// PrivilegeSource yields the cached privileges of a role.
type PrivilegeSource interface {
	Get(ctx context.Context, role string) (*privileges.RolePrivileges, error)
}

// SchemaProvider caches generated schemas per (catalog snapshot, role). A
// new snapshot drops every cached schema; a role sees its first request pay
// the generation cost and later ones hit the cache.
type SchemaProvider struct {
	catalogs  CatalogSource
	privs     PrivilegeSource
	gen       *gqlschema.Generator
	roleBased bool

	mu       sync.Mutex
	snapshot string
	entries  map[string]*graphql.Schema
}

// NewSchemaProvider wires the catalog and privilege sources to the
// generator. roleBased false ignores caller roles entirely.
func NewSchemaProvider(catalogs CatalogSource, privs PrivilegeSource, gen *gqlschema.Generator, roleBased bool) *SchemaProvider {
	return &SchemaProvider{
		catalogs:  catalogs,
		privs:     privs,
		gen:       gen,
		roleBased: roleBased,
		entries:   make(map[string]*graphql.Schema),
	}
}

// SchemaFor returns the schema serving the given role.
func (p *SchemaProvider) SchemaFor(ctx context.Context, role string) (*graphql.Schema, error) {
	cat, err := p.catalogs.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !p.roleBased {
		role = ""
	}

	p.mu.Lock()
	if p.snapshot != cat.SnapshotID {
		p.snapshot = cat.SnapshotID
		p.entries = make(map[string]*graphql.Schema)
	}
	if schema, ok := p.entries[role]; ok {
		p.mu.Unlock()
		return schema, nil
	}
	p.mu.Unlock()

	var priv *privileges.RolePrivileges
	if role != "" {
		priv, err = p.privs.Get(ctx, role)
		if err != nil {
			return nil, err
		}
		cat = privileges.Filter(cat, priv)
	}

	schema, err := p.gen.Generate(cat, priv)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	// A concurrent snapshot change wins; do not cache a stale schema.
	if p.snapshot == cat.SnapshotID || role == "" {
		p.entries[role] = schema
	}
	p.mu.Unlock()

	log.Debug().Str("role", role).Str("snapshot", cat.SnapshotID).Msg("GraphQL schema cached")
	return schema, nil
}

// Invalidate drops every cached schema.
func (p *SchemaProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = ""
	p.entries = make(map[string]*graphql.Schema)
}
