package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/config"
	"github.com/graphgate-io/graphgate/internal/exec"
	gqlschema "github.com/graphgate-io/graphgate/internal/graphql"
	"github.com/graphgate-io/graphgate/internal/privileges"
)

type staticCatalog struct {
	cat *catalog.Catalog
}

func (s *staticCatalog) Snapshot(ctx context.Context) (*catalog.Catalog, error) {
	return s.cat, nil
}

type staticPrivs struct {
	priv *privileges.RolePrivileges
}

func (s staticPrivs) Get(ctx context.Context, role string) (*privileges.RolePrivileges, error) {
	return s.priv, nil
}

type stubReader struct{}

func (stubReader) List(ctx context.Context, cat *catalog.Catalog, table, role string, opts exec.ReadOptions) ([]map[string]any, error) {
	return nil, nil
}

func (stubReader) Connection(ctx context.Context, cat *catalog.Catalog, table, role string, opts exec.ReadOptions) (*exec.Connection, error) {
	return &exec.Connection{}, nil
}

func (stubReader) One(ctx context.Context, cat *catalog.Catalog, table, role string, equals map[string]any) (map[string]any, error) {
	return nil, nil
}

type stubWriter struct{}

func (stubWriter) Create(ctx context.Context, cat *catalog.Catalog, table, role string, input map[string]any) (map[string]any, error) {
	return input, nil
}

func (stubWriter) Update(ctx context.Context, cat *catalog.Catalog, table, role string, input map[string]any) (map[string]any, error) {
	return input, nil
}

func (stubWriter) Delete(ctx context.Context, cat *catalog.Catalog, table, role string, input map[string]any) (map[string]any, error) {
	return input, nil
}

func (stubWriter) CreateMany(ctx context.Context, cat *catalog.Catalog, table, role string, inputs []map[string]any) ([]map[string]any, error) {
	return inputs, nil
}

func (stubWriter) CreateWithRelations(ctx context.Context, cat *catalog.Catalog, table, role string, input map[string]any) (map[string]any, error) {
	return input, nil
}

func testCatalog(snapshot string) *catalog.Catalog {
	return &catalog.Catalog{
		SnapshotID: snapshot,
		Schema:     "public",
		Tables: []catalog.Table{
			{
				Schema: "public",
				Name:   "customer",
				Columns: []catalog.Column{
					{Name: "id", Type: "int4", PrimaryKey: true, Position: 1},
					{Name: "email", Type: "text", Position: 2},
				},
			},
		},
	}
}

func testProvider(cat *catalog.Catalog, roleBased bool) *SchemaProvider {
	gen := gqlschema.NewGenerator(stubReader{}, stubWriter{}, nil, 0)
	privs := staticPrivs{priv: &privileges.RolePrivileges{Role: "app", Exists: true, Superuser: true}}
	return NewSchemaProvider(&staticCatalog{cat: cat}, privs, gen, roleBased)
}

func testServer(t *testing.T, cfg *config.Config, provider *SchemaProvider) *Server {
	t.Helper()
	return NewServer(cfg, provider, nil)
}

func graphqlConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Address: ":0"},
		GraphQL: config.GraphQLConfig{
			Enabled:  true,
			MaxDepth: 5,
		},
	}
}

func postGraphQL(t *testing.T, srv *Server, body map[string]any, headers map[string]string) (int, GraphQLResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out GraphQLResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return resp.StatusCode, out
}

func TestHandleGraphQLHealthQuery(t *testing.T) {
	srv := testServer(t, graphqlConfig(), testProvider(testCatalog("s1"), false))

	status, resp := postGraphQL(t, srv, map[string]any{"query": "{ health }"}, nil)
	assert.Equal(t, 200, status)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]interface{}{"health": "ok"}, resp.Data)
}

func TestHandleGraphQLRequiresQuery(t *testing.T) {
	srv := testServer(t, graphqlConfig(), testProvider(testCatalog("s1"), false))

	status, resp := postGraphQL(t, srv, map[string]any{"query": ""}, nil)
	assert.Equal(t, 400, status)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "required")
}

func TestHandleGraphQLDepthLimit(t *testing.T) {
	cfg := graphqlConfig()
	cfg.GraphQL.MaxDepth = 2
	srv := testServer(t, cfg, testProvider(testCatalog("s1"), false))

	deep := `{ customer { posts { customer { posts { id } } } } }`
	status, resp := postGraphQL(t, srv, map[string]any{"query": deep}, nil)
	assert.Equal(t, 400, status)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "depth")
}

func TestIntrospectionGated(t *testing.T) {
	srv := testServer(t, graphqlConfig(), testProvider(testCatalog("s1"), false))

	req := httptest.NewRequest("GET", "/graphql", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 403, resp.StatusCode)

	cfg := graphqlConfig()
	cfg.GraphQL.Introspection = true
	srv = testServer(t, cfg, testProvider(testCatalog("s1"), false))
	resp, err = srv.App().Test(httptest.NewRequest("GET", "/graphql", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSchemaProviderCachesPerSnapshot(t *testing.T) {
	source := &staticCatalog{cat: testCatalog("s1")}
	gen := gqlschema.NewGenerator(stubReader{}, stubWriter{}, nil, 0)
	provider := NewSchemaProvider(source, staticPrivs{
		priv: &privileges.RolePrivileges{Role: "app", Exists: true, Superuser: true},
	}, gen, true)

	first, err := provider.SchemaFor(context.Background(), "app")
	require.NoError(t, err)
	second, err := provider.SchemaFor(context.Background(), "app")
	require.NoError(t, err)
	assert.Same(t, first, second, "same snapshot and role hit the cache")

	source.cat = testCatalog("s2")
	third, err := provider.SchemaFor(context.Background(), "app")
	require.NoError(t, err)
	assert.NotSame(t, first, third, "new snapshot regenerates")
}

func TestErrorExtensionsFromClassifiedError(t *testing.T) {
	conflict := exec.ClassifyMutation(exec.NotFoundf("no row in %q", "customer"))
	fe := gqlerrors.FormatError(conflict)
	converted := convertErrors([]gqlerrors.FormattedError{fe})
	require.Len(t, converted, 1)
	require.NotNil(t, converted[0].Extensions)
	assert.Equal(t, "NOT_FOUND", converted[0].Extensions["code"])
}

func TestCalculateQueryDepth(t *testing.T) {
	tests := []struct {
		name  string
		query string
		depth int
	}{
		{"flat", `{ health }`, 1},
		{"nested", `{ customer { id } }`, 2},
		{"deep", `{ customer { posts { id } } }`, 3},
		{"mutation", `mutation { create_customer(input: {email: "x"}) { id } }`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			depth, err := calculateQueryDepth(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.depth, depth)
		})
	}

	_, err := calculateQueryDepth("{ unbalanced")
	assert.Error(t, err)
}
