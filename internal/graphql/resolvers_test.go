package graphql

import (
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/sqlgen"
)

func TestListFieldExposesLegacyArguments(t *testing.T) {
	gen := testGenerator()
	schema, err := gen.Generate(shopCatalog(), nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, arg := range schema.QueryType().Fields()["customer"].Args {
		names[arg.Name()] = true
	}

	for _, want := range []string{
		"where", "or", "orderBy", "limit", "offset",
		"id", "id_gt", "id_in",
		"email", "email_contains", "email_ilike",
		"status", "status_neq",
		"metadata", "metadata_hasKey", "metadata_path",
	} {
		assert.True(t, names[want], "missing argument %q", want)
	}
	// Composite and array columns carry no legacy arguments.
	assert.False(t, names["home"])
	assert.False(t, names["tags"])

	conn := map[string]bool{}
	for _, arg := range schema.QueryType().Fields()["customer_connection"].Args {
		conn[arg.Name()] = true
	}
	for _, want := range []string{"or", "email_contains", "first", "after"} {
		assert.True(t, conn[want], "missing connection argument %q", want)
	}
}

func TestDecodeReadOptionsLegacyArguments(t *testing.T) {
	cat := shopCatalog()
	table, ok := cat.Table("customer")
	require.True(t, ok)

	opts, err := decodeReadOptions(table, map[string]interface{}{
		"email":          "a@example.com",
		"id_gt":          3,
		"email_contains": "example",
		"or": []interface{}{
			map[string]interface{}{"status": map[string]interface{}{"eq": "pending"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"email": "a@example.com"}, opts.Equals)

	require.NotNil(t, opts.Where)
	got := map[string]sqlgen.Predicate{}
	for _, cp := range opts.Where.Columns {
		require.Len(t, cp.Ops, 1)
		got[cp.Column] = cp.Ops[0]
	}
	assert.Equal(t, sqlgen.Predicate{Op: sqlgen.OpGt, Value: 3}, got["id"])
	assert.Equal(t, sqlgen.Predicate{Op: sqlgen.OpContains, Value: "example"}, got["email"])

	require.Len(t, opts.Or, 1)
	require.Len(t, opts.Or[0].Columns, 1)
	assert.Equal(t, "status", opts.Or[0].Columns[0].Column)
}

func TestDecodeReadOptionsMergesSuffixedIntoWhere(t *testing.T) {
	cat := shopCatalog()
	table, ok := cat.Table("customer")
	require.True(t, ok)

	opts, err := decodeReadOptions(table, map[string]interface{}{
		"where": map[string]interface{}{"email": map[string]interface{}{"eq": "x"}},
		"id_gt": 1,
	})
	require.NoError(t, err)
	require.NotNil(t, opts.Where)
	require.Len(t, opts.Where.Columns, 2)
}

func TestExecutesListQueryWithLegacyArguments(t *testing.T) {
	reader := &fakeReader{rows: []map[string]any{{"id": 4, "email": "a@example.com"}}}
	gen := NewGenerator(reader, fakeWriter{}, nil, 0)
	schema, err := gen.Generate(shopCatalog(), nil)
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema:        *schema,
		RequestString: `{ customer(email: "a@example.com", id_gt: 3, or: [{status: {eq: "pending"}}]) { id } }`,
	})
	require.Empty(t, result.Errors)

	assert.Equal(t, map[string]any{"email": "a@example.com"}, reader.lastOpts.Equals)
	require.NotNil(t, reader.lastOpts.Where)
	require.Len(t, reader.lastOpts.Where.Columns, 1)
	assert.Equal(t, "id", reader.lastOpts.Where.Columns[0].Column)
	require.Len(t, reader.lastOpts.Or, 1)
}
