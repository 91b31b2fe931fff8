package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

func projectCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Schema: "public",
		Tables: []catalog.Table{
			{
				Name: "orders",
				Columns: []catalog.Column{
					{Name: "id", Type: "int8", PrimaryKey: true},
					{Name: "status", Type: "order_status", OriginalType: catalog.OriginalEnum, OriginalName: "order_status"},
					{Name: "shipping", Type: "address", OriginalType: catalog.OriginalComposite, OriginalName: "address"},
					{Name: "tag_ids", Type: "int4[]"},
					{Name: "meta", Type: "jsonb"},
					{Name: "payload", Type: "bytea"},
					{Name: "created_at", Type: "timestamptz"},
				},
			},
		},
		Composites: map[string]catalog.CompositeType{
			"public.address": {
				Schema: "public",
				Name:   "address",
				Attributes: []catalog.CompositeAttribute{
					{Name: "street", Type: "text", Nullable: true},
					{Name: "city", Type: "text", Nullable: true},
				},
			},
		},
		Enums: map[string]catalog.EnumType{
			"public.order_status": {Schema: "public", Name: "order_status", Labels: []string{"pending", "shipped"}},
		},
		Domains: map[string]string{},
	}
}

func TestProjectRow(t *testing.T) {
	cat := projectCatalog()
	table, ok := cat.Table("orders")
	require.True(t, ok)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := map[string]any{
		"id":         int64(1),
		"status":     "shipped",
		"shipping":   `("123 Main St",NYC)`,
		"tag_ids":    []any{int32(1), int32(5)},
		"meta":       []byte(`{"priority":"high"}`),
		"payload":    []byte{0xde, 0xad},
		"created_at": created,
	}

	out := ProjectRow(cat, table, row)

	assert.Equal(t, int64(1), out["id"])
	assert.Equal(t, "shipped", out["status"])
	assert.Equal(t, map[string]any{"street": "123 Main St", "city": "NYC"}, out["shipping"])
	assert.Equal(t, []any{int64(1), int64(5)}, out["tag_ids"])
	assert.Equal(t, map[string]any{"priority": "high"}, out["meta"])
	assert.Equal(t, "dead", out["payload"])
	assert.Equal(t, "2026-03-01T12:00:00Z", out["created_at"])
}

func TestParseCompositeText(t *testing.T) {
	cat := projectCatalog()
	ct, ok := cat.CompositeByName("address")
	require.True(t, ok)

	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "unquoted fields",
			input: "(Broadway,NYC)",
			want:  map[string]any{"street": "Broadway", "city": "NYC"},
		},
		{
			name:  "quoted field with comma",
			input: `("1, Main St",NYC)`,
			want:  map[string]any{"street": "1, Main St", "city": "NYC"},
		},
		{
			name:  "escaped quotes",
			input: `("say ""hi""",NYC)`,
			want:  map[string]any{"street": `say "hi"`, "city": "NYC"},
		},
		{
			name:  "null field",
			input: "(,NYC)",
			want:  map[string]any{"street": nil, "city": "NYC"},
		},
		{
			name:  "empty string is not null",
			input: `("",NYC)`,
			want:  map[string]any{"street": "", "city": "NYC"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseCompositeText(cat, ct, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCompositeTextRejectsMalformed(t *testing.T) {
	cat := projectCatalog()
	ct, _ := cat.CompositeByName("address")

	_, err := parseCompositeText(cat, ct, "no-parens")
	assert.Error(t, err)

	_, err = parseCompositeText(cat, ct, "(one)")
	assert.Error(t, err) // field count mismatch
}

func TestParseArrayText(t *testing.T) {
	items := parseArrayText("{a,b,NULL}")
	require.Len(t, items, 3)
	assert.Equal(t, "a", *items[0])
	assert.Equal(t, "b", *items[1])
	assert.Nil(t, items[2])

	items = parseArrayText(`{"x,y",z}`)
	require.Len(t, items, 2)
	assert.Equal(t, "x,y", *items[0])

	assert.Empty(t, parseArrayText("{}"))
	assert.Nil(t, parseArrayText("not-an-array"))
}

func TestProjectValueBoundaries(t *testing.T) {
	cat := projectCatalog()
	table, _ := cat.Table("orders")

	// Null passes through.
	col, _ := table.Column("meta")
	assert.Nil(t, projectValue(cat, col, nil))

	// Unparseable JSON degrades to the raw string.
	assert.Equal(t, "not-json", projectValue(cat, col, []byte("not-json")))
}
