package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

func postsTable() *catalog.Table {
	return &catalog.Table{
		Schema: "public",
		Name:   "posts",
		Columns: []catalog.Column{
			{Name: "id", Type: "int8", PrimaryKey: true},
			{Name: "title", Type: "text"},
			{Name: "views", Type: "int4"},
			{Name: "tag_ids", Type: "int4[]"},
			{Name: "meta", Type: "jsonb"},
		},
	}
}

func TestBuildSelectWithFilter(t *testing.T) {
	table := postsTable()

	tests := []struct {
		name         string
		filter       map[string]any
		expectedSQL  string
		expectedArgs []any
	}{
		{
			name:         "equality",
			filter:       map[string]any{"title": map[string]any{"eq": "hello"}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "title" = $1`,
			expectedArgs: []any{"hello"},
		},
		{
			name:         "range on one column renders in operator order",
			filter:       map[string]any{"views": map[string]any{"gte": 10, "lt": 100}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "views" >= $1 AND "views" < $2`,
			expectedArgs: []any{10, 100},
		},
		{
			name:         "in list",
			filter:       map[string]any{"id": map[string]any{"in": []any{1, 2, 3}}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "id" = ANY($1)`,
			expectedArgs: []any{[]any{1, 2, 3}},
		},
		{
			name:         "notIn list",
			filter:       map[string]any{"id": map[string]any{"notIn": []any{7}}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "id" <> ALL($1)`,
			expectedArgs: []any{[]any{7}},
		},
		{
			name:         "string contains wraps pattern",
			filter:       map[string]any{"title": map[string]any{"contains": "gra"}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "title" LIKE $1`,
			expectedArgs: []any{"%gra%"},
		},
		{
			name:         "startsWith and endsWith",
			filter:       map[string]any{"title": map[string]any{"endsWith": "!", "startsWith": "Go"}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "title" LIKE $1 AND "title" LIKE $2`,
			expectedArgs: []any{"%!", "Go%"},
		},
		{
			name:        "isNull true and isNotNull",
			filter:      map[string]any{"views": map[string]any{"isNull": true}},
			expectedSQL: `SELECT * FROM "public"."posts" WHERE "views" IS NULL`,
		},
		{
			name:         "array contains",
			filter:       map[string]any{"tag_ids": map[string]any{"contains": []any{5}}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "tag_ids" @> $1`,
			expectedArgs: []any{[]any{5}},
		},
		{
			name:         "json contains casts to jsonb",
			filter:       map[string]any{"meta": map[string]any{"contains": map[string]any{"draft": true}}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "meta" @> $1::jsonb`,
			expectedArgs: []any{`{"draft":true}`},
		},
		{
			name:         "json hasKey",
			filter:       map[string]any{"meta": map[string]any{"hasKey": "draft"}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "meta" ? $1`,
			expectedArgs: []any{"draft"},
		},
		{
			name:         "json hasKeys",
			filter:       map[string]any{"meta": map[string]any{"hasKeys": []any{"a", "b"}}},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "meta" ?& $1`,
			expectedArgs: []any{[]string{"a", "b"}},
		},
		{
			name: "nested or",
			filter: map[string]any{
				"views": map[string]any{"gt": 0},
				"or": []any{
					map[string]any{"title": map[string]any{"eq": "a"}},
					map[string]any{"title": map[string]any{"eq": "b"}},
				},
			},
			expectedSQL:  `SELECT * FROM "public"."posts" WHERE "views" > $1 AND ("title" = $2 OR "title" = $3)`,
			expectedArgs: []any{0, "a", "b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := DecodeFilter(tc.filter)
			require.NoError(t, err)

			b := NewBuilder("public", "posts")
			require.NoError(t, b.WhereFilter(table, filter))
			sql, args := b.BuildSelect()

			assert.Equal(t, tc.expectedSQL, sql)
			assert.Equal(t, tc.expectedArgs, args)
		})
	}
}

func TestBuildSelectPathOperators(t *testing.T) {
	table := postsTable()

	filter, err := DecodeFilter(map[string]any{
		"meta": map[string]any{
			"pathText": map[string]any{"path": []any{"author", "name"}, "eq": "kim"},
		},
	})
	require.NoError(t, err)

	b := NewBuilder("public", "posts")
	require.NoError(t, b.WhereFilter(table, filter))
	sql, args := b.BuildSelect()

	assert.Equal(t, `SELECT * FROM "public"."posts" WHERE "meta" #>> $1 = $2`, sql)
	assert.Equal(t, []any{[]string{"author", "name"}, "kim"}, args)
}

func TestBuildSelectOrderLimitOffset(t *testing.T) {
	b := NewBuilder("public", "posts").
		WithColumns([]string{"id", "title"}).
		WithOrder([]OrderBy{{Column: "views", Desc: true}, {Column: "id"}}).
		WithLimit(10).
		WithOffset(20)

	sql, args := b.BuildSelect()
	assert.Equal(t, `SELECT "id", "title" FROM "public"."posts" ORDER BY "views" DESC, "id" ASC LIMIT 10 OFFSET 20`, sql)
	assert.Empty(t, args)
}

func TestBuildCountSharesWhere(t *testing.T) {
	table := postsTable()
	filter, err := DecodeFilter(map[string]any{"views": map[string]any{"gt": 5}})
	require.NoError(t, err)

	b := NewBuilder("public", "posts")
	require.NoError(t, b.WhereFilter(table, filter))
	sql, args := b.BuildCount()

	assert.Equal(t, `SELECT COUNT(*) FROM "public"."posts" WHERE "views" > $1`, sql)
	assert.Equal(t, []any{5}, args)
}

func TestBuildInsertSortedColumns(t *testing.T) {
	b := NewBuilder("public", "posts").WithReturning([]string{"*"})
	sql, args := b.BuildInsert(map[string]any{
		"title": "hi",
		"id":    int64(1),
		"views": 0,
	})

	assert.Equal(t, `INSERT INTO "public"."posts" ("id", "title", "views") VALUES ($1, $2, $3) RETURNING *`, sql)
	assert.Equal(t, []any{int64(1), "hi", 0}, args)
}

func TestBuildUpdateNumbersSetBeforeWhere(t *testing.T) {
	b := NewBuilder("public", "posts").WithReturning([]string{"id", "title"})
	b.WhereEquals("id", int64(7))
	sql, args := b.BuildUpdate(map[string]any{"title": "new", "views": 3})

	assert.Equal(t, `UPDATE "public"."posts" SET "title" = $1, "views" = $2 WHERE "id" = $3 RETURNING "id", "title"`, sql)
	assert.Equal(t, []any{"new", 3, int64(7)}, args)
}

func TestBuildDelete(t *testing.T) {
	b := NewBuilder("public", "posts").WithReturning([]string{"id"})
	b.WhereEquals("id", int64(9))
	sql, args := b.BuildDelete()

	assert.Equal(t, `DELETE FROM "public"."posts" WHERE "id" = $1 RETURNING "id"`, sql)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestWhereOrTopLevel(t *testing.T) {
	table := postsTable()
	f1, err := DecodeFilter(map[string]any{"title": map[string]any{"eq": "a"}})
	require.NoError(t, err)
	f2, err := DecodeFilter(map[string]any{"views": map[string]any{"gt": 10}})
	require.NoError(t, err)

	b := NewBuilder("public", "posts")
	require.NoError(t, b.WhereOr(table, []*Filter{f1, f2}))
	sql, args := b.BuildSelect()

	assert.Equal(t, `SELECT * FROM "public"."posts" WHERE ("title" = $1 OR "views" > $2)`, sql)
	assert.Equal(t, []any{"a", 10}, args)
}

func TestDecodeFilterRejectsMalformedInput(t *testing.T) {
	_, err := DecodeFilter(map[string]any{"title": "not-an-object"})
	assert.Error(t, err)

	_, err = DecodeFilter(map[string]any{"or": "not-a-list"})
	assert.Error(t, err)
}

func TestWhereFilterRejectsUnknownColumn(t *testing.T) {
	table := postsTable()
	filter, err := DecodeFilter(map[string]any{"ghost": map[string]any{"eq": 1}})
	require.NoError(t, err)

	b := NewBuilder("public", "posts")
	assert.Error(t, b.WhereFilter(table, filter))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdentifier("users"))
	assert.Equal(t, `"we""ird"`, quoteIdentifier(`we"ird`))
}
