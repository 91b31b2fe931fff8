package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	key := map[string]any{"id": float64(42), "created_at": "2026-01-15T10:00:00Z"}

	cursor, err := EncodeCursor(key)
	require.NoError(t, err)

	decoded, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!!")
	assert.Error(t, err)

	_, err = DecodeCursor("aGVsbG8=") // valid base64, not JSON
	assert.Error(t, err)
}

func TestOrderingKey(t *testing.T) {
	row := map[string]any{"id": 7, "title": "x", "views": 3}
	key := OrderingKey(row, []OrderBy{{Column: "views", Desc: true}, {Column: "id"}})
	assert.Equal(t, map[string]any{"views": 3, "id": 7}, key)
}

func TestCursorPredicateSingleColumn(t *testing.T) {
	b := NewBuilder("public", "posts")
	err := b.WhereCursor([]OrderBy{{Column: "id"}}, map[string]any{"id": 10}, false)
	require.NoError(t, err)

	sql, args := b.BuildSelect()
	assert.Equal(t, `SELECT * FROM "public"."posts" WHERE "id" > $1`, sql)
	assert.Equal(t, []any{10}, args)
}

func TestCursorPredicateMixedDirections(t *testing.T) {
	order := []OrderBy{{Column: "views", Desc: true}, {Column: "id"}}
	cursor := map[string]any{"views": 100, "id": 5}

	b := NewBuilder("public", "posts")
	require.NoError(t, b.WhereCursor(order, cursor, false))
	sql, args := b.BuildSelect()

	assert.Equal(t, `SELECT * FROM "public"."posts" WHERE ("views" < $1 OR ("views" = $2 AND "id" > $3))`, sql)
	assert.Equal(t, []any{100, 100, 5}, args)
}

func TestCursorPredicateBeforeFlipsComparisons(t *testing.T) {
	order := []OrderBy{{Column: "id"}}
	b := NewBuilder("public", "posts")
	require.NoError(t, b.WhereCursor(order, map[string]any{"id": 10}, true))

	sql, _ := b.BuildSelect()
	assert.Equal(t, `SELECT * FROM "public"."posts" WHERE "id" < $1`, sql)
}

func TestCursorPredicateMissingColumn(t *testing.T) {
	b := NewBuilder("public", "posts")
	err := b.WhereCursor([]OrderBy{{Column: "id"}}, map[string]any{"views": 1}, false)
	assert.Error(t, err)
}

func TestEnsureTiebreaker(t *testing.T) {
	order := EnsureTiebreaker([]OrderBy{{Column: "views", Desc: true}}, []string{"id"})
	assert.Equal(t, []OrderBy{{Column: "views", Desc: true}, {Column: "id"}}, order)

	// Already present: unchanged.
	order = EnsureTiebreaker([]OrderBy{{Column: "id", Desc: true}}, []string{"id"})
	assert.Equal(t, []OrderBy{{Column: "id", Desc: true}}, order)

	// No PK (views): ordering kept as-is.
	order = EnsureTiebreaker([]OrderBy{{Column: "total"}}, nil)
	assert.Equal(t, []OrderBy{{Column: "total"}}, order)
}

func TestEnsureTiebreakerCopiesCallerSlice(t *testing.T) {
	backing := make([]OrderBy, 1, 4)
	backing[0] = OrderBy{Column: "views", Desc: true}
	caller := backing[:1]

	out := EnsureTiebreaker(caller, []string{"id"})
	assert.Equal(t, []OrderBy{{Column: "views", Desc: true}, {Column: "id"}}, out)

	// The caller's spare capacity must stay untouched.
	grown := backing[:2]
	assert.Equal(t, OrderBy{}, grown[1])
}

func TestDecodeOrderBy(t *testing.T) {
	terms, err := DecodeOrderBy(map[string]any{"id": "ASC"})
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{{Column: "id"}}, terms)

	terms, err = DecodeOrderBy([]any{
		map[string]any{"views": "DESC"},
		map[string]any{"id": "ASC"},
	})
	require.NoError(t, err)
	assert.Equal(t, []OrderBy{{Column: "views", Desc: true}, {Column: "id"}}, terms)

	_, err = DecodeOrderBy(map[string]any{"id": "SIDEWAYS"})
	assert.Error(t, err)
}
