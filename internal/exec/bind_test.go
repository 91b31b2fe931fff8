package exec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

func bindCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Schema: "public",
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
		Enums:   map[string]catalog.EnumType{},
		Domains: map[string]string{},
	}
}

func TestBindValueIntegers(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{Name: "id", Type: "int8"}

	v, err := BindValue(cat, col, float64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = BindValue(cat, col, "17")
	require.NoError(t, err)
	assert.Equal(t, int64(17), v)

	// Non-numeric falls back to string; the database validates.
	v, err = BindValue(cat, col, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestBindValueUUID(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{Name: "id", Type: "uuid"}

	v, err := BindValue(cat, col, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)

	_, err = BindValue(cat, col, "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, KindArgument, KindOf(err))
}

func TestBindValueDateTimeGrammars(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{Name: "created_at", Type: "timestamptz"}

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2026-01-15 10:30:00", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"2026-01-15 10:30:00.250", time.Date(2026, 1, 15, 10, 30, 0, 250_000_000, time.UTC)},
		{"2026-01-15T10:30:00", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"2026-01-15T10:30:00Z", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"2026-01-15T10:30:00+02:00", time.Date(2026, 1, 15, 10, 30, 0, 0, time.FixedZone("", 2*3600))},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			v, err := BindValue(cat, col, tc.input)
			require.NoError(t, err)
			parsed, ok := v.(time.Time)
			require.True(t, ok, "expected time.Time, got %T", v)
			assert.True(t, tc.want.Equal(parsed))
		})
	}

	// Unparseable binds as string.
	v, err := BindValue(cat, col, "soon")
	require.NoError(t, err)
	assert.Equal(t, "soon", v)
}

func TestBindValueJSON(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{Name: "meta", Type: "jsonb"}

	v, err := BindValue(cat, col, map[string]any{"a": float64(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, v.(string))

	v, err = BindValue(cat, col, `{"raw":true}`)
	require.NoError(t, err)
	assert.Equal(t, `{"raw":true}`, v)
}

func TestBindValueIntArray(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{Name: "tag_ids", Type: "int4[]"}

	v, err := BindValue(cat, col, []any{float64(1), float64(5), float64(12)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 12}, v)

	_, err = BindValue(cat, col, "not-a-list")
	require.Error(t, err)
	assert.Equal(t, KindArgument, KindOf(err))
}

func TestBindValueComposite(t *testing.T) {
	cat := bindCatalog()
	col := &catalog.Column{
		Name:         "shipping",
		Type:         "address",
		OriginalType: catalog.OriginalComposite,
		OriginalName: "address",
	}

	v, err := BindValue(cat, col, map[string]any{"street": "123 Main St", "city": "NYC"})
	require.NoError(t, err)
	assert.Equal(t, `("123 Main St",NYC)`, v)

	// Missing attribute serializes as NULL field.
	v, err = BindValue(cat, col, map[string]any{"city": "NYC"})
	require.NoError(t, err)
	assert.Equal(t, `(,NYC)`, v)
}

func TestQuoteCompositeField(t *testing.T) {
	assert.Equal(t, "plain", quoteCompositeField("plain"))
	assert.Equal(t, `""`, quoteCompositeField(""))
	assert.Equal(t, `"a,b"`, quoteCompositeField("a,b"))
	assert.Equal(t, `"say ""hi"""`, quoteCompositeField(`say "hi"`))
	assert.Equal(t, `"back\\slash"`, quoteCompositeField(`back\slash`))
}
