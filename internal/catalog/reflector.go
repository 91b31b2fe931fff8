package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Querier is the subset of pgxpool.Pool the reflector needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reflector loads the relational model of one schema with a fixed number of
// bulk queries, independent of how many tables the schema holds.
type Reflector struct {
	db     Querier
	schema string
}

// NewReflector creates a reflector for the given schema.
func NewReflector(db Querier, schema string) *Reflector {
	return &Reflector{db: db, schema: schema}
}

const relationsQuery = `
	SELECT c.relname, c.relkind::text
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'p', 'v', 'm')
	ORDER BY c.relname`

const columnsQuery = `
	SELECT
		c.relname,
		a.attname,
		t.typname,
		tn.nspname,
		t.typtype::text,
		COALESCE(et.typname, ''),
		COALESCE(et.typtype::text, ''),
		a.attnotnull,
		a.atthasdef,
		pg_catalog.pg_get_expr(d.adbin, d.adrelid),
		a.attnum
	FROM pg_catalog.pg_attribute a
	JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_catalog.pg_type t ON t.oid = a.atttypid
	JOIN pg_catalog.pg_namespace tn ON tn.oid = t.typnamespace
	LEFT JOIN pg_catalog.pg_type et ON et.oid = t.typelem AND t.typlen = -1 AND t.typcategory = 'A'
	LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE n.nspname = $1
	  AND c.relkind IN ('r', 'p', 'v', 'm')
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY c.relname, a.attnum`

const primaryKeysQuery = `
	SELECT c.relname, a.attname
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY (con.conkey)
	WHERE n.nspname = $1
	  AND con.contype = 'p'
	ORDER BY c.relname, array_position(con.conkey, a.attnum)`

const foreignKeysQuery = `
	SELECT
		src.relname,
		sa.attname,
		dst.relname,
		da.attname
	FROM pg_catalog.pg_constraint con
	JOIN pg_catalog.pg_class src ON src.oid = con.conrelid
	JOIN pg_catalog.pg_class dst ON dst.oid = con.confrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = src.relnamespace
	JOIN pg_catalog.pg_namespace dn ON dn.oid = dst.relnamespace
	JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(srcnum, dstnum, ord) ON true
	JOIN pg_catalog.pg_attribute sa ON sa.attrelid = src.oid AND sa.attnum = k.srcnum
	JOIN pg_catalog.pg_attribute da ON da.attrelid = dst.oid AND da.attnum = k.dstnum
	WHERE n.nspname = $1
	  AND dn.nspname = $1
	  AND con.contype = 'f'
	ORDER BY src.relname, con.conname, k.ord`

const enumsQuery = `
	SELECT n.nspname, t.typname, e.enumlabel
	FROM pg_catalog.pg_type t
	JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
	JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
	ORDER BY n.nspname, t.typname, e.enumsortorder`

const compositesQuery = `
	SELECT n.nspname, t.typname, a.attname, at.typname, NOT a.attnotnull
	FROM pg_catalog.pg_type t
	JOIN pg_catalog.pg_class c ON c.oid = t.typrelid AND c.relkind = 'c'
	JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
	JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
	JOIN pg_catalog.pg_type at ON at.oid = a.atttypid
	WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
	ORDER BY n.nspname, t.typname, a.attnum`

// Resolves chains of domains over domains to the ultimate base type.
const domainsQuery = `
	WITH RECURSIVE base (oid, name, baseoid) AS (
		SELECT t.oid, t.typname, t.typbasetype
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'd'
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
		UNION ALL
		SELECT b.oid, b.name, t.typbasetype
		FROM base b
		JOIN pg_catalog.pg_type t ON t.oid = b.baseoid
		WHERE t.typtype = 'd'
	)
	SELECT b.name, t.typname
	FROM base b
	JOIN pg_catalog.pg_type t ON t.oid = b.baseoid
	WHERE t.typtype <> 'd'
	ORDER BY b.name`

type rawRelation struct {
	Name string
	Kind string
}

type rawColumn struct {
	Table      string
	Name       string
	TypeName   string
	TypeSchema string
	TypeType   string
	ElemName   string
	ElemType   string
	NotNull    bool
	HasDefault bool
	Default    *string
	Position   int
}

type rawKeyColumn struct {
	Table  string
	Column string
}

type rawForeignKey struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

type rawEnumLabel struct {
	Schema string
	Name   string
	Label  string
}

type rawCompositeAttr struct {
	Schema   string
	Name     string
	Attr     string
	Type     string
	Nullable bool
}

type rawDomain struct {
	Name string
	Base string
}

// Reflect loads a fresh catalog snapshot.
func (r *Reflector) Reflect(ctx context.Context) (*Catalog, error) {
	start := time.Now()

	relations, err := collect(ctx, r.db, relationsQuery, []any{r.schema}, func(rows pgx.Rows) (rawRelation, error) {
		var rel rawRelation
		err := rows.Scan(&rel.Name, &rel.Kind)
		return rel, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting relations: %w", err)
	}

	columns, err := collect(ctx, r.db, columnsQuery, []any{r.schema}, func(rows pgx.Rows) (rawColumn, error) {
		var col rawColumn
		err := rows.Scan(&col.Table, &col.Name, &col.TypeName, &col.TypeSchema, &col.TypeType,
			&col.ElemName, &col.ElemType, &col.NotNull, &col.HasDefault, &col.Default, &col.Position)
		return col, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting columns: %w", err)
	}

	pks, err := collect(ctx, r.db, primaryKeysQuery, []any{r.schema}, func(rows pgx.Rows) (rawKeyColumn, error) {
		var pk rawKeyColumn
		err := rows.Scan(&pk.Table, &pk.Column)
		return pk, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting primary keys: %w", err)
	}

	fks, err := collect(ctx, r.db, foreignKeysQuery, []any{r.schema}, func(rows pgx.Rows) (rawForeignKey, error) {
		var fk rawForeignKey
		err := rows.Scan(&fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn)
		return fk, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting foreign keys: %w", err)
	}

	enums, err := collect(ctx, r.db, enumsQuery, nil, func(rows pgx.Rows) (rawEnumLabel, error) {
		var e rawEnumLabel
		err := rows.Scan(&e.Schema, &e.Name, &e.Label)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting enums: %w", err)
	}

	composites, err := collect(ctx, r.db, compositesQuery, nil, func(rows pgx.Rows) (rawCompositeAttr, error) {
		var c rawCompositeAttr
		err := rows.Scan(&c.Schema, &c.Name, &c.Attr, &c.Type, &c.Nullable)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting composite types: %w", err)
	}

	domains, err := collect(ctx, r.db, domainsQuery, nil, func(rows pgx.Rows) (rawDomain, error) {
		var d rawDomain
		err := rows.Scan(&d.Name, &d.Base)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("reflecting domains: %w", err)
	}

	cat := assembleCatalog(r.schema, relations, columns, pks, fks, enums, composites, domains)

	log.Debug().
		Str("schema", r.schema).
		Int("tables", len(cat.Tables)).
		Int("enums", len(cat.Enums)).
		Int("composites", len(cat.Composites)).
		Dur("elapsed", time.Since(start)).
		Msg("Schema reflected")

	return cat, nil
}

func collect[T any](ctx context.Context, db Querier, sql string, args []any, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// assembleCatalog builds an immutable snapshot from raw metadata rows. It is
// pure so the shaping rules can be tested without a database.
func assembleCatalog(schema string, relations []rawRelation, columns []rawColumn,
	pks []rawKeyColumn, fks []rawForeignKey, enums []rawEnumLabel,
	composites []rawCompositeAttr, domains []rawDomain) *Catalog {

	cat := &Catalog{
		SnapshotID:  uuid.NewString(),
		Schema:      schema,
		Enums:       make(map[string]EnumType),
		Composites:  make(map[string]CompositeType),
		Domains:     make(map[string]string),
		ReflectedAt: time.Now().UTC(),
	}

	for _, d := range domains {
		cat.Domains[d.Name] = normalizeTypeName(d.Base)
	}

	for _, e := range enums {
		key := e.Schema + "." + e.Name
		et, ok := cat.Enums[key]
		if !ok {
			et = EnumType{Schema: e.Schema, Name: e.Name}
		}
		et.Labels = append(et.Labels, e.Label)
		cat.Enums[key] = et
	}

	for _, c := range composites {
		key := c.Schema + "." + c.Name
		ct, ok := cat.Composites[key]
		if !ok {
			ct = CompositeType{Schema: c.Schema, Name: c.Name}
		}
		ct.Attributes = append(ct.Attributes, CompositeAttribute{
			Name:     c.Attr,
			Type:     normalizeTypeName(c.Type),
			Nullable: c.Nullable,
		})
		cat.Composites[key] = ct
	}

	pkSet := make(map[string]map[string]bool)
	for _, pk := range pks {
		if pkSet[pk.Table] == nil {
			pkSet[pk.Table] = make(map[string]bool)
		}
		pkSet[pk.Table][pk.Column] = true
	}

	columnsByTable := make(map[string][]Column)
	for _, raw := range columns {
		col := cat.shapeColumn(raw)
		col.PrimaryKey = pkSet[raw.Table][raw.Name]
		columnsByTable[raw.Table] = append(columnsByTable[raw.Table], col)
	}

	fksByTable := make(map[string][]ForeignKey)
	for _, fk := range fks {
		fksByTable[fk.Table] = append(fksByTable[fk.Table], ForeignKey{
			Column:           fk.Column,
			ReferencedTable:  fk.RefTable,
			ReferencedColumn: fk.RefColumn,
		})
	}

	for _, rel := range relations {
		cols := columnsByTable[rel.Name]
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
		cat.Tables = append(cat.Tables, Table{
			Schema:      schema,
			Name:        rel.Name,
			IsView:      rel.Kind == "v" || rel.Kind == "m",
			Columns:     cols,
			ForeignKeys: fksByTable[rel.Name],
		})
	}
	sort.Slice(cat.Tables, func(i, j int) bool { return cat.Tables[i].Name < cat.Tables[j].Name })

	return cat
}

// shapeColumn resolves the declared type into the catalog's normalized form.
// Enum, composite and domain columns are classified by the pg_type type
// category when present, with a lookup by name as fallback for backends that
// only report type names.
func (c *Catalog) shapeColumn(raw rawColumn) Column {
	col := Column{
		Name:         raw.Name,
		Nullable:     !raw.NotNull,
		HasDefault:   raw.HasDefault,
		Default:      raw.Default,
		OriginalType: OriginalPlain,
		Position:     raw.Position,
	}

	if raw.ElemName != "" {
		elem, origType, origName := c.resolveScalar(raw.ElemName, raw.TypeSchema, raw.ElemType)
		col.Type = elem + "[]"
		col.OriginalType = origType
		col.OriginalName = origName
		return col
	}

	col.Type, col.OriginalType, col.OriginalName = c.resolveScalar(raw.TypeName, raw.TypeSchema, raw.TypeType)
	return col
}

func (c *Catalog) resolveScalar(typeName, typeSchema, typeType string) (string, OriginalType, string) {
	name := normalizeTypeName(typeName)

	switch typeType {
	case "e":
		return name, OriginalEnum, name
	case "c":
		return name, OriginalComposite, name
	case "d":
		if base, ok := c.Domains[name]; ok {
			return base, OriginalDomain, name
		}
		return name, OriginalDomain, name
	}

	qualified := typeSchema + "." + name
	if _, ok := c.Enums[qualified]; ok {
		return name, OriginalEnum, name
	}
	if _, ok := c.EnumByName(name); ok {
		return name, OriginalEnum, name
	}
	if _, ok := c.Composites[qualified]; ok {
		return name, OriginalComposite, name
	}
	if _, ok := c.CompositeByName(name); ok {
		return name, OriginalComposite, name
	}
	if base, ok := c.Domains[name]; ok {
		return base, OriginalDomain, name
	}

	return name, OriginalPlain, ""
}

// normalizeTypeName strips the array-type underscore prefix pg_type uses.
func normalizeTypeName(name string) string {
	return strings.TrimPrefix(name, "_")
}
