package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

// columnOutputType maps a catalog column to its GraphQL field type,
// including NonNull and List wrapping.
func (b *builder) columnOutputType(col *catalog.Column) graphql.Output {
	var base graphql.Output
	if col.IsArray() {
		base = graphql.NewList(b.scalarOutputType(col, col.ElementType()))
	} else {
		base = b.scalarOutputType(col, col.Type)
	}
	if !col.Nullable {
		return graphql.NewNonNull(base)
	}
	return base
}

func (b *builder) scalarOutputType(col *catalog.Column, typeName string) graphql.Output {
	switch col.OriginalType {
	case catalog.OriginalEnum:
		if enum := b.enumType(typeName); enum != nil {
			return enum
		}
	case catalog.OriginalComposite:
		if obj := b.compositeObject(typeName); obj != nil {
			return obj
		}
	}
	return scalarForPostgresType(typeName)
}

// columnInputType maps a catalog column to its input type. Required marks
// the field NonNull regardless of column nullability.
func (b *builder) columnInputType(col *catalog.Column, required bool) graphql.Input {
	var base graphql.Input
	if col.IsArray() {
		base = graphql.NewList(b.scalarInputType(col, col.ElementType()))
	} else {
		base = b.scalarInputType(col, col.Type)
	}
	if required {
		return graphql.NewNonNull(base)
	}
	return base
}

func (b *builder) scalarInputType(col *catalog.Column, typeName string) graphql.Input {
	switch col.OriginalType {
	case catalog.OriginalEnum:
		if enum := b.enumType(typeName); enum != nil {
			return enum
		}
	case catalog.OriginalComposite:
		if in := b.compositeInput(typeName); in != nil {
			return in
		}
	}
	return scalarInputForPostgresType(typeName)
}

// scalarForPostgresType maps a PostgreSQL scalar type name to a GraphQL
// output scalar. Unknown types degrade to String.
func scalarForPostgresType(typeName string) graphql.Output {
	switch typeName {
	case "int2", "int4", "smallint", "integer", "int", "serial", "serial4", "smallserial", "serial2":
		return graphql.Int
	case "int8", "bigint", "bigserial", "serial8":
		return BigIntScalar
	case "float4", "float8", "real", "double precision", "numeric", "decimal", "money":
		return graphql.Float
	case "bool", "boolean":
		return graphql.Boolean
	case "uuid":
		return UUIDScalar
	case "json", "jsonb":
		return JSONScalar
	case "date", "time", "timetz", "timestamp", "timestamptz", "interval",
		"time without time zone", "time with time zone",
		"timestamp without time zone", "timestamp with time zone":
		return DateTimeScalar
	case "point", "line", "lseg", "box", "path", "polygon", "circle",
		"int4range", "int8range", "numrange", "tsrange", "tstzrange", "daterange",
		"vector":
		return JSONScalar
	default:
		// text family, bytea (hex), xml, inet/cidr/macaddr, bit/varbit,
		// tsvector and anything else travels as a string.
		return graphql.String
	}
}

func scalarInputForPostgresType(typeName string) graphql.Input {
	switch typeName {
	case "int2", "int4", "smallint", "integer", "int", "serial", "serial4", "smallserial", "serial2":
		return graphql.Int
	case "int8", "bigint", "bigserial", "serial8":
		return BigIntScalar
	case "float4", "float8", "real", "double precision", "numeric", "decimal", "money":
		return graphql.Float
	case "bool", "boolean":
		return graphql.Boolean
	case "uuid":
		return UUIDScalar
	case "json", "jsonb":
		return JSONScalar
	case "date", "time", "timetz", "timestamp", "timestamptz", "interval",
		"time without time zone", "time with time zone",
		"timestamp without time zone", "timestamp with time zone":
		return DateTimeScalar
	default:
		return graphql.String
	}
}

// filterKind classifies a column for filter-input selection. Array columns
// filter on their element type.
func filterKind(col *catalog.Column) string {
	typeName := col.Type
	if col.IsArray() {
		typeName = col.ElementType()
	}
	if col.OriginalType == catalog.OriginalEnum {
		return filterKindString
	}
	switch typeName {
	case "int2", "int4", "int8", "smallint", "integer", "int", "bigint",
		"serial", "serial4", "serial8", "bigserial", "smallserial", "serial2":
		return filterKindInt
	case "float4", "float8", "real", "double precision", "numeric", "decimal", "money":
		return filterKindFloat
	case "bool", "boolean":
		return filterKindBoolean
	case "date", "time", "timetz", "timestamp", "timestamptz", "interval",
		"time without time zone", "time with time zone",
		"timestamp without time zone", "timestamp with time zone":
		return filterKindDateTime
	case "json", "jsonb":
		return filterKindJSON
	default:
		return filterKindString
	}
}
