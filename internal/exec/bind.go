package exec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

// Accepted date-time layouts for user-supplied temporal values.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// BindValue coerces a GraphQL input value to a parameter of the column's
// declared type. Unparseable values bind as strings and the database gets the
// last word on validity.
func BindValue(cat *catalog.Catalog, col *catalog.Column, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if col.IsArray() {
		return bindArray(cat, col, value)
	}
	return bindScalar(cat, col, col.ElementType(), value)
}

func bindArray(cat *catalog.Catalog, col *catalog.Column, value any) (any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, Argumentf("column %q expects a list", col.Name)
	}

	elemType := col.ElementType()
	switch {
	case isIntegerType(elemType):
		out := make([]int64, 0, len(list))
		for _, item := range list {
			if item == nil {
				return bindGenericArray(cat, col, elemType, list)
			}
			n, err := toInt64(item)
			if err != nil {
				return nil, Argumentf("column %q: %v", col.Name, err)
			}
			out = append(out, n)
		}
		return out, nil
	case isFloatType(elemType):
		out := make([]float64, 0, len(list))
		for _, item := range list {
			if item == nil {
				return bindGenericArray(cat, col, elemType, list)
			}
			f, err := toFloat64(item)
			if err != nil {
				return nil, Argumentf("column %q: %v", col.Name, err)
			}
			out = append(out, f)
		}
		return out, nil
	case elemType == "bool":
		out := make([]bool, 0, len(list))
		for _, item := range list {
			b, ok := item.(bool)
			if !ok {
				return bindGenericArray(cat, col, elemType, list)
			}
			out = append(out, b)
		}
		return out, nil
	default:
		return bindGenericArray(cat, col, elemType, list)
	}
}

// bindGenericArray serializes each element with the scalar rules and binds a
// string array; Postgres casts per the column's declared type.
func bindGenericArray(cat *catalog.Catalog, col *catalog.Column, elemType string, list []any) (any, error) {
	out := make([]*string, 0, len(list))
	for _, item := range list {
		if item == nil {
			out = append(out, nil)
			continue
		}
		bound, err := bindScalar(cat, col, elemType, item)
		if err != nil {
			return nil, err
		}
		s := stringifyBound(bound)
		out = append(out, &s)
	}
	return out, nil
}

func bindScalar(cat *catalog.Catalog, col *catalog.Column, typeName string, value any) (any, error) {
	if col.OriginalType == catalog.OriginalComposite {
		if m, ok := value.(map[string]any); ok {
			ct, found := cat.CompositeByName(col.OriginalName)
			if !found {
				return nil, Schemaf("composite type %q not in catalog", col.OriginalName)
			}
			return serializeComposite(cat, ct, m)
		}
	}

	switch {
	case isIntegerType(typeName):
		n, err := toInt64(value)
		if err != nil {
			return fallbackString(value), nil
		}
		return n, nil
	case isFloatType(typeName):
		f, err := toFloat64(value)
		if err != nil {
			return fallbackString(value), nil
		}
		return f, nil
	case typeName == "bool":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return fallbackString(value), nil
	case typeName == "uuid":
		s := fallbackString(value)
		if _, err := uuid.Parse(s); err != nil {
			return nil, Argumentf("column %q: invalid UUID %q", col.Name, s)
		}
		return s, nil
	case typeName == "date", typeName == "timestamp", typeName == "timestamptz":
		if t, ok := value.(time.Time); ok {
			return t, nil
		}
		s := fallbackString(value)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return s, nil
	case typeName == "json", typeName == "jsonb":
		switch v := value.(type) {
		case string:
			return v, nil
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return nil, Argumentf("column %q: invalid JSON value: %v", col.Name, err)
			}
			return string(data), nil
		}
	default:
		// enums, text, interval, inet, bytea, xml, bit: bound as text.
		return fallbackString(value), nil
	}
}

// serializeComposite renders a map into PostgreSQL's (v1,v2,...) record text,
// following the composite's attribute order from the catalog.
func serializeComposite(cat *catalog.Catalog, ct catalog.CompositeType, value map[string]any) (string, error) {
	parts := make([]string, 0, len(ct.Attributes))
	for _, attr := range ct.Attributes {
		v, ok := value[attr.Name]
		if !ok || v == nil {
			parts = append(parts, "")
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if nestedType, found := cat.CompositeByName(attr.Type); found {
				text, err := serializeComposite(cat, nestedType, nested)
				if err != nil {
					return "", err
				}
				parts = append(parts, quoteCompositeField(text))
				continue
			}
		}
		parts = append(parts, quoteCompositeField(fallbackString(v)))
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

// quoteCompositeField quotes a record field when it contains characters that
// would break the (a,b) syntax.
func quoteCompositeField(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, `,()"\ `) {
		return s
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `""`)
	return `"` + escaped + `"`
}

func isIntegerType(t string) bool {
	switch t {
	case "int2", "int4", "int8", "serial", "smallserial", "bigserial", "smallint", "integer", "bigint":
		return true
	}
	return false
}

func isFloatType(t string) bool {
	switch t {
	case "float4", "float8", "real", "numeric", "decimal", "double precision":
		return true
	}
	return false
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func fallbackString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringifyBound(v any) string {
	switch b := v.(type) {
	case string:
		return b
	case time.Time:
		return b.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
