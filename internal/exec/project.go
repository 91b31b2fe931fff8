package exec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

// ProjectRow converts driver values into GraphQL-shaped values using the
// catalog: arrays become lists, composites become attribute-keyed maps, enums
// become strings, JSON becomes structured data, bytea becomes hex.
func ProjectRow(cat *catalog.Catalog, t *catalog.Table, row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for name, value := range row {
		col, ok := t.Column(name)
		if !ok {
			out[name] = value
			continue
		}
		out[name] = projectValue(cat, col, value)
	}
	return out
}

func projectValue(cat *catalog.Catalog, col *catalog.Column, value any) any {
	if value == nil {
		return nil
	}

	if col.IsArray() {
		return projectArray(cat, col, value)
	}
	return projectScalar(cat, col, col.ElementType(), value)
}

func projectArray(cat *catalog.Catalog, col *catalog.Column, value any) any {
	elemType := col.ElementType()

	switch list := value.(type) {
	case []any:
		out := make([]any, len(list))
		for i, item := range list {
			if item == nil {
				out[i] = nil
				continue
			}
			out[i] = projectScalar(cat, col, elemType, item)
		}
		return out
	case string:
		// Unregistered element types arrive as {a,b,c} text.
		items := parseArrayText(list)
		out := make([]any, len(items))
		for i, item := range items {
			if item == nil {
				out[i] = nil
				continue
			}
			out[i] = projectScalar(cat, col, elemType, *item)
		}
		return out
	default:
		return reflectSliceToList(cat, col, elemType, value)
	}
}

func projectScalar(cat *catalog.Catalog, col *catalog.Column, typeName string, value any) any {
	if col.OriginalType == catalog.OriginalComposite {
		if text, ok := value.(string); ok {
			ct, found := cat.CompositeByName(col.OriginalName)
			if found {
				if m, err := parseCompositeText(cat, ct, text); err == nil {
					return m
				}
			}
		}
		return value
	}

	switch typeName {
	case "json", "jsonb":
		switch v := value.(type) {
		case []byte:
			return decodeJSON(v)
		case string:
			return decodeJSON([]byte(v))
		default:
			return v
		}
	case "bytea":
		if b, ok := value.([]byte); ok {
			return hex.EncodeToString(b)
		}
		return value
	case "uuid":
		switch v := value.(type) {
		case [16]byte:
			return uuid.UUID(v).String()
		case uuid.UUID:
			return v.String()
		default:
			return value
		}
	case "timestamptz", "timestamp":
		if t, ok := value.(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
		return stringOrValue(value)
	case "date":
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02")
		}
		return stringOrValue(value)
	case "interval", "timetz", "time", "xml", "inet", "cidr", "macaddr", "macaddr8", "bit", "varbit":
		return stringOrValue(value)
	default:
		switch v := value.(type) {
		case []byte:
			return string(v)
		case netip.Prefix:
			return v.String()
		case netip.Addr:
			return v.String()
		default:
			return v
		}
	}
}

func stringOrValue(value any) any {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func decodeJSON(data []byte) any {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}
	return out
}

// reflectSliceToList handles typed driver slices ([]int32, []string, ...).
func reflectSliceToList(cat *catalog.Catalog, col *catalog.Column, elemType string, value any) any {
	switch list := value.(type) {
	case []int16:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = int64(v)
		}
		return out
	case []int32:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = int64(v)
		}
		return out
	case []int64:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	case []float32:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = float64(v)
		}
		return out
	case []float64:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	case []bool:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = v
		}
		return out
	case []string:
		out := make([]any, len(list))
		for i, v := range list {
			out[i] = projectScalar(cat, col, elemType, v)
		}
		return out
	default:
		return value
	}
}

// parseCompositeText parses PostgreSQL's (f1,f2,...) record text into a map
// keyed by the composite's attribute names. Quoted fields are unquoted;
// commas inside nested parentheses and quotes are respected.
func parseCompositeText(cat *catalog.Catalog, ct catalog.CompositeType, text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '(' || trimmed[len(trimmed)-1] != ')' {
		return nil, fmt.Errorf("malformed composite value %q", text)
	}

	fields := splitCompositeFields(trimmed[1 : len(trimmed)-1])
	if len(fields) != len(ct.Attributes) {
		return nil, fmt.Errorf("composite %s has %d attributes, value has %d fields",
			ct.Name, len(ct.Attributes), len(fields))
	}

	out := make(map[string]any, len(fields))
	for i, attr := range ct.Attributes {
		field := fields[i]
		if field == nil {
			out[attr.Name] = nil
			continue
		}
		if nested, found := cat.CompositeByName(attr.Type); found {
			if m, err := parseCompositeText(cat, nested, *field); err == nil {
				out[attr.Name] = m
				continue
			}
		}
		out[attr.Name] = *field
	}
	return out, nil
}

// splitCompositeFields splits the inside of a record literal on top-level
// commas. A nil entry is a SQL NULL (empty unquoted field).
func splitCompositeFields(s string) []*string {
	var fields []*string
	var current strings.Builder
	depth := 0
	inQuotes := false
	quoted := false

	flush := func() {
		text := current.String()
		current.Reset()
		wasQuoted := quoted
		quoted = false
		if text == "" && !wasQuoted {
			fields = append(fields, nil)
			return
		}
		fields = append(fields, &text)
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case inQuotes:
			if ch == '\\' && i+1 < len(s) {
				i++
				current.WriteByte(s[i])
				continue
			}
			if ch == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					current.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			current.WriteByte(ch)
		case ch == '"':
			inQuotes = true
			quoted = true
		case ch == '(':
			depth++
			current.WriteByte(ch)
		case ch == ')':
			depth--
			current.WriteByte(ch)
		case ch == ',' && depth == 0:
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()

	return fields
}

// parseArrayText parses PostgreSQL's {a,b,c} array text. A nil entry is NULL.
func parseArrayText(s string) []*string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return nil
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return []*string{}
	}

	var items []*string
	var current strings.Builder
	depth := 0
	inQuotes := false
	quoted := false

	flush := func() {
		text := current.String()
		current.Reset()
		wasQuoted := quoted
		quoted = false
		if !wasQuoted && text == "NULL" {
			items = append(items, nil)
			return
		}
		items = append(items, &text)
	}

	for i := 0; i < len(inner); i++ {
		ch := inner[i]
		switch {
		case inQuotes:
			if ch == '\\' && i+1 < len(inner) {
				i++
				current.WriteByte(inner[i])
				continue
			}
			if ch == '"' {
				inQuotes = false
				continue
			}
			current.WriteByte(ch)
		case ch == '"':
			inQuotes = true
			quoted = true
		case ch == '(' || ch == '{':
			depth++
			current.WriteByte(ch)
		case ch == ')' || ch == '}':
			depth--
			current.WriteByte(ch)
		case ch == ',' && depth == 0:
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()

	return items
}
