package sqlgen

import (
	"fmt"
	"sort"
	"strings"
)

// Filter operators accepted in per-column filter objects.
const (
	OpEq          = "eq"
	OpNeq         = "neq"
	OpGt          = "gt"
	OpGte         = "gte"
	OpLt          = "lt"
	OpLte         = "lte"
	OpLike        = "like"
	OpILike       = "ilike"
	OpIn          = "in"
	OpNotIn       = "notIn"
	OpIsNull      = "isNull"
	OpIsNotNull   = "isNotNull"
	OpContains    = "contains"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
	OpHasKey      = "hasKey"
	OpHasKeys     = "hasKeys"
	OpHasAnyKeys  = "hasAnyKeys"
	OpContainedBy = "containedBy"
	OpPath        = "path"
	OpPathText    = "pathText"
)

// Predicate is one operator applied to one column.
type Predicate struct {
	Op    string
	Value any
}

// ColumnPredicates groups the predicates of one column, in a fixed order.
type ColumnPredicates struct {
	Column string
	Ops    []Predicate
}

// Filter is the decoded form of a filter input object: a conjunction of
// per-column predicates plus an optional or-list of nested filters.
type Filter struct {
	Columns []ColumnPredicates
	Or      []*Filter
}

// IsEmpty reports whether the filter constrains anything.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Columns) == 0 && len(f.Or) == 0)
}

// DecodeFilter converts a GraphQL filter input value into a Filter tree.
// Column and operator iteration order is sorted so the generated SQL is
// deterministic for a given input.
func DecodeFilter(input map[string]any) (*Filter, error) {
	if input == nil {
		return nil, nil
	}

	f := &Filter{}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := input[key]
		if key == "or" {
			list, ok := value.([]any)
			if !ok {
				return nil, fmt.Errorf("filter field %q must be a list of filters", key)
			}
			for _, item := range list {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("filter field %q entries must be filter objects", key)
				}
				decoded, err := DecodeFilter(sub)
				if err != nil {
					return nil, err
				}
				if !decoded.IsEmpty() {
					f.Or = append(f.Or, decoded)
				}
			}
			continue
		}

		ops, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter for column %q must be an operator object", key)
		}
		cp := ColumnPredicates{Column: key}

		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)

		for _, op := range opNames {
			cp.Ops = append(cp.Ops, Predicate{Op: op, Value: ops[op]})
		}
		if len(cp.Ops) > 0 {
			f.Columns = append(f.Columns, cp)
		}
	}

	return f, nil
}

// OrderBy is one ordering term.
type OrderBy struct {
	Column string
	Desc   bool
}

// DecodeOrderBy converts an orderBy input value, accepting a single object or
// a list of objects mapping column names to ASC/DESC.
func DecodeOrderBy(input any) ([]OrderBy, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return decodeOrderObject(v)
	case []any:
		var out []OrderBy
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("orderBy entries must be objects")
			}
			terms, err := decodeOrderObject(obj)
			if err != nil {
				return nil, err
			}
			out = append(out, terms...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("orderBy must be an object or a list of objects")
	}
}

func decodeOrderObject(obj map[string]any) ([]OrderBy, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []OrderBy
	for _, col := range keys {
		dir, ok := obj[col].(string)
		if !ok {
			return nil, fmt.Errorf("orderBy direction for %q must be ASC or DESC", col)
		}
		switch strings.ToUpper(dir) {
		case "ASC":
			out = append(out, OrderBy{Column: col})
		case "DESC":
			out = append(out, OrderBy{Column: col, Desc: true})
		default:
			return nil, fmt.Errorf("orderBy direction for %q must be ASC or DESC, got %q", col, dir)
		}
	}
	return out, nil
}

// EnsureTiebreaker appends the primary-key columns to the ordering when they
// are not already present, giving connections a stable total order. Tables
// without a primary key (views) keep the ordering as-is.
func EnsureTiebreaker(order []OrderBy, pkColumns []string) []OrderBy {
	present := make(map[string]bool, len(order))
	for _, o := range order {
		present[o.Column] = true
	}
	out := make([]OrderBy, len(order), len(order)+len(pkColumns))
	copy(out, order)
	for _, pk := range pkColumns {
		if !present[pk] {
			out = append(out, OrderBy{Column: pk})
		}
	}
	return out
}
