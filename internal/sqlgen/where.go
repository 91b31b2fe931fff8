package sqlgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

// lowerFilter renders a filter tree into one SQL fragment. Per-column
// predicates join with AND; the or-list becomes a parenthesized disjunction
// appended as one more conjunct.
func lowerFilter(t *catalog.Table, f *Filter, bind func(any) string) (string, error) {
	if f.IsEmpty() {
		return "", nil
	}

	var conjuncts []string
	for _, cp := range f.Columns {
		col, ok := t.Column(cp.Column)
		if !ok {
			return "", fmt.Errorf("unknown column %q on table %q", cp.Column, t.Name)
		}
		for _, p := range cp.Ops {
			clause, err := lowerPredicate(col, p, bind)
			if err != nil {
				return "", err
			}
			if clause != "" {
				conjuncts = append(conjuncts, clause)
			}
		}
	}

	if len(f.Or) > 0 {
		var disjuncts []string
		for _, sub := range f.Or {
			clause, err := lowerFilter(t, sub, bind)
			if err != nil {
				return "", err
			}
			if clause != "" {
				disjuncts = append(disjuncts, clause)
			}
		}
		if len(disjuncts) == 1 {
			conjuncts = append(conjuncts, disjuncts[0])
		} else if len(disjuncts) > 1 {
			conjuncts = append(conjuncts, "("+strings.Join(disjuncts, " OR ")+")")
		}
	}

	if len(conjuncts) == 0 {
		return "", nil
	}
	return strings.Join(conjuncts, " AND "), nil
}

// lowerPredicate renders one operator applied to one column. Every value goes
// through the binder; nothing is interpolated into the SQL text.
func lowerPredicate(col *catalog.Column, p Predicate, bind func(any) string) (string, error) {
	quoted := quoteIdentifier(col.Name)
	isJSON := col.ElementType() == "json" || col.ElementType() == "jsonb"

	switch p.Op {
	case OpEq:
		if p.Value == nil {
			return fmt.Sprintf("%s IS NULL", quoted), nil
		}
		return fmt.Sprintf("%s = %s", quoted, bind(p.Value)), nil
	case OpNeq:
		if p.Value == nil {
			return fmt.Sprintf("%s IS NOT NULL", quoted), nil
		}
		return fmt.Sprintf("%s <> %s", quoted, bind(p.Value)), nil
	case OpGt:
		return fmt.Sprintf("%s > %s", quoted, bind(p.Value)), nil
	case OpGte:
		return fmt.Sprintf("%s >= %s", quoted, bind(p.Value)), nil
	case OpLt:
		return fmt.Sprintf("%s < %s", quoted, bind(p.Value)), nil
	case OpLte:
		return fmt.Sprintf("%s <= %s", quoted, bind(p.Value)), nil
	case OpLike:
		return fmt.Sprintf("%s LIKE %s", quoted, bind(p.Value)), nil
	case OpILike:
		return fmt.Sprintf("%s ILIKE %s", quoted, bind(p.Value)), nil
	case OpIn:
		list, err := valueList(p.Value)
		if err != nil {
			return "", fmt.Errorf("operator in on %q: %w", col.Name, err)
		}
		return fmt.Sprintf("%s = ANY(%s)", quoted, bind(list)), nil
	case OpNotIn:
		list, err := valueList(p.Value)
		if err != nil {
			return "", fmt.Errorf("operator notIn on %q: %w", col.Name, err)
		}
		return fmt.Sprintf("%s <> ALL(%s)", quoted, bind(list)), nil
	case OpIsNull:
		if b, ok := p.Value.(bool); ok && !b {
			return fmt.Sprintf("%s IS NOT NULL", quoted), nil
		}
		return fmt.Sprintf("%s IS NULL", quoted), nil
	case OpIsNotNull:
		if b, ok := p.Value.(bool); ok && !b {
			return fmt.Sprintf("%s IS NULL", quoted), nil
		}
		return fmt.Sprintf("%s IS NOT NULL", quoted), nil
	case OpContains:
		if isJSON {
			text, err := jsonText(p.Value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s @> %s::jsonb", quoted, bind(text)), nil
		}
		if col.IsArray() {
			list, err := valueList(p.Value)
			if err != nil {
				list = []any{p.Value}
			}
			return fmt.Sprintf("%s @> %s", quoted, bind(list)), nil
		}
		return fmt.Sprintf("%s LIKE %s", quoted, bind("%"+stringValue(p.Value)+"%")), nil
	case OpStartsWith:
		return fmt.Sprintf("%s LIKE %s", quoted, bind(stringValue(p.Value)+"%")), nil
	case OpEndsWith:
		return fmt.Sprintf("%s LIKE %s", quoted, bind("%"+stringValue(p.Value))), nil
	case OpHasKey:
		return fmt.Sprintf("%s ? %s", quoted, bind(stringValue(p.Value))), nil
	case OpHasKeys:
		keys, err := stringList(p.Value)
		if err != nil {
			return "", fmt.Errorf("operator hasKeys on %q: %w", col.Name, err)
		}
		return fmt.Sprintf("%s ?& %s", quoted, bind(keys)), nil
	case OpHasAnyKeys:
		keys, err := stringList(p.Value)
		if err != nil {
			return "", fmt.Errorf("operator hasAnyKeys on %q: %w", col.Name, err)
		}
		return fmt.Sprintf("%s ?| %s", quoted, bind(keys)), nil
	case OpContainedBy:
		if isJSON {
			text, err := jsonText(p.Value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s <@ %s::jsonb", quoted, bind(text)), nil
		}
		list, err := valueList(p.Value)
		if err != nil {
			return "", fmt.Errorf("operator containedBy on %q: %w", col.Name, err)
		}
		return fmt.Sprintf("%s <@ %s", quoted, bind(list)), nil
	case OpPath, OpPathText:
		spec, ok := p.Value.(map[string]any)
		if !ok {
			return "", fmt.Errorf("operator %s on %q requires {path, eq}", p.Op, col.Name)
		}
		path, err := stringList(spec["path"])
		if err != nil || len(path) == 0 {
			return "", fmt.Errorf("operator %s on %q requires a non-empty path", p.Op, col.Name)
		}
		eq, ok := spec["eq"]
		if !ok {
			return "", fmt.Errorf("operator %s on %q requires eq", p.Op, col.Name)
		}
		if p.Op == OpPathText {
			return fmt.Sprintf("%s #>> %s = %s", quoted, bind(path), bind(stringValue(eq))), nil
		}
		text, err := jsonText(eq)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s #> %s = %s::jsonb", quoted, bind(path), bind(text)), nil
	default:
		return "", fmt.Errorf("unsupported filter operator %q on column %q", p.Op, col.Name)
	}
}

func valueList(v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	return list, nil
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			out[i] = stringValue(item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func jsonText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serializing JSON filter value: %w", err)
	}
	return string(data), nil
}
