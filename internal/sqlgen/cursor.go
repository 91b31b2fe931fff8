package sqlgen

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Cursors encode the ordering-key values of a row (including the primary-key
// tiebreaker) as base64 JSON keyed by column name. Clients treat them as
// opaque tokens.

// EncodeCursor encodes an ordering key into an opaque cursor.
func EncodeCursor(key map[string]any) (string, error) {
	data, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("encoding cursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeCursor decodes an opaque cursor back into its ordering-key values.
func DecodeCursor(cursor string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var key map[string]any
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return key, nil
}

// OrderingKey extracts the ordering-column values of a row.
func OrderingKey(row map[string]any, order []OrderBy) map[string]any {
	key := make(map[string]any, len(order))
	for _, o := range order {
		key[o.Column] = row[o.Column]
	}
	return key
}

// cursorPredicate renders the lexicographic tuple comparison for a cursor
// under a mixed-direction ordering:
//
//	(c1 > v1) OR (c1 = v1 AND c2 > v2) OR ...
//
// with the comparison per column flipped for DESC terms, and the whole
// predicate inverted for before-cursors.
func cursorPredicate(order []OrderBy, cursor map[string]any, before bool, bind func(any) string) (string, error) {
	if len(order) == 0 {
		return "", fmt.Errorf("cursor pagination requires an ordering")
	}

	var disjuncts []string
	for i, term := range order {
		value, ok := cursor[term.Column]
		if !ok {
			return "", fmt.Errorf("cursor is missing ordering column %q", term.Column)
		}

		var parts []string
		for _, prev := range order[:i] {
			prevValue := cursor[prev.Column]
			if prevValue == nil {
				parts = append(parts, fmt.Sprintf("%s IS NULL", quoteIdentifier(prev.Column)))
			} else {
				parts = append(parts, fmt.Sprintf("%s = %s", quoteIdentifier(prev.Column), bind(prevValue)))
			}
		}

		op := ">"
		if term.Desc {
			op = "<"
		}
		if before {
			if op == ">" {
				op = "<"
			} else {
				op = ">"
			}
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", quoteIdentifier(term.Column), op, bind(value)))

		if len(parts) == 1 {
			disjuncts = append(disjuncts, parts[0])
		} else {
			disjuncts = append(disjuncts, "("+strings.Join(parts, " AND ")+")")
		}
	}

	if len(disjuncts) == 1 {
		return disjuncts[0], nil
	}
	return "(" + strings.Join(disjuncts, " OR ") + ")", nil
}
