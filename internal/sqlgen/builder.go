package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

// Builder assembles parameterized SQL statements against one table. It
// separates statement construction from execution so query generation is
// unit-testable without a database. Arguments always bind as $n placeholders.
type Builder struct {
	schema    string
	table     string
	columns   []string
	where     []string
	args      []any
	orderBy   []OrderBy
	limit     *int
	offset    *int
	returning []string
}

// NewBuilder creates a Builder for the given schema and table.
func NewBuilder(schema, table string) *Builder {
	return &Builder{schema: schema, table: table}
}

// bind appends an argument and returns its placeholder.
func (b *Builder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// WithColumns sets the columns to select.
func (b *Builder) WithColumns(columns []string) *Builder {
	b.columns = columns
	return b
}

// WithOrder sets the ORDER BY terms.
func (b *Builder) WithOrder(order []OrderBy) *Builder {
	b.orderBy = order
	return b
}

// WithLimit sets the LIMIT clause.
func (b *Builder) WithLimit(limit int) *Builder {
	b.limit = &limit
	return b
}

// WithOffset sets the OFFSET clause.
func (b *Builder) WithOffset(offset int) *Builder {
	b.offset = &offset
	return b
}

// WithReturning sets the RETURNING clause columns.
func (b *Builder) WithReturning(columns []string) *Builder {
	b.returning = columns
	return b
}

// WhereFilter lowers a filter tree into the WHERE clause.
func (b *Builder) WhereFilter(t *catalog.Table, f *Filter) error {
	clause, err := lowerFilter(t, f, b.bind)
	if err != nil {
		return err
	}
	if clause != "" {
		b.where = append(b.where, clause)
	}
	return nil
}

// WhereOr lowers a top-level or-list: the disjunction of the given filters
// joins the rest of the WHERE clause as one conjunct.
func (b *Builder) WhereOr(t *catalog.Table, filters []*Filter) error {
	var disjuncts []string
	for _, f := range filters {
		clause, err := lowerFilter(t, f, b.bind)
		if err != nil {
			return err
		}
		if clause != "" {
			disjuncts = append(disjuncts, clause)
		}
	}
	if len(disjuncts) == 1 {
		b.where = append(b.where, disjuncts[0])
	} else if len(disjuncts) > 1 {
		b.where = append(b.where, "("+strings.Join(disjuncts, " OR ")+")")
	}
	return nil
}

// WhereEquals adds a single equality conjunct.
func (b *Builder) WhereEquals(column string, value any) {
	if value == nil {
		b.where = append(b.where, fmt.Sprintf("%s IS NULL", quoteIdentifier(column)))
		return
	}
	b.where = append(b.where, fmt.Sprintf("%s = %s", quoteIdentifier(column), b.bind(value)))
}

// WhereCursor adds the lexicographic tuple predicate for cursor pagination.
// With before=false the predicate selects rows strictly after the cursor
// under the current ordering; before=true selects rows strictly before it.
func (b *Builder) WhereCursor(order []OrderBy, cursor map[string]any, before bool) error {
	clause, err := cursorPredicate(order, cursor, before, b.bind)
	if err != nil {
		return err
	}
	if clause != "" {
		b.where = append(b.where, clause)
	}
	return nil
}

func (b *Builder) whereClause() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *Builder) orderClause() string {
	if len(b.orderBy) == 0 {
		return ""
	}
	parts := make([]string, 0, len(b.orderBy))
	for _, o := range b.orderBy {
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		parts = append(parts, quoteIdentifier(o.Column)+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (b *Builder) returningClause() string {
	if len(b.returning) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(b.returning))
	for _, col := range b.returning {
		if col == "*" {
			quoted = append(quoted, "*")
			continue
		}
		quoted = append(quoted, quoteIdentifier(col))
	}
	return " RETURNING " + strings.Join(quoted, ", ")
}

// BuildSelect builds a SELECT statement with the accumulated clauses.
func (b *Builder) BuildSelect() (string, []any) {
	selectClause := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, 0, len(b.columns))
		for _, col := range b.columns {
			quoted = append(quoted, quoteIdentifier(col))
		}
		selectClause = strings.Join(quoted, ", ")
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s",
		selectClause, quoteIdentifier(b.schema), quoteIdentifier(b.table))
	query += b.whereClause()
	query += b.orderClause()

	if b.limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *b.limit)
	}
	if b.offset != nil {
		query += fmt.Sprintf(" OFFSET %d", *b.offset)
	}

	return query, b.args
}

// BuildCount builds a COUNT statement over the same WHERE clause.
func (b *Builder) BuildCount() (string, []any) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s",
		quoteIdentifier(b.schema), quoteIdentifier(b.table))
	query += b.whereClause()
	return query, b.args
}

// BuildInsert builds an INSERT statement. Columns insert in sorted order so
// the statement text is deterministic for a given input.
func (b *Builder) BuildInsert(data map[string]any) (string, []any) {
	if len(data) == 0 {
		return "", nil
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, col := range cols {
		quoted = append(quoted, quoteIdentifier(col))
		placeholders = append(placeholders, b.bind(data[col]))
	}

	query := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		quoteIdentifier(b.schema), quoteIdentifier(b.table),
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	query += b.returningClause()

	return query, b.args
}

// BuildUpdate builds an UPDATE statement with the accumulated WHERE clause.
// Set columns render in sorted order.
func (b *Builder) BuildUpdate(data map[string]any) (string, []any) {
	if len(data) == 0 {
		return "", nil
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	// WHERE placeholders were bound first; rebuild so SET binds before WHERE.
	whereArgs := b.args
	b.args = nil

	setClauses := make([]string, 0, len(cols))
	for _, col := range cols {
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", quoteIdentifier(col), b.bind(data[col])))
	}

	where := b.whereClause()
	offset := len(b.args)
	where = renumberPlaceholders(where, offset)
	b.args = append(b.args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s.%s SET %s",
		quoteIdentifier(b.schema), quoteIdentifier(b.table),
		strings.Join(setClauses, ", "))
	query += where
	query += b.returningClause()

	return query, b.args
}

// BuildDelete builds a DELETE statement with the accumulated WHERE clause.
func (b *Builder) BuildDelete() (string, []any) {
	query := fmt.Sprintf("DELETE FROM %s.%s",
		quoteIdentifier(b.schema), quoteIdentifier(b.table))
	query += b.whereClause()
	query += b.returningClause()
	return query, b.args
}

// renumberPlaceholders shifts every $n in the fragment up by offset.
func renumberPlaceholders(fragment string, offset int) string {
	if offset == 0 {
		return fragment
	}
	var out strings.Builder
	i := 0
	for i < len(fragment) {
		if fragment[i] == '$' {
			j := i + 1
			for j < len(fragment) && fragment[j] >= '0' && fragment[j] <= '9' {
				j++
			}
			if j > i+1 {
				var n int
				fmt.Sscanf(fragment[i+1:j], "%d", &n)
				fmt.Fprintf(&out, "$%d", n+offset)
				i = j
				continue
			}
		}
		out.WriteByte(fragment[i])
		i++
	}
	return out.String()
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
