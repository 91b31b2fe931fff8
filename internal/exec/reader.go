package exec

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/sqlgen"
)

// ReadOptions carries the decoded arguments of one read operation.
type ReadOptions struct {
	Where   *sqlgen.Filter
	Or      []*sqlgen.Filter
	Equals  map[string]any // legacy top-level equality arguments
	OrderBy []sqlgen.OrderBy
	Limit   *int
	Offset  *int
	First   *int
	After   *string
	Last    *int
	Before  *string
}

// Edge pairs a row with its opaque cursor.
type Edge struct {
	Node   map[string]any
	Cursor string
}

// PageInfo is the Relay page descriptor.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
}

// Connection is the Relay-style read result.
type Connection struct {
	Edges      []Edge
	PageInfo   PageInfo
	TotalCount int
}

// Reader runs read operations against the pool, scoping each to the caller's
// database role via SET LOCAL ROLE inside a transaction so pooled connections
// never leak a role.
type Reader struct {
	pool   *pgxpool.Pool
	schema string
}

// NewReader creates a Reader for the given schema.
func NewReader(pool *pgxpool.Pool, schema string) *Reader {
	return &Reader{pool: pool, schema: schema}
}

// List runs a flat read and projects the rows.
func (r *Reader) List(ctx context.Context, cat *catalog.Catalog, table string, role string, opts ReadOptions) ([]map[string]any, error) {
	t, ok := cat.Table(table)
	if !ok {
		return nil, Schemaf("unknown table %q", table)
	}

	b := sqlgen.NewBuilder(r.schema, table)
	if err := applyFilters(b, t, opts); err != nil {
		return nil, err
	}
	b.WithOrder(opts.OrderBy)
	if opts.Limit != nil {
		b.WithLimit(*opts.Limit)
	}
	if opts.Offset != nil {
		b.WithOffset(*opts.Offset)
	}

	sql, args := b.BuildSelect()
	rows, err := r.queryAsRole(ctx, role, sql, args)
	if err != nil {
		return nil, err
	}

	return projectRows(cat, t, rows), nil
}

// Connection runs a Relay-style read: cursor predicates, one extra row for
// page detection, and a COUNT over the same filter.
func (r *Reader) Connection(ctx context.Context, cat *catalog.Catalog, table string, role string, opts ReadOptions) (*Connection, error) {
	t, ok := cat.Table(table)
	if !ok {
		return nil, Schemaf("unknown table %q", table)
	}

	order := sqlgen.EnsureTiebreaker(opts.OrderBy, t.PrimaryKeyColumns())
	if len(order) == 0 {
		if opts.After != nil || opts.Before != nil {
			return nil, Argumentf("cursor pagination on %q requires orderBy", table)
		}
		// Best effort for PK-less views: page over the declared column order.
		for _, col := range t.Columns {
			order = append(order, sqlgen.OrderBy{Column: col.Name})
		}
	}

	backward := opts.Last != nil && opts.First == nil
	effectiveOrder := order
	if backward {
		effectiveOrder = make([]sqlgen.OrderBy, len(order))
		for i, o := range order {
			effectiveOrder[i] = sqlgen.OrderBy{Column: o.Column, Desc: !o.Desc}
		}
	}

	var limit int
	switch {
	case backward:
		limit = *opts.Last
	case opts.First != nil:
		limit = *opts.First
	default:
		limit = 100
	}
	if limit < 0 {
		return nil, Argumentf("page size must not be negative")
	}

	b := sqlgen.NewBuilder(r.schema, table)
	if err := applyFilters(b, t, opts); err != nil {
		return nil, err
	}

	if opts.After != nil {
		key, err := sqlgen.DecodeCursor(*opts.After)
		if err != nil {
			return nil, Argumentf("invalid after cursor: %v", err)
		}
		if err := b.WhereCursor(order, key, false); err != nil {
			return nil, Argumentf("%v", err)
		}
	}
	if opts.Before != nil {
		key, err := sqlgen.DecodeCursor(*opts.Before)
		if err != nil {
			return nil, Argumentf("invalid before cursor: %v", err)
		}
		if err := b.WhereCursor(order, key, true); err != nil {
			return nil, Argumentf("%v", err)
		}
	}

	b.WithOrder(effectiveOrder).WithLimit(limit + 1)

	sql, args := b.BuildSelect()
	rows, err := r.queryAsRole(ctx, role, sql, args)
	if err != nil {
		return nil, err
	}

	hasExtra := len(rows) > limit
	if hasExtra {
		rows = rows[:limit]
	}
	if backward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	projected := projectRows(cat, t, rows)

	conn := &Connection{Edges: make([]Edge, 0, len(projected))}
	for _, row := range projected {
		cursor, err := sqlgen.EncodeCursor(sqlgen.OrderingKey(row, order))
		if err != nil {
			return nil, err
		}
		conn.Edges = append(conn.Edges, Edge{Node: row, Cursor: cursor})
	}

	if len(conn.Edges) > 0 {
		start := conn.Edges[0].Cursor
		end := conn.Edges[len(conn.Edges)-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}
	if backward {
		conn.PageInfo.HasPreviousPage = hasExtra
		conn.PageInfo.HasNextPage = opts.Before != nil
	} else {
		conn.PageInfo.HasNextPage = hasExtra
		conn.PageInfo.HasPreviousPage = opts.After != nil
	}

	count := sqlgen.NewBuilder(r.schema, table)
	if err := applyFilters(count, t, opts); err != nil {
		return nil, err
	}
	countSQL, countArgs := count.BuildCount()
	total, err := r.queryCountAsRole(ctx, role, countSQL, countArgs)
	if err != nil {
		return nil, err
	}
	conn.TotalCount = total

	return conn, nil
}

// One runs a single-row lookup by equality filters (used for FK resolution).
func (r *Reader) One(ctx context.Context, cat *catalog.Catalog, table string, role string, equals map[string]any) (map[string]any, error) {
	t, ok := cat.Table(table)
	if !ok {
		return nil, Schemaf("unknown table %q", table)
	}

	b := sqlgen.NewBuilder(r.schema, table)
	for col, v := range equals {
		b.WhereEquals(col, v)
	}
	b.WithLimit(1)

	sql, args := b.BuildSelect()
	rows, err := r.queryAsRole(ctx, role, sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return ProjectRow(cat, t, rows[0]), nil
}

func applyFilters(b *sqlgen.Builder, t *catalog.Table, opts ReadOptions) error {
	for col, v := range opts.Equals {
		if _, ok := t.Column(col); !ok {
			return Argumentf("unknown column %q on table %q", col, t.Name)
		}
		b.WhereEquals(col, v)
	}
	if opts.Where != nil {
		if err := b.WhereFilter(t, opts.Where); err != nil {
			return Argumentf("%v", err)
		}
	}
	if len(opts.Or) > 0 {
		if err := b.WhereOr(t, opts.Or); err != nil {
			return Argumentf("%v", err)
		}
	}
	return nil
}

func projectRows(cat *catalog.Catalog, t *catalog.Table, rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProjectRow(cat, t, row))
	}
	return out
}

// queryAsRole runs a read inside a transaction with SET LOCAL ROLE so the
// role never outlives the request on a pooled connection.
func (r *Reader) queryAsRole(ctx context.Context, role string, sql string, args []any) ([]map[string]any, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setLocalRole(ctx, tx, role); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	result, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing read transaction: %w", err)
	}
	return result, nil
}

func (r *Reader) queryCountAsRole(ctx context.Context, role string, sql string, args []any) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning count transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setLocalRole(ctx, tx, role); err != nil {
		return 0, err
	}

	var count int
	if err := tx.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("executing count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing count transaction: %w", err)
	}
	return count, nil
}

// setLocalRole applies the request's database role inside the transaction.
// SET LOCAL reverts on commit or rollback, which keeps pooled connections
// clean.
func setLocalRole(ctx context.Context, tx pgx.Tx, role string) error {
	if role == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ROLE %s", quoteIdent(role))); err != nil {
		return fmt.Errorf("setting role %q: %w", role, err)
	}
	return nil
}

func quoteIdent(role string) string {
	return `"` + strings.ReplaceAll(role, `"`, `""`) + `"`
}

// scanRowsToMaps converts pgx rows into column-keyed maps.
func scanRowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []map[string]any

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	log.Trace().Int("rows", len(result)).Msg("Rows scanned")
	return result, nil
}
