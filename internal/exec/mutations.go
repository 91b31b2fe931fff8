package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/sqlgen"
)

// Relationship input suffixes recognized by create-with-relations.
const (
	connectSuffix    = "_connect"
	createSuffix     = "_create"
	createManySuffix = "_createMany"
)

// Mutator runs write operations. Every mutation executes inside one
// transaction with SET LOCAL ROLE applied first, so partial effects are never
// visible and pooled connections never leak a role.
type Mutator struct {
	pool   *pgxpool.Pool
	schema string
}

// NewMutator creates a Mutator for the given schema.
func NewMutator(pool *pgxpool.Pool, schema string) *Mutator {
	return &Mutator{pool: pool, schema: schema}
}

// Create inserts one row and returns it as stored.
func (m *Mutator) Create(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error) {
	t, err := writableTable(cat, table)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	err = m.inTransaction(ctx, role, func(tx pgx.Tx) error {
		var err error
		row, err = m.insertRow(ctx, tx, cat, t, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Update modifies one row addressed by its full primary key.
func (m *Mutator) Update(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error) {
	t, err := writableTable(cat, table)
	if err != nil {
		return nil, err
	}

	pkCols := t.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return nil, Argumentf("table %q has no primary key, update is not supported", table)
	}

	pkValues := make(map[string]any, len(pkCols))
	for _, pk := range pkCols {
		v, ok := input[pk]
		if !ok || v == nil {
			return nil, Argumentf("update on %q requires primary key field %q", table, pk)
		}
		pkValues[pk] = v
	}

	set := make(map[string]any)
	for name, v := range input {
		if _, isPK := pkValues[name]; isPK {
			continue
		}
		col, ok := t.Column(name)
		if !ok {
			return nil, Argumentf("unknown column %q on table %q", name, table)
		}
		bound, err := BindValue(cat, col, v)
		if err != nil {
			return nil, err
		}
		set[name] = bound
	}
	if len(set) == 0 {
		return nil, Argumentf("update on %q requires at least one non-key field", table)
	}

	b := sqlgen.NewBuilder(m.schema, table).WithReturning([]string{"*"})
	for _, pk := range pkCols {
		col, _ := t.Column(pk)
		bound, err := BindValue(cat, col, pkValues[pk])
		if err != nil {
			return nil, err
		}
		b.WhereEquals(pk, bound)
	}
	sql, args := b.BuildUpdate(set)

	var row map[string]any
	err = m.inTransaction(ctx, role, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return ClassifyMutation(err)
		}
		scanned, err := scanRowsToMaps(rows)
		if err != nil {
			return ClassifyMutation(err)
		}
		if len(scanned) == 0 {
			return NotFoundf("no row in %q matches the given primary key", table)
		}
		row = ProjectRow(cat, t, scanned[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes one row addressed by its full primary key, or by a
// synthesized id matched against a column named "id" when the table has no
// primary key. Returns the deleted row.
func (m *Mutator) Delete(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error) {
	t, err := writableTable(cat, table)
	if err != nil {
		return nil, err
	}

	pkCols := t.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		if _, ok := t.Column("id"); !ok {
			return nil, Argumentf("table %q has no primary key and no id column, delete is not supported", table)
		}
		pkCols = []string{"id"}
	}

	b := sqlgen.NewBuilder(m.schema, table).WithReturning([]string{"*"})
	for _, pk := range pkCols {
		v, ok := input[pk]
		if !ok || v == nil {
			return nil, Argumentf("delete on %q requires key field %q", table, pk)
		}
		col, _ := t.Column(pk)
		bound, err := BindValue(cat, col, v)
		if err != nil {
			return nil, err
		}
		b.WhereEquals(pk, bound)
	}
	sql, args := b.BuildDelete()

	var row map[string]any
	err = m.inTransaction(ctx, role, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return ClassifyMutation(err)
		}
		scanned, err := scanRowsToMaps(rows)
		if err != nil {
			return ClassifyMutation(err)
		}
		if len(scanned) == 0 {
			return NotFoundf("no row in %q matches the given key", table)
		}
		row = ProjectRow(cat, t, scanned[0])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// CreateMany inserts a batch of rows in one transaction; any failure rolls
// back the whole batch.
func (m *Mutator) CreateMany(ctx context.Context, cat *catalog.Catalog, table string, role string, inputs []map[string]any) ([]map[string]any, error) {
	t, err := writableTable(cat, table)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, Argumentf("bulk create on %q requires a non-empty input list", table)
	}

	var rows []map[string]any
	err = m.inTransaction(ctx, role, func(tx pgx.Tx) error {
		for i, input := range inputs {
			row, err := m.insertRow(ctx, tx, cat, t, input)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateWithRelations inserts a row plus its relationship inputs in one
// transaction: <ref>_connect validates and links an existing referenced row,
// <ref>_create inserts the referenced row first, and <child>_createMany
// creates child rows with the new row's key injected.
func (m *Mutator) CreateWithRelations(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error) {
	t, err := writableTable(cat, table)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	err = m.inTransaction(ctx, role, func(tx pgx.Tx) error {
		direct := make(map[string]any)
		connects := make(map[string]map[string]any)
		creates := make(map[string]map[string]any)
		children := make(map[string][]map[string]any)

		for name, v := range input {
			if v == nil {
				continue
			}
			switch {
			case strings.HasSuffix(name, connectSuffix):
				ref := strings.TrimSuffix(name, connectSuffix)
				obj, ok := v.(map[string]any)
				if !ok {
					return Argumentf("%s must be an object", name)
				}
				connects[ref] = obj
			case strings.HasSuffix(name, createManySuffix):
				child := strings.TrimSuffix(name, createManySuffix)
				list, ok := v.([]any)
				if !ok {
					return Argumentf("%s must be a list", name)
				}
				for _, item := range list {
					obj, ok := item.(map[string]any)
					if !ok {
						return Argumentf("%s entries must be objects", name)
					}
					children[child] = append(children[child], obj)
				}
			case strings.HasSuffix(name, createSuffix):
				ref := strings.TrimSuffix(name, createSuffix)
				obj, ok := v.(map[string]any)
				if !ok {
					return Argumentf("%s must be an object", name)
				}
				creates[ref] = obj
			default:
				direct[name] = v
			}
		}

		// Resolve outgoing references before the primary insert.
		for _, fk := range t.ForeignKeys {
			if connect, ok := connects[fk.ReferencedTable]; ok {
				value, err := m.resolveConnect(ctx, tx, cat, fk, connect)
				if err != nil {
					return err
				}
				direct[fk.Column] = value
				delete(connects, fk.ReferencedTable)
			}
			if create, ok := creates[fk.ReferencedTable]; ok {
				refTable, ok := cat.Table(fk.ReferencedTable)
				if !ok {
					return Schemaf("unknown referenced table %q", fk.ReferencedTable)
				}
				refRow, err := m.insertRow(ctx, tx, cat, refTable, create)
				if err != nil {
					return err
				}
				direct[fk.Column] = refRow[fk.ReferencedColumn]
				delete(creates, fk.ReferencedTable)
			}
		}
		for ref := range connects {
			return Argumentf("table %q has no foreign key to %q", table, ref)
		}
		for ref := range creates {
			return Argumentf("table %q has no foreign key to %q", table, ref)
		}

		row, err = m.insertRow(ctx, tx, cat, t, direct)
		if err != nil {
			return err
		}

		// Children inherit the new row's key through their FK columns.
		for child, items := range children {
			childTable, ok := cat.Table(child)
			if !ok {
				return Argumentf("unknown child table %q", child)
			}
			var childFK *catalog.ForeignKey
			for i := range childTable.ForeignKeys {
				if childTable.ForeignKeys[i].ReferencedTable == t.Name {
					childFK = &childTable.ForeignKeys[i]
					break
				}
			}
			if childFK == nil {
				return Argumentf("table %q has no foreign key to %q", child, table)
			}
			for i, item := range items {
				item[childFK.Column] = row[childFK.ReferencedColumn]
				if _, err := m.insertRow(ctx, tx, cat, childTable, item); err != nil {
					return fmt.Errorf("child %s row %d: %w", child, i, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// resolveConnect validates that the referenced row exists and returns the
// value to store in the FK column.
func (m *Mutator) resolveConnect(ctx context.Context, tx pgx.Tx, cat *catalog.Catalog, fk catalog.ForeignKey, connect map[string]any) (any, error) {
	value, ok := connect[fk.ReferencedColumn]
	if !ok {
		value, ok = connect["id"]
	}
	if !ok || value == nil {
		return nil, Argumentf("%s%s requires %q", fk.ReferencedTable, connectSuffix, fk.ReferencedColumn)
	}

	refTable, found := cat.Table(fk.ReferencedTable)
	if !found {
		return nil, Schemaf("unknown referenced table %q", fk.ReferencedTable)
	}
	refCol, found := refTable.Column(fk.ReferencedColumn)
	if !found {
		return nil, Schemaf("unknown column %q on %q", fk.ReferencedColumn, fk.ReferencedTable)
	}
	bound, err := BindValue(cat, refCol, value)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf("SELECT 1 FROM %s.%s WHERE %s = $1",
		quoteIdent(m.schema), quoteIdent(fk.ReferencedTable), quoteIdent(fk.ReferencedColumn))
	var one int
	if err := tx.QueryRow(ctx, sql, bound).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return nil, NotFoundf("no row in %q with %s = %v", fk.ReferencedTable, fk.ReferencedColumn, value)
		}
		return nil, ClassifyMutation(err)
	}
	return bound, nil
}

// insertRow validates, binds and inserts one row, returning it as stored.
func (m *Mutator) insertRow(ctx context.Context, tx pgx.Tx, cat *catalog.Catalog, t *catalog.Table, input map[string]any) (map[string]any, error) {
	if len(input) == 0 {
		return nil, Argumentf("create on %q requires a non-empty input", t.Name)
	}

	data := make(map[string]any)
	hasNonKeyField := false
	for name, v := range input {
		col, ok := t.Column(name)
		if !ok {
			return nil, Argumentf("unknown column %q on table %q", name, t.Name)
		}
		if v == nil {
			continue
		}
		bound, err := BindValue(cat, col, v)
		if err != nil {
			return nil, err
		}
		data[name] = bound
		if !col.PrimaryKey {
			hasNonKeyField = true
		}
	}
	if !hasNonKeyField {
		return nil, Argumentf("create on %q requires at least one non-key field", t.Name)
	}

	fillRequiredTimestamps(t, data)

	b := sqlgen.NewBuilder(m.schema, t.Name).WithReturning([]string{"*"})
	sql, args := b.BuildInsert(data)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, ClassifyMutation(err)
	}
	scanned, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, ClassifyMutation(err)
	}
	if len(scanned) == 0 {
		return nil, &Error{Kind: KindDataMutation, Message: fmt.Sprintf("insert into %q returned no row", t.Name)}
	}

	log.Debug().Str("table", t.Name).Msg("Row inserted")
	return ProjectRow(cat, t, scanned[0]), nil
}

// fillRequiredTimestamps sets NOT NULL timestamp columns with no default to
// the request time when the input omitted them.
func fillRequiredTimestamps(t *catalog.Table, data map[string]any) {
	now := time.Now().UTC()
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.Nullable || col.HasDefault || col.PrimaryKey {
			continue
		}
		if col.Type != "timestamp" && col.Type != "timestamptz" {
			continue
		}
		if _, ok := data[col.Name]; !ok {
			data[col.Name] = now
		}
	}
}

func writableTable(cat *catalog.Catalog, table string) (*catalog.Table, error) {
	t, ok := cat.Table(table)
	if !ok {
		return nil, Schemaf("unknown table %q", table)
	}
	if t.IsView {
		return nil, Argumentf("%q is a view and cannot be mutated", table)
	}
	return t, nil
}

// inTransaction wraps fn in a transaction with the request role applied.
func (m *Mutator) inTransaction(ctx context.Context, role string, fn func(tx pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := setLocalRole(ctx, tx, role); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return ClassifyMutation(err)
	}
	return nil
}
