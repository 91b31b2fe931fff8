package graphql

import (
	"context"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/exec"
	"github.com/graphgate-io/graphgate/internal/sqlgen"
)

// Reader runs read operations for the generated resolvers.
type Reader interface {
	List(ctx context.Context, cat *catalog.Catalog, table string, role string, opts exec.ReadOptions) ([]map[string]any, error)
	Connection(ctx context.Context, cat *catalog.Catalog, table string, role string, opts exec.ReadOptions) (*exec.Connection, error)
	One(ctx context.Context, cat *catalog.Catalog, table string, role string, equals map[string]any) (map[string]any, error)
}

// Writer runs mutations for the generated resolvers.
type Writer interface {
	Create(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error)
	Update(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error)
	Delete(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error)
	CreateMany(ctx context.Context, cat *catalog.Catalog, table string, role string, inputs []map[string]any) ([]map[string]any, error)
	CreateWithRelations(ctx context.Context, cat *catalog.Catalog, table string, role string, input map[string]any) (map[string]any, error)
}

// listField is the flat per-table query.
func (b *builder) listField(t *catalog.Table, filter *graphql.InputObject, orderBy *graphql.InputObject) *graphql.Field {
	table := t.Name
	args := b.readArgs(t, filter, orderBy)
	args["limit"] = &graphql.ArgumentConfig{Type: graphql.Int}
	args["offset"] = &graphql.ArgumentConfig{Type: graphql.Int}

	return &graphql.Field{
		Type: graphql.NewList(b.objects[table]),
		Args: args,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			opts, err := decodeReadOptions(t, p.Args)
			if err != nil {
				return nil, err
			}
			return b.gen.reader.List(p.Context, b.cat, table, b.role, opts)
		},
	}
}

// readArgs assembles the argument set shared by the flat and connection
// fields: where, a top-level or list, orderBy, plus the legacy per-column
// arguments (bare name for equality, name_<op> for every operator the
// column's filter kind accepts).
func (b *builder) readArgs(t *catalog.Table, filter *graphql.InputObject, orderBy *graphql.InputObject) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"where":   &graphql.ArgumentConfig{Type: filter},
		"or":      &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(filter))},
		"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(graphql.NewNonNull(orderBy))},
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.OriginalType == catalog.OriginalComposite || col.IsArray() {
			continue
		}
		for op, field := range b.scalarFilter(filterKind(col)).Fields() {
			args[col.Name+"_"+op] = &graphql.ArgumentConfig{Type: field.Type}
		}
	}
	// Bare equality last: a column whose name looks like a suffixed
	// argument keeps its own argument.
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.OriginalType == catalog.OriginalComposite || col.IsArray() {
			continue
		}
		args[col.Name] = &graphql.ArgumentConfig{Type: b.scalarInputType(col, col.Type)}
	}
	return args
}

// connectionField is the Relay-style per-table query.
func (b *builder) connectionField(t *catalog.Table, filter *graphql.InputObject, orderBy *graphql.InputObject) *graphql.Field {
	table := t.Name

	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: table + edgeSuffix,
		Fields: graphql.Fields{
			"node": &graphql.Field{
				Type: graphql.NewNonNull(b.objects[table]),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e, ok := p.Source.(exec.Edge); ok {
						return e.Node, nil
					}
					return nil, nil
				},
			},
			"cursor": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e, ok := p.Source.(exec.Edge); ok {
						return e.Cursor, nil
					}
					return nil, nil
				},
			},
		},
	})

	connection := graphql.NewObject(graphql.ObjectConfig{
		Name: table + connectionSuffix,
		Fields: graphql.Fields{
			"edges": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(*exec.Connection); ok {
						return c.Edges, nil
					}
					return nil, nil
				},
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(b.pageInfoObject()),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(*exec.Connection); ok {
						return map[string]any{
							"hasNextPage":     c.PageInfo.HasNextPage,
							"hasPreviousPage": c.PageInfo.HasPreviousPage,
							"startCursor":     c.PageInfo.StartCursor,
							"endCursor":       c.PageInfo.EndCursor,
						}, nil
					}
					return nil, nil
				},
			},
			"totalCount": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(*exec.Connection); ok {
						return c.TotalCount, nil
					}
					return 0, nil
				},
			},
		},
	})

	args := b.readArgs(t, filter, orderBy)
	args["first"] = &graphql.ArgumentConfig{Type: graphql.Int}
	args["after"] = &graphql.ArgumentConfig{Type: graphql.String}
	args["last"] = &graphql.ArgumentConfig{Type: graphql.Int}
	args["before"] = &graphql.ArgumentConfig{Type: graphql.String}

	return &graphql.Field{
		Type: connection,
		Args: args,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			opts, err := decodeReadOptions(t, p.Args)
			if err != nil {
				return nil, err
			}
			return b.gen.reader.Connection(p.Context, b.cat, table, b.role, opts)
		},
	}
}

// forwardResolver follows an outgoing FK from the row's column value.
func (b *builder) forwardResolver(table string, fk catalog.ForeignKey) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		key := row[fk.Column]
		if key == nil {
			return nil, nil
		}
		return b.gen.reader.One(p.Context, b.cat, fk.ReferencedTable, b.role,
			map[string]any{fk.ReferencedColumn: key})
	}
}

// reverseResolver lists the rows of a referencing table pointing at this row.
func (b *builder) reverseResolver(rel catalog.ReverseRelation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		key := row[rel.ReferencedColumn]
		if key == nil {
			return []map[string]any{}, nil
		}
		return b.gen.reader.List(p.Context, b.cat, rel.Table, b.role, exec.ReadOptions{
			Equals: map[string]any{rel.Column: key},
		})
	}
}

func (b *builder) createResolver(table string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, err := inputObject(p.Args)
		if err != nil {
			return nil, err
		}
		return b.gen.writer.Create(p.Context, b.cat, table, b.role, input)
	}
}

func (b *builder) updateResolver(table string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, err := inputObject(p.Args)
		if err != nil {
			return nil, err
		}
		return b.gen.writer.Update(p.Context, b.cat, table, b.role, input)
	}
}

func (b *builder) deleteResolver(table string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, err := inputObject(p.Args)
		if err != nil {
			return nil, err
		}
		return b.gen.writer.Delete(p.Context, b.cat, table, b.role, input)
	}
}

func (b *builder) createManyResolver(table string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		raw, ok := p.Args["input"].([]interface{})
		if !ok {
			return nil, exec.Argumentf("input must be a list of objects")
		}
		inputs := make([]map[string]any, 0, len(raw))
		for _, item := range raw {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, exec.Argumentf("input entries must be objects")
			}
			inputs = append(inputs, obj)
		}
		return b.gen.writer.CreateMany(p.Context, b.cat, table, b.role, inputs)
	}
}

func (b *builder) createWithRelationsResolver(table string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		input, err := inputObject(p.Args)
		if err != nil {
			return nil, err
		}
		return b.gen.writer.CreateWithRelations(p.Context, b.cat, table, b.role, input)
	}
}

func inputObject(args map[string]interface{}) (map[string]any, error) {
	input, ok := args["input"].(map[string]interface{})
	if !ok {
		return nil, exec.Argumentf("input must be an object")
	}
	return input, nil
}

// reservedReadArgs are the argument names that are not legacy per-column
// filters.
var reservedReadArgs = map[string]bool{
	"where": true, "or": true, "orderBy": true,
	"limit": true, "offset": true,
	"first": true, "after": true, "last": true, "before": true,
}

// legacyOps is the operator vocabulary accepted in suffixed argument names.
var legacyOps = map[string]bool{
	sqlgen.OpEq: true, sqlgen.OpNeq: true,
	sqlgen.OpGt: true, sqlgen.OpGte: true, sqlgen.OpLt: true, sqlgen.OpLte: true,
	sqlgen.OpLike: true, sqlgen.OpILike: true,
	sqlgen.OpIn: true, sqlgen.OpNotIn: true,
	sqlgen.OpIsNull: true, sqlgen.OpIsNotNull: true,
	sqlgen.OpContains: true, sqlgen.OpStartsWith: true, sqlgen.OpEndsWith: true,
	sqlgen.OpHasKey: true, sqlgen.OpHasKeys: true, sqlgen.OpHasAnyKeys: true,
	sqlgen.OpContainedBy: true, sqlgen.OpPath: true, sqlgen.OpPathText: true,
}

// decodeReadOptions lowers the raw argument map into executor options.
func decodeReadOptions(t *catalog.Table, args map[string]interface{}) (exec.ReadOptions, error) {
	var opts exec.ReadOptions

	if raw, ok := args["where"].(map[string]interface{}); ok {
		filter, err := sqlgen.DecodeFilter(raw)
		if err != nil {
			return opts, exec.Argumentf("invalid where: %v", err)
		}
		opts.Where = filter
	}
	if raw, ok := args["or"].([]interface{}); ok {
		for _, item := range raw {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return opts, exec.Argumentf("or entries must be filter objects")
			}
			filter, err := sqlgen.DecodeFilter(obj)
			if err != nil {
				return opts, exec.Argumentf("invalid or: %v", err)
			}
			if !filter.IsEmpty() {
				opts.Or = append(opts.Or, filter)
			}
		}
	}
	if raw, ok := args["orderBy"]; ok && raw != nil {
		order, err := sqlgen.DecodeOrderBy(raw)
		if err != nil {
			return opts, exec.Argumentf("invalid orderBy: %v", err)
		}
		opts.OrderBy = order
	}
	if err := decodeLegacyArgs(t, args, &opts); err != nil {
		return opts, err
	}

	opts.Limit = intArg(args, "limit")
	opts.Offset = intArg(args, "offset")
	opts.First = intArg(args, "first")
	opts.Last = intArg(args, "last")
	opts.After = stringArg(args, "after")
	opts.Before = stringArg(args, "before")
	return opts, nil
}

// decodeLegacyArgs folds the per-column top-level arguments into the
// options: a bare column name is an equality condition, name_<op> joins the
// where conjunction.
func decodeLegacyArgs(t *catalog.Table, args map[string]interface{}, opts *exec.ReadOptions) error {
	suffixed := map[string]any{}
	for name, value := range args {
		if reservedReadArgs[name] || value == nil {
			continue
		}
		if _, ok := t.Column(name); ok {
			if opts.Equals == nil {
				opts.Equals = map[string]any{}
			}
			opts.Equals[name] = value
			continue
		}
		col, op, ok := splitLegacyArg(t, name)
		if !ok {
			continue
		}
		ops, _ := suffixed[col].(map[string]any)
		if ops == nil {
			ops = map[string]any{}
			suffixed[col] = ops
		}
		ops[op] = value
	}
	if len(suffixed) == 0 {
		return nil
	}

	filter, err := sqlgen.DecodeFilter(suffixed)
	if err != nil {
		return exec.Argumentf("invalid filter argument: %v", err)
	}
	if opts.Where == nil {
		opts.Where = filter
	} else {
		opts.Where.Columns = append(opts.Where.Columns, filter.Columns...)
	}
	return nil
}

// splitLegacyArg resolves an argument name of the form <column>_<op>,
// preferring the longest column-name match.
func splitLegacyArg(t *catalog.Table, name string) (string, string, bool) {
	var column, op string
	for i := range t.Columns {
		col := t.Columns[i].Name
		if len(col) <= len(column) || !strings.HasPrefix(name, col+"_") {
			continue
		}
		if candidate := name[len(col)+1:]; legacyOps[candidate] {
			column, op = col, candidate
		}
	}
	return column, op, column != ""
}

func intArg(args map[string]interface{}, name string) *int {
	if v, ok := args[name].(int); ok {
		return &v
	}
	return nil
}

func stringArg(args map[string]interface{}, name string) *string {
	if v, ok := args[name].(string); ok && v != "" {
		return &v
	}
	return nil
}
