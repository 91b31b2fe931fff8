package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/graphgate-io/graphgate/internal/sqlgen"
)

// Shared filter input kinds. One instance of each exists per generated
// schema and every table filter references them.
const (
	filterKindString   = "StringFilter"
	filterKindInt      = "IntFilter"
	filterKindFloat    = "FloatFilter"
	filterKindBoolean  = "BooleanFilter"
	filterKindDateTime = "DateTimeFilter"
	filterKindJSON     = "JSONFilter"
)

// scalarFilter returns the shared filter input for a filter kind, building
// it on first use.
func (b *builder) scalarFilter(kind string) *graphql.InputObject {
	if in, ok := b.scalarFilters[kind]; ok {
		return in
	}

	var in *graphql.InputObject
	switch kind {
	case filterKindString:
		in = comparableFilter(kind, graphql.String, graphql.InputObjectConfigFieldMap{
			sqlgen.OpLike:       {Type: graphql.String},
			sqlgen.OpILike:      {Type: graphql.String},
			sqlgen.OpContains:   {Type: graphql.String},
			sqlgen.OpStartsWith: {Type: graphql.String},
			sqlgen.OpEndsWith:   {Type: graphql.String},
		})
	case filterKindInt:
		in = comparableFilter(kind, graphql.Int, nil)
	case filterKindFloat:
		in = comparableFilter(kind, graphql.Float, nil)
	case filterKindDateTime:
		in = comparableFilter(kind, DateTimeScalar, nil)
	case filterKindBoolean:
		in = graphql.NewInputObject(graphql.InputObjectConfig{
			Name: kind,
			Fields: graphql.InputObjectConfigFieldMap{
				sqlgen.OpEq:        {Type: graphql.Boolean},
				sqlgen.OpNeq:       {Type: graphql.Boolean},
				sqlgen.OpIsNull:    {Type: graphql.Boolean},
				sqlgen.OpIsNotNull: {Type: graphql.Boolean},
			},
		})
	case filterKindJSON:
		path := b.jsonPathFilter()
		in = graphql.NewInputObject(graphql.InputObjectConfig{
			Name: kind,
			Fields: graphql.InputObjectConfigFieldMap{
				sqlgen.OpEq:          {Type: JSONScalar},
				sqlgen.OpNeq:         {Type: JSONScalar},
				sqlgen.OpContains:    {Type: JSONScalar},
				sqlgen.OpContainedBy: {Type: JSONScalar},
				sqlgen.OpHasKey:      {Type: graphql.String},
				sqlgen.OpHasKeys:     {Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
				sqlgen.OpHasAnyKeys:  {Type: graphql.NewList(graphql.NewNonNull(graphql.String))},
				sqlgen.OpPath:        {Type: path},
				sqlgen.OpPathText:    {Type: path},
				sqlgen.OpIsNull:      {Type: graphql.Boolean},
				sqlgen.OpIsNotNull:   {Type: graphql.Boolean},
			},
		})
	}

	b.scalarFilters[kind] = in
	return in
}

// comparableFilter builds the common comparison operator set over a scalar,
// merging in any type-specific extras.
func comparableFilter(name string, scalar graphql.Input, extra graphql.InputObjectConfigFieldMap) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{
		sqlgen.OpEq:        {Type: scalar},
		sqlgen.OpNeq:       {Type: scalar},
		sqlgen.OpGt:        {Type: scalar},
		sqlgen.OpGte:       {Type: scalar},
		sqlgen.OpLt:        {Type: scalar},
		sqlgen.OpLte:       {Type: scalar},
		sqlgen.OpIn:        {Type: graphql.NewList(graphql.NewNonNull(scalar))},
		sqlgen.OpNotIn:     {Type: graphql.NewList(graphql.NewNonNull(scalar))},
		sqlgen.OpIsNull:    {Type: graphql.Boolean},
		sqlgen.OpIsNotNull: {Type: graphql.Boolean},
	}
	for op, cfg := range extra {
		fields[op] = cfg
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{Name: name, Fields: fields})
}

// jsonPathFilter is the input for path and pathText conditions: a key path
// into the document and the value it must equal.
func (b *builder) jsonPathFilter() *graphql.InputObject {
	if b.jsonPath != nil {
		return b.jsonPath
	}
	b.jsonPath = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "JSONPathFilter",
		Fields: graphql.InputObjectConfigFieldMap{
			"path": {Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String)))},
			"eq":   {Type: JSONScalar},
		},
	})
	return b.jsonPath
}

// tableFilter builds T_Filter: one field per column, typed by the column's
// filter kind, plus an or list of the same filter.
func (b *builder) tableFilter(tableName string) *graphql.InputObject {
	t, _ := b.cat.Table(tableName)

	// The or field references the filter itself, so fields are built lazily.
	var filter *graphql.InputObject
	filter = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: tableName + filterSuffix,
		Fields: (graphql.InputObjectConfigFieldMapThunk)(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for i := range t.Columns {
				col := &t.Columns[i]
				fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.scalarFilter(filterKind(col))}
			}
			fields["or"] = &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(filter))}
			return fields
		}),
	})
	return filter
}
