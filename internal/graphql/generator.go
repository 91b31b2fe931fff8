package graphql

import (
	"sort"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/catalog"
	"github.com/graphgate-io/graphgate/internal/cdc"
	"github.com/graphgate-io/graphgate/internal/exec"
	"github.com/graphgate-io/graphgate/internal/privileges"
)

// Generator derives a GraphQL schema from a catalog snapshot. Generation is
// deterministic: the same catalog and privileges always produce the same
// schema document.
type Generator struct {
	reader    Reader
	writer    Writer
	hub       *cdc.Hub
	heartbeat time.Duration
}

// NewGenerator wires the executors and the change hub the generated
// resolvers will call. hub may be nil when CDC is disabled; subscription
// fields then reject subscribe requests. heartbeat is the interval at which
// table change streams emit HEARTBEAT events; zero selects the default.
func NewGenerator(reader Reader, writer Writer, hub *cdc.Hub, heartbeat time.Duration) *Generator {
	if heartbeat <= 0 {
		heartbeat = healthInterval
	}
	return &Generator{reader: reader, writer: writer, hub: hub, heartbeat: heartbeat}
}

// Generate builds the schema for a catalog, restricted by the caller's
// privileges. priv nil means unrestricted access with no role switching.
func (g *Generator) Generate(cat *catalog.Catalog, priv *privileges.RolePrivileges) (*graphql.Schema, error) {
	role := ""
	if priv != nil {
		role = priv.Role
	}
	b := &builder{
		gen:           g,
		cat:           cat,
		priv:          priv,
		role:          role,
		names:         make(map[string]string),
		objects:       make(map[string]*graphql.Object),
		enums:         make(map[string]*graphql.Enum),
		compositeObjs: make(map[string]*graphql.Object),
		compositeIns:  make(map[string]*graphql.InputObject),
		createInputs:  make(map[string]*graphql.InputObject),
		scalarFilters: make(map[string]*graphql.InputObject),
	}
	return b.build()
}

// builder holds the per-generation type registries. Composite inputs and
// create inputs are memoized because several tables can reference the same
// type.
type builder struct {
	gen  *Generator
	cat  *catalog.Catalog
	priv *privileges.RolePrivileges
	role string

	names         map[string]string // type name -> what declared it
	objects       map[string]*graphql.Object
	enums         map[string]*graphql.Enum
	compositeObjs map[string]*graphql.Object
	compositeIns  map[string]*graphql.InputObject
	createInputs  map[string]*graphql.InputObject
	scalarFilters map[string]*graphql.InputObject
	jsonPath      *graphql.InputObject
	orderDir      *graphql.Enum
	pageInfo      *graphql.Object
}

func (b *builder) build() (*graphql.Schema, error) {
	if len(b.cat.Tables) == 0 {
		return b.minimalSchema()
	}

	if err := b.registerNames(); err != nil {
		return nil, err
	}
	b.buildEnums()

	// First pass creates empty object stubs so foreign keys can reference
	// each other; the second pass fills the fields in.
	for i := range b.cat.Tables {
		t := &b.cat.Tables[i]
		b.objects[t.Name] = graphql.NewObject(graphql.ObjectConfig{
			Name:   t.Name,
			Fields: graphql.Fields{},
		})
	}
	for i := range b.cat.Tables {
		b.populateObject(&b.cat.Tables[i])
	}

	queryFields := graphql.Fields{
		"health": healthField(),
	}
	mutationFields := graphql.Fields{}
	subscriptionFields := graphql.Fields{
		"health": b.healthSubscription(),
	}

	for i := range b.cat.Tables {
		t := &b.cat.Tables[i]
		filter := b.tableFilter(t.Name)
		orderBy := b.orderByInput(t)

		queryFields[t.Name] = b.listField(t, filter, orderBy)
		queryFields[t.Name+"_connection"] = b.connectionField(t, filter, orderBy)

		if !t.IsView {
			b.addMutationFields(mutationFields, t)
		}

		subscriptionFields[t.Name+"_changes"] = b.changesField(t)
	}

	schemaConfig := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: subscriptionFields,
		}),
	}
	if len(mutationFields) > 0 {
		schemaConfig.Mutation = graphql.NewObject(graphql.ObjectConfig{
			Name:   "Mutation",
			Fields: mutationFields,
		})
	}

	schema, err := graphql.NewSchema(schemaConfig)
	if err != nil {
		return nil, exec.Schemaf("building GraphQL schema: %v", err)
	}
	log.Debug().
		Str("snapshot", b.cat.SnapshotID).
		Str("role", b.role).
		Int("tables", len(b.cat.Tables)).
		Msg("GraphQL schema generated")
	return &schema, nil
}

// minimalSchema serves an empty catalog: health on Query and Subscription,
// nothing else.
func (b *builder) minimalSchema() (*graphql.Schema, error) {
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: graphql.Fields{"health": healthField()},
		}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Subscription",
			Fields: graphql.Fields{"health": b.healthSubscription()},
		}),
	})
	if err != nil {
		return nil, exec.Schemaf("building minimal schema: %v", err)
	}
	return &schema, nil
}

func healthField() *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return "ok", nil
		},
	}
}

// registerNames claims a GraphQL type name for every table and custom type
// up front. A table colliding with a custom type is a hard schema error.
func (b *builder) registerNames() error {
	for i := range b.cat.Tables {
		name := b.cat.Tables[i].Name
		if prev, ok := b.names[name]; ok {
			return exec.Schemaf("type name %q already taken by %s", name, prev)
		}
		b.names[name] = "table " + name
	}
	for _, key := range sortedKeys(b.cat.Enums) {
		e := b.cat.Enums[key]
		name := customTypeName(e.Name)
		if prev, ok := b.names[name]; ok {
			return exec.Schemaf("enum type %q collides with %s", name, prev)
		}
		b.names[name] = "enum " + e.QualifiedName()
	}
	for _, key := range sortedKeys(b.cat.Composites) {
		c := b.cat.Composites[key]
		name := customTypeName(c.Name)
		if prev, ok := b.names[name]; ok {
			return exec.Schemaf("composite type %q collides with %s", name, prev)
		}
		b.names[name] = "composite " + c.QualifiedName()
	}
	return nil
}

func (b *builder) buildEnums() {
	for _, key := range sortedKeys(b.cat.Enums) {
		e := b.cat.Enums[key]
		values := graphql.EnumValueConfigMap{}
		for _, label := range e.Labels {
			values[enumValueName(label)] = &graphql.EnumValueConfig{Value: label}
		}
		b.enums[e.Name] = graphql.NewEnum(graphql.EnumConfig{
			Name:   customTypeName(e.Name),
			Values: values,
		})
	}
}

// enumType resolves an enum by bare or qualified name.
func (b *builder) enumType(name string) *graphql.Enum {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return b.enums[name]
}

// compositeObject returns the output object for a composite type, building
// it on first use.
func (b *builder) compositeObject(name string) *graphql.Object {
	ct, ok := b.cat.CompositeByName(name)
	if !ok {
		return nil
	}
	if obj, ok := b.compositeObjs[ct.Name]; ok {
		return obj
	}

	fields := graphql.Fields{}
	for _, attr := range ct.Attributes {
		fields[attr.Name] = &graphql.Field{
			Type:    b.attrOutputType(attr),
			Resolve: mapFieldResolver(attr.Name),
		}
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:   customTypeName(ct.Name),
		Fields: fields,
	})
	b.compositeObjs[ct.Name] = obj
	return obj
}

// compositeInput returns the paired input type for a composite, memoized so
// repeated column references share one instance.
func (b *builder) compositeInput(name string) *graphql.InputObject {
	ct, ok := b.cat.CompositeByName(name)
	if !ok {
		return nil
	}
	if in, ok := b.compositeIns[ct.Name]; ok {
		return in
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, attr := range ct.Attributes {
		fields[attr.Name] = &graphql.InputObjectFieldConfig{Type: b.attrInputType(attr)}
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   customTypeName(ct.Name) + "Input",
		Fields: fields,
	})
	b.compositeIns[ct.Name] = in
	return in
}

func (b *builder) attrOutputType(attr catalog.CompositeAttribute) graphql.Output {
	typeName := strings.TrimSuffix(attr.Type, "[]")
	var base graphql.Output
	if enum := b.enumType(typeName); enum != nil {
		base = enum
	} else if obj := b.compositeObject(typeName); obj != nil {
		base = obj
	} else {
		base = scalarForPostgresType(typeName)
	}
	if strings.HasSuffix(attr.Type, "[]") {
		return graphql.NewList(base)
	}
	return base
}

func (b *builder) attrInputType(attr catalog.CompositeAttribute) graphql.Input {
	typeName := strings.TrimSuffix(attr.Type, "[]")
	var base graphql.Input
	if enum := b.enumType(typeName); enum != nil {
		base = enum
	} else if in := b.compositeInput(typeName); in != nil {
		base = in
	} else {
		base = scalarInputForPostgresType(typeName)
	}
	if strings.HasSuffix(attr.Type, "[]") {
		return graphql.NewList(base)
	}
	return base
}

// populateObject fills a table object with column fields, forward FK fields
// and reverse relationship lists.
func (b *builder) populateObject(t *catalog.Table) {
	obj := b.objects[t.Name]
	taken := make(map[string]bool, len(t.Columns))

	for i := range t.Columns {
		col := &t.Columns[i]
		taken[col.Name] = true
		obj.AddFieldConfig(col.Name, &graphql.Field{
			Type:    b.columnOutputType(col),
			Resolve: mapFieldResolver(col.Name),
		})
	}

	for _, fk := range t.ForeignKeys {
		refObj, ok := b.objects[fk.ReferencedTable]
		if !ok {
			continue
		}
		name := forwardFieldName(fk.ReferencedTable, fk.Column, taken)
		taken[name] = true
		obj.AddFieldConfig(name, &graphql.Field{
			Type:    refObj,
			Resolve: b.forwardResolver(t.Name, fk),
		})
	}

	for _, rel := range b.cat.ReverseRelations(t.Name) {
		refObj, ok := b.objects[rel.Table]
		if !ok {
			continue
		}
		name := reverseFieldName(rel.Table, rel.Column, taken)
		taken[name] = true
		obj.AddFieldConfig(name, &graphql.Field{
			Type:    graphql.NewList(refObj),
			Resolve: b.reverseResolver(rel),
		})
	}
}

// orderByInput maps every column to the shared direction enum.
func (b *builder) orderByInput(t *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range t.Columns {
		fields[t.Columns[i].Name] = &graphql.InputObjectFieldConfig{Type: b.orderDirection()}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + orderBySuffix,
		Fields: fields,
	})
}

func (b *builder) orderDirection() *graphql.Enum {
	if b.orderDir == nil {
		b.orderDir = graphql.NewEnum(graphql.EnumConfig{
			Name: "OrderDirection",
			Values: graphql.EnumValueConfigMap{
				"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
				"DESC": &graphql.EnumValueConfig{Value: "DESC"},
			},
		})
	}
	return b.orderDir
}

func (b *builder) pageInfoObject() *graphql.Object {
	if b.pageInfo == nil {
		b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
			Name: "PageInfo",
			Fields: graphql.Fields{
				"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
				"startCursor":     &graphql.Field{Type: graphql.String},
				"endCursor":       &graphql.Field{Type: graphql.String},
			},
		})
	}
	return b.pageInfo
}

// createInput has every writable column optional; the database enforces
// required columns so defaults keep working.
func (b *builder) createInput(t *catalog.Table) *graphql.InputObject {
	if in, ok := b.createInputs[t.Name]; ok {
		return in
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range t.Columns {
		col := &t.Columns[i]
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, false)}
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + createSuffix,
		Fields: fields,
	})
	b.createInputs[t.Name] = in
	return in
}

// updateInput requires the full primary key and leaves the rest optional.
func (b *builder) updateInput(t *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range t.Columns {
		col := &t.Columns[i]
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, col.PrimaryKey)}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + updateSuffix,
		Fields: fields,
	})
}

// deleteInput carries the primary key; a table without one gets a single
// synthesized id field.
func (b *builder) deleteInput(t *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range t.Columns {
		col := &t.Columns[i]
		if col.PrimaryKey {
			fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, true)}
		}
	}
	if len(fields) == 0 {
		fields["id"] = &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + deleteSuffix,
		Fields: fields,
	})
}

// relationsInput extends the create input with connect and create fields per
// outgoing FK and a createMany list per incoming FK.
func (b *builder) relationsInput(t *catalog.Table) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	for i := range t.Columns {
		col := &t.Columns[i]
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, false)}
	}

	for _, fk := range t.ForeignKeys {
		ref, ok := b.cat.Table(fk.ReferencedTable)
		if !ok {
			continue
		}
		fields[fk.ReferencedTable+"_connect"] = &graphql.InputObjectFieldConfig{
			Type: b.connectInput(ref, fk),
		}
		fields[fk.ReferencedTable+"_create"] = &graphql.InputObjectFieldConfig{
			Type: b.createInput(ref),
		}
	}
	for _, rel := range b.cat.ReverseRelations(t.Name) {
		child, ok := b.cat.Table(rel.Table)
		if !ok {
			continue
		}
		fields[rel.Table+"_createMany"] = &graphql.InputObjectFieldConfig{
			Type: graphql.NewList(graphql.NewNonNull(b.createInput(child))),
		}
	}

	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   t.Name + relationsSuffix,
		Fields: fields,
	})
}

// connectInput carries the referenced key of an existing row.
func (b *builder) connectInput(ref *catalog.Table, fk catalog.ForeignKey) *graphql.InputObject {
	fields := graphql.InputObjectConfigFieldMap{}
	if col, ok := ref.Column(fk.ReferencedColumn); ok {
		fields[col.Name] = &graphql.InputObjectFieldConfig{Type: b.columnInputType(col, true)}
	} else {
		fields["id"] = &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)}
	}
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   ref.Name + "_" + fk.ReferencedColumn + "_ConnectInput",
		Fields: fields,
	})
}

func (b *builder) addMutationFields(fields graphql.Fields, t *catalog.Table) {
	create := b.createInput(t)

	if b.canInsert(t.Name) {
		fields["create_"+t.Name] = &graphql.Field{
			Type: b.objects[t.Name],
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(create)},
			},
			Resolve: b.createResolver(t.Name),
		}
		fields["createMany_"+t.Name] = &graphql.Field{
			Type: graphql.NewList(b.objects[t.Name]),
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(create))),
				},
			},
			Resolve: b.createManyResolver(t.Name),
		}
		fields["createWithRelations_"+t.Name] = &graphql.Field{
			Type: b.objects[t.Name],
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.relationsInput(t))},
			},
			Resolve: b.createWithRelationsResolver(t.Name),
		}
	}

	if b.canUpdate(t.Name) && len(t.PrimaryKeyColumns()) > 0 {
		fields["update_"+t.Name] = &graphql.Field{
			Type: b.objects[t.Name],
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.updateInput(t))},
			},
			Resolve: b.updateResolver(t.Name),
		}
	}

	if b.canDelete(t.Name) {
		fields["delete_"+t.Name] = &graphql.Field{
			Type: b.objects[t.Name],
			Args: graphql.FieldConfigArgument{
				"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(b.deleteInput(t))},
			},
			Resolve: b.deleteResolver(t.Name),
		}
	}
}

func (b *builder) canInsert(table string) bool {
	return b.priv == nil || b.priv.CanInsert(table)
}

func (b *builder) canUpdate(table string) bool {
	return b.priv == nil || b.priv.CanUpdate(table)
}

func (b *builder) canDelete(table string) bool {
	return b.priv == nil || b.priv.CanDelete(table)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mapFieldResolver reads one key out of a row map.
func mapFieldResolver(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		if source, ok := p.Source.(map[string]interface{}); ok {
			return source[name], nil
		}
		return nil, nil
	}
}
