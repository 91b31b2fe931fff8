package catalog

import (
	"sort"
	"strings"
	"time"
)

// OriginalType tags how a column's logical type was declared in the database.
type OriginalType string

const (
	OriginalPlain     OriginalType = "plain"
	OriginalEnum      OriginalType = "enum"
	OriginalComposite OriginalType = "composite"
	OriginalDomain    OriginalType = "domain"
)

// Column describes one column of a table or view.
type Column struct {
	Name         string       `json:"name"`
	Type         string       `json:"type"` // normalized type name, arrays as "elem[]"
	Nullable     bool         `json:"nullable"`
	PrimaryKey   bool         `json:"primary_key"`
	HasDefault   bool         `json:"has_default"`
	Default      *string      `json:"default,omitempty"`
	OriginalType OriginalType `json:"original_type"`
	// OriginalName holds the user-defined type name (enum, composite or domain)
	// when OriginalType is not plain.
	OriginalName string `json:"original_name,omitempty"`
	Position     int    `json:"position"`
}

// IsArray reports whether the column holds an array value.
func (c *Column) IsArray() bool {
	return strings.HasSuffix(c.Type, "[]")
}

// ElementType returns the array element type, or the type itself for scalars.
func (c *Column) ElementType() string {
	return strings.TrimSuffix(c.Type, "[]")
}

// ForeignKey is a single-column reference to another table.
// Composite foreign keys appear as parallel entries sharing ReferencedTable.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Table describes a table or view with its columns and outgoing references.
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	IsView      bool         `json:"is_view"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// Column returns the named column, if present.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKeyColumns returns the primary key column names in declaration order.
func (t *Table) PrimaryKeyColumns() []string {
	var pk []string
	for i := range t.Columns {
		if t.Columns[i].PrimaryKey {
			pk = append(pk, t.Columns[i].Name)
		}
	}
	return pk
}

// EnumType is a user-defined enum with its labels in declaration order.
type EnumType struct {
	Schema string   `json:"schema"`
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// QualifiedName returns the schema-qualified type name.
func (e EnumType) QualifiedName() string {
	return e.Schema + "." + e.Name
}

// CompositeAttribute is one attribute of a composite type.
type CompositeAttribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// CompositeType is a user-defined record type.
type CompositeType struct {
	Schema     string               `json:"schema"`
	Name       string               `json:"name"`
	Attributes []CompositeAttribute `json:"attributes"`
}

// QualifiedName returns the schema-qualified type name.
func (c CompositeType) QualifiedName() string {
	return c.Schema + "." + c.Name
}

// ReverseRelation describes a table whose foreign key points at another table.
type ReverseRelation struct {
	Table            string // referencing table
	Column           string // referencing column
	ReferencedColumn string // column on the referenced table
}

// Catalog is an immutable snapshot of the relational model for one schema.
type Catalog struct {
	SnapshotID  string                   `json:"snapshot_id"`
	Schema      string                   `json:"schema"`
	Tables      []Table                  `json:"tables"`
	Enums       map[string]EnumType      `json:"enums"`      // key: qualified name
	Composites  map[string]CompositeType `json:"composites"` // key: qualified name
	Domains     map[string]string        `json:"domains"`    // domain name -> base type
	ReflectedAt time.Time                `json:"reflected_at"`
}

// Table returns the named table or view, if present.
func (c *Catalog) Table(name string) (*Table, bool) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], true
		}
	}
	return nil, false
}

// EnumByName resolves an enum by schema-qualified name first, then by bare name.
func (c *Catalog) EnumByName(name string) (EnumType, bool) {
	if e, ok := c.Enums[name]; ok {
		return e, true
	}
	for _, e := range c.Enums {
		if e.Name == name {
			return e, true
		}
	}
	return EnumType{}, false
}

// CompositeByName resolves a composite by schema-qualified name first, then by bare name.
func (c *Catalog) CompositeByName(name string) (CompositeType, bool) {
	if ct, ok := c.Composites[name]; ok {
		return ct, true
	}
	for _, ct := range c.Composites {
		if ct.Name == name {
			return ct, true
		}
	}
	return CompositeType{}, false
}

// ReverseRelations returns the tables referencing the given table via a
// foreign key. The result is sorted by (table, column) so it does not depend
// on table iteration order.
func (c *Catalog) ReverseRelations(table string) []ReverseRelation {
	var rels []ReverseRelation
	for i := range c.Tables {
		src := &c.Tables[i]
		for _, fk := range src.ForeignKeys {
			if fk.ReferencedTable == table {
				rels = append(rels, ReverseRelation{
					Table:            src.Name,
					Column:           fk.Column,
					ReferencedColumn: fk.ReferencedColumn,
				})
			}
		}
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Table != rels[j].Table {
			return rels[i].Table < rels[j].Table
		}
		return rels[i].Column < rels[j].Column
	})
	return rels
}
