package graphql

import (
	"strings"

	"github.com/gobuffalo/flect"
)

// Table object types carry the PostgreSQL identifier verbatim; derived types
// hang suffixes off it. Custom enum and composite types get PascalCase names.

const (
	filterSuffix     = "_Filter"
	orderBySuffix    = "_OrderByInput"
	edgeSuffix       = "_Edge"
	connectionSuffix = "_Connection"
	createSuffix     = "_CreateInput"
	updateSuffix     = "_UpdateInput"
	deleteSuffix     = "_DeleteInput"
	relationsSuffix  = "_CreateWithRelationsInput"
	changeSuffix     = "_ChangeEvent"
	subDataSuffix    = "_SubscriptionData"
)

// customTypeName strips the schema qualifier and pascalizes the bare name.
func customTypeName(qualified string) string {
	name := qualified
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return flect.Pascalize(name)
}

// enumValueName uppercases an enum label and replaces characters GraphQL
// cannot carry in an enum value.
func enumValueName(label string) string {
	upper := strings.ToUpper(label)
	var b strings.Builder
	for i := 0; i < len(upper); i++ {
		c := upper[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

// forwardFieldName names the object field behind an outgoing foreign key. It
// is the referenced table's name unless that is already taken, in which case
// the FK column disambiguates.
func forwardFieldName(referencedTable, fkColumn string, taken map[string]bool) string {
	if !taken[referencedTable] {
		return referencedTable
	}
	return referencedTable + "_by_" + fkColumn
}

// reverseFieldName names the list field for tables whose FK points here.
func reverseFieldName(referencingTable, fkColumn string, taken map[string]bool) string {
	plural := flect.Pluralize(referencingTable)
	if !taken[plural] {
		return plural
	}
	return plural + "_by_" + fkColumn
}
