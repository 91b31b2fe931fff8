package privileges

import (
	"github.com/graphgate-io/graphgate/internal/catalog"
)

// Filter trims a catalog snapshot to what the role may see. Superusers get
// the snapshot back untouched; unknown roles get a catalog with no tables.
// The filter only shapes the visible surface; the database still enforces
// its own grants and RLS on every statement.
func Filter(cat *catalog.Catalog, rp *RolePrivileges) *catalog.Catalog {
	if rp.Superuser {
		return cat
	}

	filtered := &catalog.Catalog{
		SnapshotID:  cat.SnapshotID,
		Schema:      cat.Schema,
		Enums:       cat.Enums,
		Composites:  cat.Composites,
		Domains:     cat.Domains,
		ReflectedAt: cat.ReflectedAt,
	}

	visible := make(map[string]bool)
	for _, t := range cat.Tables {
		if rp.CanSelect(t.Name) {
			visible[t.Name] = true
		}
	}

	for _, t := range cat.Tables {
		if !visible[t.Name] {
			continue
		}

		var cols []catalog.Column
		for _, c := range t.Columns {
			if rp.CanSelectColumn(t.Name, c.Name) {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			continue
		}

		// Drop foreign keys whose target or local column is hidden so the
		// generator never emits a relationship field the role cannot read.
		var fks []catalog.ForeignKey
		for _, fk := range t.ForeignKeys {
			if !visible[fk.ReferencedTable] {
				continue
			}
			if !rp.CanSelectColumn(t.Name, fk.Column) {
				continue
			}
			fks = append(fks, fk)
		}

		filtered.Tables = append(filtered.Tables, catalog.Table{
			Schema:      t.Schema,
			Name:        t.Name,
			IsView:      t.IsView,
			Columns:     cols,
			ForeignKeys: fks,
		})
	}

	return filtered
}
