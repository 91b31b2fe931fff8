package privileges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphgate-io/graphgate/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		SnapshotID: "snap-1",
		Schema:     "public",
		Tables: []catalog.Table{
			{
				Name: "users",
				Columns: []catalog.Column{
					{Name: "id", Type: "uuid", PrimaryKey: true, Position: 1},
					{Name: "email", Type: "text", Position: 2},
					{Name: "password_hash", Type: "text", Position: 3},
				},
			},
			{
				Name: "orders",
				Columns: []catalog.Column{
					{Name: "id", Type: "int8", PrimaryKey: true, Position: 1},
					{Name: "user_id", Type: "uuid", Position: 2},
				},
				ForeignKeys: []catalog.ForeignKey{
					{Column: "user_id", ReferencedTable: "users", ReferencedColumn: "id"},
				},
			},
			{
				Name: "audit_log",
				Columns: []catalog.Column{
					{Name: "id", Type: "int8", PrimaryKey: true, Position: 1},
				},
			},
		},
	}
}

func TestFilterSuperuserGetsFullCatalog(t *testing.T) {
	cat := testCatalog()
	rp := &RolePrivileges{Role: "postgres", Exists: true, Superuser: true}

	filtered := Filter(cat, rp)
	assert.Same(t, cat, filtered)
}

func TestFilterUnknownRoleGetsEmptyCatalog(t *testing.T) {
	cat := testCatalog()
	rp := &RolePrivileges{Role: "ghost", Tables: map[string]TableGrants{}}

	filtered := Filter(cat, rp)
	assert.Empty(t, filtered.Tables)
	assert.Equal(t, "snap-1", filtered.SnapshotID)
}

func TestFilterHidesTablesAndColumns(t *testing.T) {
	cat := testCatalog()
	rp := &RolePrivileges{
		Role:   "app_reader",
		Exists: true,
		Tables: map[string]TableGrants{
			"users": {
				Select: true,
				Columns: map[string]ColumnGrants{
					"password_hash": {Select: false},
				},
			},
			"orders": {Select: true, Columns: map[string]ColumnGrants{}},
			// audit_log has no SELECT grant
		},
	}

	filtered := Filter(cat, rp)
	require.Len(t, filtered.Tables, 2)

	users, ok := filtered.Table("users")
	require.True(t, ok)
	_, hasSecret := users.Column("password_hash")
	assert.False(t, hasSecret)
	_, hasEmail := users.Column("email")
	assert.True(t, hasEmail)

	_, ok = filtered.Table("audit_log")
	assert.False(t, ok)
}

func TestFilterDropsForeignKeysToHiddenTables(t *testing.T) {
	cat := testCatalog()
	rp := &RolePrivileges{
		Role:   "orders_only",
		Exists: true,
		Tables: map[string]TableGrants{
			"orders": {Select: true, Columns: map[string]ColumnGrants{}},
		},
	}

	filtered := Filter(cat, rp)
	orders, ok := filtered.Table("orders")
	require.True(t, ok)
	assert.Empty(t, orders.ForeignKeys)
}

func TestRolePrivilegeChecks(t *testing.T) {
	rp := &RolePrivileges{
		Role:   "writer",
		Exists: true,
		Tables: map[string]TableGrants{
			"orders": {
				Select: true,
				Insert: true,
				Columns: map[string]ColumnGrants{
					"internal_note": {Select: false},
				},
			},
		},
	}

	assert.True(t, rp.CanSelect("orders"))
	assert.True(t, rp.CanInsert("orders"))
	assert.False(t, rp.CanUpdate("orders"))
	assert.False(t, rp.CanDelete("orders"))
	assert.False(t, rp.CanSelect("users"))

	assert.True(t, rp.CanSelectColumn("orders", "id"))
	assert.False(t, rp.CanSelectColumn("orders", "internal_note"))
	assert.False(t, rp.CanSelectColumn("users", "id"))

	super := &RolePrivileges{Role: "postgres", Exists: true, Superuser: true}
	assert.True(t, super.CanDelete("anything"))
	assert.True(t, super.CanSelectColumn("anything", "any"))
}
