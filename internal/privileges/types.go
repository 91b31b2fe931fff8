package privileges

// ColumnGrants holds the per-column privileges a role was granted.
type ColumnGrants struct {
	Select bool `json:"select"`
	Insert bool `json:"insert"`
	Update bool `json:"update"`
}

// TableGrants holds the table-level privileges plus per-column grants.
type TableGrants struct {
	Select  bool                    `json:"select"`
	Insert  bool                    `json:"insert"`
	Update  bool                    `json:"update"`
	Delete  bool                    `json:"delete"`
	Columns map[string]ColumnGrants `json:"columns"`
}

// RlsPolicy describes one row-level security policy attached to a table.
type RlsPolicy struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	Permissive bool     `json:"permissive"`
	Roles      []string `json:"roles"`
	Command    string   `json:"command"`
	Using      string   `json:"using,omitempty"`
	WithCheck  string   `json:"with_check,omitempty"`
}

// RolePrivileges is the full privilege view for one role. A superuser holds
// universal grants; an unknown role holds none.
type RolePrivileges struct {
	Role      string                 `json:"role"`
	Exists    bool                   `json:"exists"`
	Superuser bool                   `json:"superuser"`
	Tables    map[string]TableGrants `json:"tables"`
	Policies  []RlsPolicy            `json:"policies"`
}

// CanSelect reports whether the role may read the table.
func (rp *RolePrivileges) CanSelect(table string) bool {
	if rp.Superuser {
		return true
	}
	return rp.Tables[table].Select
}

// CanInsert reports whether the role may insert into the table.
func (rp *RolePrivileges) CanInsert(table string) bool {
	if rp.Superuser {
		return true
	}
	return rp.Tables[table].Insert
}

// CanUpdate reports whether the role may update the table.
func (rp *RolePrivileges) CanUpdate(table string) bool {
	if rp.Superuser {
		return true
	}
	return rp.Tables[table].Update
}

// CanDelete reports whether the role may delete from the table.
func (rp *RolePrivileges) CanDelete(table string) bool {
	if rp.Superuser {
		return true
	}
	return rp.Tables[table].Delete
}

// CanSelectColumn reports whether the role may read the column. Column grants
// default to the table-level SELECT when no column entry exists.
func (rp *RolePrivileges) CanSelectColumn(table, column string) bool {
	if rp.Superuser {
		return true
	}
	tg, ok := rp.Tables[table]
	if !ok {
		return false
	}
	if cg, ok := tg.Columns[column]; ok {
		return cg.Select
	}
	return tg.Select
}
