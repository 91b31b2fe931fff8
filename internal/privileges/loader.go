package privileges

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Querier is the subset of pgxpool.Pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Loader queries role grants and RLS policies with a fixed number of bulk
// queries per role, mirroring how the catalog reflector works.
type Loader struct {
	db     Querier
	schema string
}

// NewLoader creates a privilege loader for the given schema.
func NewLoader(db Querier, schema string) *Loader {
	return &Loader{db: db, schema: schema}
}

const roleQuery = `
	SELECT rolsuper
	FROM pg_catalog.pg_roles
	WHERE rolname = $1`

const tableGrantsQuery = `
	SELECT
		c.relname,
		pg_catalog.has_table_privilege($1, c.oid, 'SELECT'),
		pg_catalog.has_table_privilege($1, c.oid, 'INSERT'),
		pg_catalog.has_table_privilege($1, c.oid, 'UPDATE'),
		pg_catalog.has_table_privilege($1, c.oid, 'DELETE')
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $2
	  AND c.relkind IN ('r', 'p', 'v', 'm')
	ORDER BY c.relname`

const columnGrantsQuery = `
	SELECT
		c.relname,
		a.attname,
		pg_catalog.has_column_privilege($1, c.oid, a.attnum, 'SELECT'),
		pg_catalog.has_column_privilege($1, c.oid, a.attnum, 'INSERT'),
		pg_catalog.has_column_privilege($1, c.oid, a.attnum, 'UPDATE')
	FROM pg_catalog.pg_attribute a
	JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $2
	  AND c.relkind IN ('r', 'p', 'v', 'm')
	  AND a.attnum > 0
	  AND NOT a.attisdropped
	ORDER BY c.relname, a.attnum`

const policiesQuery = `
	SELECT
		pol.polname,
		c.relname,
		pol.polpermissive,
		COALESCE(ARRAY(
			SELECT r.rolname FROM pg_catalog.pg_roles r WHERE r.oid = ANY (pol.polroles)
		), '{}'),
		pol.polcmd::text,
		COALESCE(pg_catalog.pg_get_expr(pol.polqual, pol.polrelid), ''),
		COALESCE(pg_catalog.pg_get_expr(pol.polwithcheck, pol.polrelid), '')
	FROM pg_catalog.pg_policy pol
	JOIN pg_catalog.pg_class c ON c.oid = pol.polrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1
	ORDER BY c.relname, pol.polname`

// Load queries the full privilege view for one role. An unknown role yields
// an empty privilege set, not an error.
func (l *Loader) Load(ctx context.Context, role string) (*RolePrivileges, error) {
	start := time.Now()

	rp := &RolePrivileges{
		Role:   role,
		Tables: make(map[string]TableGrants),
	}

	var superuser bool
	err := l.db.QueryRow(ctx, roleQuery, role).Scan(&superuser)
	if err == pgx.ErrNoRows {
		log.Warn().Str("role", role).Msg("Unknown database role, returning empty privileges")
		return rp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying role %q: %w", role, err)
	}
	rp.Exists = true
	rp.Superuser = superuser

	if superuser {
		return rp, nil
	}

	rows, err := l.db.Query(ctx, tableGrantsQuery, role, l.schema)
	if err != nil {
		return nil, fmt.Errorf("querying table grants: %w", err)
	}
	if err := scanTableGrants(rows, rp); err != nil {
		return nil, fmt.Errorf("scanning table grants: %w", err)
	}

	rows, err = l.db.Query(ctx, columnGrantsQuery, role, l.schema)
	if err != nil {
		return nil, fmt.Errorf("querying column grants: %w", err)
	}
	if err := scanColumnGrants(rows, rp); err != nil {
		return nil, fmt.Errorf("scanning column grants: %w", err)
	}

	rows, err = l.db.Query(ctx, policiesQuery, l.schema)
	if err != nil {
		return nil, fmt.Errorf("querying policies: %w", err)
	}
	if err := scanPolicies(rows, rp); err != nil {
		return nil, fmt.Errorf("scanning policies: %w", err)
	}

	log.Debug().
		Str("role", role).
		Int("tables", len(rp.Tables)).
		Int("policies", len(rp.Policies)).
		Dur("elapsed", time.Since(start)).
		Msg("Role privileges loaded")

	return rp, nil
}

func scanTableGrants(rows pgx.Rows, rp *RolePrivileges) error {
	defer rows.Close()
	for rows.Next() {
		var table string
		var tg TableGrants
		if err := rows.Scan(&table, &tg.Select, &tg.Insert, &tg.Update, &tg.Delete); err != nil {
			return err
		}
		tg.Columns = make(map[string]ColumnGrants)
		rp.Tables[table] = tg
	}
	return rows.Err()
}

func scanColumnGrants(rows pgx.Rows, rp *RolePrivileges) error {
	defer rows.Close()
	for rows.Next() {
		var table, column string
		var cg ColumnGrants
		if err := rows.Scan(&table, &column, &cg.Select, &cg.Insert, &cg.Update); err != nil {
			return err
		}
		tg, ok := rp.Tables[table]
		if !ok {
			continue
		}
		tg.Columns[column] = cg
	}
	return rows.Err()
}

func scanPolicies(rows pgx.Rows, rp *RolePrivileges) error {
	defer rows.Close()
	for rows.Next() {
		var p RlsPolicy
		if err := rows.Scan(&p.Name, &p.Table, &p.Permissive, &p.Roles, &p.Command, &p.Using, &p.WithCheck); err != nil {
			return err
		}
		rp.Policies = append(rp.Policies, p)
	}
	return rows.Err()
}
