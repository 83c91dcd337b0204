package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"bulksync/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Lookup helpers (idempotent name ensure + id lookup by name_key)
  - Single-row inserts returning the generated id
  - Column-level updates by id

All statements run on a pgxpool, so the pipeline's row workers get their own
connections.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates tables when AutoCreateTable is enabled.
//
// Schema-qualified names ("sync.organizations") also get a CREATE SCHEMA.
// This method is idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		schemaSQL, baseSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, baseSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// EnsureLookupKeys inserts missing lookup names.
//
// The function is idempotent: it uses Postgres ON CONFLICT DO NOTHING on
// name_key. Keys are inserted in chunks to stay well below the parameter limit.
func (r *Repo) EnsureLookupKeys(ctx context.Context, table string, names []storage.LookupName) error {
	if len(names) == 0 {
		return nil
	}
	if table == "" {
		return fmt.Errorf("EnsureLookupKeys: table is required")
	}

	const chunk = 2000
	for _, w := range storage.Chunks(len(names), chunk) {
		q, args := buildEnsureLookupSQL(table, names[w[0]:w[1]])
		if _, err := r.pool.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("EnsureLookupKeys: insert into %s: %w", table, err)
		}
	}
	return nil
}

// SelectIDsByKeys returns name_key -> id for a set of keys.
//
// This uses a parameterized IN (...) list (chunked) instead of ANY($1) arrays to avoid
// driver array-typing edge cases.
func (r *Repo) SelectIDsByKeys(ctx context.Context, table string, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	const chunk = 2000
	for _, w := range storage.Chunks(len(keys), chunk) {
		part := keys[w[0]:w[1]]
		q := fmt.Sprintf(
			"SELECT %s, %s FROM %s WHERE %s IN (%s)",
			pgIdent(storage.KeyColumn), pgIdent(storage.IDColumn), table,
			pgIdent(storage.KeyColumn), dollarList(1, len(part)),
		)

		rows, err := r.pool.Query(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("SelectIDsByKeys: query %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("SelectIDsByKeys: scan %s: %w", table, err)
			}
			out[storage.NormalizeKey(k)] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("SelectIDsByKeys: rows %s: %w", table, err)
		}
		rows.Close()
	}
	return out, nil
}

func (r *Repo) SelectContacts(ctx context.Context, keys []string) ([]storage.ContactRef, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var out []storage.ContactRef
	const chunk = 2000
	for _, w := range storage.Chunks(len(keys), chunk) {
		part := keys[w[0]:w[1]]
		q := fmt.Sprintf(
			"SELECT %s, %s, %s FROM %s WHERE %s IN (%s)",
			pgIdent(storage.IDColumn), pgIdent(storage.KeyColumn), pgIdent(storage.OrganizationColumn),
			storage.Contacts, pgIdent(storage.KeyColumn), dollarList(1, len(part)),
		)
		rows, err := r.pool.Query(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("SelectContacts: %w", err)
		}
		for rows.Next() {
			var c storage.ContactRef
			var k any
			var org *int64
			if err := rows.Scan(&c.ID, &k, &org); err != nil {
				rows.Close()
				return nil, fmt.Errorf("SelectContacts: scan: %w", err)
			}
			c.NameKey = storage.NormalizeKey(k)
			if org != nil {
				c.OrganizationID = *org
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("SelectContacts: rows: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

func (r *Repo) InsertRecord(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	q, err := buildInsertSQL(table, columns, values)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.pool.QueryRow(ctx, q, values...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

func (r *Repo) UpdateRecord(ctx context.Context, table string, id int64, columns []string, values []any) error {
	if len(columns) == 0 {
		return nil
	}
	q, args, err := buildUpdateSQL(table, id, columns, values)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s id=%d: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNoRows
	}
	return nil
}

// buildEnsureLookupSQL builds the INSERT ... ON CONFLICT DO NOTHING statement
// for one chunk. Split out so placeholder numbering is testable without a database.
func buildEnsureLookupSQL(table string, names []storage.LookupName) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(pgIdent(storage.NameColumn))
	b.WriteString(", ")
	b.WriteString(pgIdent(storage.KeyColumn))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(names)*2)
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("($%d, $%d)", 2*i+1, 2*i+2))
		args = append(args, n.Name, n.Key)
	}
	b.WriteString(" ON CONFLICT (")
	b.WriteString(pgIdent(storage.KeyColumn))
	b.WriteString(") DO NOTHING")
	return b.String(), args
}

func buildInsertSQL(table string, columns []string, values []any) (string, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return "", fmt.Errorf("insert into %s: %d columns for %d values", table, len(columns), len(values))
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table, strings.Join(cols, ", "), dollarList(1, len(columns)), pgIdent(storage.IDColumn),
	), nil
}

func buildUpdateSQL(table string, id int64, columns []string, values []any) (string, []any, error) {
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("update %s: %d columns for %d values", table, len(columns), len(values))
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", pgIdent(c), i+1)
	}
	args := append(append([]any(nil), values...), id)
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(sets, ", "), pgIdent(storage.IDColumn), len(columns)+1,
	), args, nil
}

// buildCreateSQL generates DDL for one table.
//
// Outputs:
//   - schemaSQL: optional CREATE SCHEMA statement when t.Name is schema-qualified.
//   - baseSQL:   CREATE TABLE IF NOT EXISTS for the table.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, baseSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if schema, _, ok := strings.Cut(t.Name, "."); ok && schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	var parts []string
	if t.PrimaryKey != nil {
		switch strings.ToLower(strings.TrimSpace(t.PrimaryKey.Type)) {
		case "serial", "bigserial":
			parts = append(parts, fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", pgIdent(t.PrimaryKey.Name)))
		case "identity", "int identity", "integer identity":
			parts = append(parts, fmt.Sprintf("%s BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY", pgIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", pgIdent(c.Name), columnType(c.Type))
		if c.Nullable != nil && !*c.Nullable {
			col += " NOT NULL"
		}
		if c.References != "" {
			col += " REFERENCES " + c.References
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return "", "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		cols := make([]string, 0, len(con.Columns))
		for _, c := range con.Columns {
			cols = append(cols, pgIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	baseSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  "))
	return schemaSQL, baseSQL, nil
}

func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeKey, storage.TypeText:
		return "TEXT"
	case storage.TypeBigint:
		return "BIGINT"
	case storage.TypeDouble:
		return "DOUBLE PRECISION"
	case storage.TypeBoolean:
		return "BOOLEAN"
	default:
		return logical
	}
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func dollarList(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("$%d", from+i))
	}
	return b.String()
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
