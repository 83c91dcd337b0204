package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"bulksync/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no ON CONFLICT target clause on older files we may open, but
//     "INSERT OR IGNORE" works against the UNIQUE name_key constraint.
//   - The pool is pinned to a single connection. ":memory:" databases are
//     per-connection, and SQLite serializes writers anyway.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a path, "file:" URI or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates tables flagged AutoCreateTable. Idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// EnsureLookupKeys inserts lookup names that do not yet exist.
//
// "INSERT OR IGNORE" relies on the UNIQUE constraint over name_key.
func (r *Repo) EnsureLookupKeys(ctx context.Context, table string, names []storage.LookupName) error {
	if len(names) == 0 {
		return nil
	}
	const chunk = 500
	for _, w := range storage.Chunks(len(names), chunk) {
		part := names[w[0]:w[1]]

		var b strings.Builder
		b.WriteString("INSERT OR IGNORE INTO ")
		b.WriteString(table)
		b.WriteString(" (")
		b.WriteString(sqlIdent(storage.NameColumn))
		b.WriteString(", ")
		b.WriteString(sqlIdent(storage.KeyColumn))
		b.WriteString(") VALUES ")

		args := make([]any, 0, len(part)*2)
		for i, n := range part {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?)")
			args = append(args, n.Name, n.Key)
		}

		if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("EnsureLookupKeys: insert into %s: %w", table, err)
		}
	}
	return nil
}

func (r *Repo) SelectIDsByKeys(ctx context.Context, table string, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	const chunk = 500
	for _, w := range storage.Chunks(len(keys), chunk) {
		part := keys[w[0]:w[1]]
		q := fmt.Sprintf(
			`SELECT %s, %s FROM %s WHERE %s IN (%s)`,
			sqlIdent(storage.KeyColumn), sqlIdent(storage.IDColumn), table,
			sqlIdent(storage.KeyColumn), placeholders(len(part)),
		)

		rows, err := r.db.QueryContext(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("SelectIDsByKeys: query %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id sql.NullInt64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, err
			}
			if !id.Valid {
				rows.Close()
				return nil, fmt.Errorf("sqlite: %s.%s is NULL; primary key not auto-generated", table, storage.IDColumn)
			}
			out[storage.NormalizeKey(k)] = id.Int64
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
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
	const chunk = 500
	for _, w := range storage.Chunks(len(keys), chunk) {
		part := keys[w[0]:w[1]]
		q := fmt.Sprintf(
			`SELECT %s, %s, %s FROM %s WHERE %s IN (%s)`,
			sqlIdent(storage.IDColumn), sqlIdent(storage.KeyColumn), sqlIdent(storage.OrganizationColumn),
			storage.Contacts, sqlIdent(storage.KeyColumn), placeholders(len(part)),
		)
		rows, err := r.db.QueryContext(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("SelectContacts: %w", err)
		}
		for rows.Next() {
			var c storage.ContactRef
			var k any
			var org sql.NullInt64
			if err := rows.Scan(&c.ID, &k, &org); err != nil {
				rows.Close()
				return nil, err
			}
			c.NameKey = storage.NormalizeKey(k)
			c.OrganizationID = org.Int64
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// InsertRecord inserts one row and returns its id via RETURNING.
func (r *Repo) InsertRecord(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	q, err := buildInsertSQL(table, columns, values)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, q, values...).Scan(&id); err != nil {
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
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s id=%d: %w", table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNoRows
	}
	return nil
}

func buildInsertSQL(table string, columns []string, values []any) (string, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return "", fmt.Errorf("insert into %s: %d columns for %d values", table, len(columns), len(values))
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = sqlIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table, strings.Join(cols, ", "), placeholders(len(columns)), sqlIdent(storage.IDColumn),
	), nil
}

func buildUpdateSQL(table string, id int64, columns []string, values []any) (string, []any, error) {
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("update %s: %d columns for %d values", table, len(columns), len(values))
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = sqlIdent(c) + " = ?"
	}
	args := append(append([]any(nil), values...), id)
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ?",
		table, strings.Join(sets, ", "), sqlIdent(storage.IDColumn),
	), args, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimRight(strings.Repeat("?,", n), ",")
}

func stringArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	var parts []string

	if t.PrimaryKey != nil {
		pkType := strings.TrimSpace(strings.ToLower(t.PrimaryKey.Type))

		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		switch pkType {
		case "serial", "bigserial", "int identity", "integer identity", "identity":
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Type))
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
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", t.Name, strings.Join(parts, ",\n  ")), nil
}

// columnType maps logical column types onto SQLite type affinities.
// Unknown types pass through verbatim.
func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeKey, storage.TypeText:
		return "TEXT"
	case storage.TypeBigint, storage.TypeBoolean:
		return "INTEGER"
	case storage.TypeDouble:
		return "REAL"
	default:
		return logical
	}
}
