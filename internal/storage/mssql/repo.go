package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"bulksync/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Lookup inserts use an "insert where not exists" pattern. Unlike Postgres
// ON CONFLICT DO NOTHING, a concurrent writer can still win the race between
// the NOT EXISTS probe and the insert; the resulting duplicate-key error is
// treated as success because the row now exists either way.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver
// registered by github.com/microsoft/go-mssqldb.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(32)
	raw.SetMaxIdleConns(32)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTables creates tables flagged AutoCreateTable behind an OBJECT_ID guard.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if !t.AutoCreateTable {
			continue
		}
		defs, err := buildCreateTableDefs(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, wrapCreateIfMissing(t.Name, defs)); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) EnsureLookupKeys(ctx context.Context, table string, names []storage.LookupName) error {
	names = dedupeLookupNames(names)
	if len(names) == 0 {
		return nil
	}

	// Two parameters per name; SQL Server caps a statement at 2100.
	const chunk = 1000
	for _, w := range storage.Chunks(len(names), chunk) {
		q, args := buildEnsureLookupSQL(table, names[w[0]:w[1]])
		if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
			if isDuplicateKey(err) {
				continue
			}
			return fmt.Errorf("mssql: ensure lookup keys %s: %w", table, err)
		}
	}
	return nil
}

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
			mssqlIdent(storage.KeyColumn), mssqlIdent(storage.IDColumn), mssqlTableIdent(table),
			mssqlIdent(storage.KeyColumn), paramList(1, len(part)),
		)
		rows, err := r.db.QueryContext(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("mssql: select ids %s: %w", table, err)
		}
		for rows.Next() {
			var k any
			var id int64
			if err := rows.Scan(&k, &id); err != nil {
				rows.Close()
				return nil, err
			}
			out[storage.NormalizeKey(k)] = id
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
	const chunk = 2000
	for _, w := range storage.Chunks(len(keys), chunk) {
		part := keys[w[0]:w[1]]
		q := fmt.Sprintf(
			"SELECT %s, %s, %s FROM %s WHERE %s IN (%s)",
			mssqlIdent(storage.IDColumn), mssqlIdent(storage.KeyColumn), mssqlIdent(storage.OrganizationColumn),
			mssqlTableIdent(storage.Contacts), mssqlIdent(storage.KeyColumn), paramList(1, len(part)),
		)
		rows, err := r.db.QueryContext(ctx, q, stringArgs(part)...)
		if err != nil {
			return nil, fmt.Errorf("mssql: select contacts: %w", err)
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

func (r *Repo) InsertRecord(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	q, err := buildInsertSQL(table, columns, values)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, q, values...).Scan(&id); err != nil {
		return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
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
		return fmt.Errorf("mssql: update %s id=%d: %w", table, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNoRows
	}
	return nil
}

// isDuplicateKey reports SQL Server unique index (2601) and unique
// constraint (2627) violations.
func isDuplicateKey(err error) bool {
	var me mssqldb.Error
	if errors.As(err, &me) {
		return me.Number == 2601 || me.Number == 2627
	}
	return false
}

// dedupeLookupNames keeps the first occurrence of each key.
//
// SQL Server statements do not collapse duplicates inside the VALUES source,
// so the same key twice in one chunk would trip the UNIQUE constraint.
func dedupeLookupNames(names []storage.LookupName) []storage.LookupName {
	seen := make(map[string]struct{}, len(names))
	out := make([]storage.LookupName, 0, len(names))
	for _, n := range names {
		if n.Key == "" {
			continue
		}
		if _, ok := seen[n.Key]; ok {
			continue
		}
		seen[n.Key] = struct{}{}
		out = append(out, n)
	}
	return out
}

// buildEnsureLookupSQL returns the INSERT...SELECT SQL and args for a name chunk.
func buildEnsureLookupSQL(table string, names []storage.LookupName) (string, []any) {
	name := mssqlIdent(storage.NameColumn)
	key := mssqlIdent(storage.KeyColumn)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (" + name + ", " + key + ") SELECT v." + name + ", v." + key + " FROM (VALUES ")

	args := make([]any, 0, len(names)*2)
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("(@p%d, @p%d)", 2*i+1, 2*i+2))
		args = append(args, n.Name, n.Key)
	}

	b.WriteString(") AS v(" + name + ", " + key + ") LEFT JOIN ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t ON t." + key + " = v." + key + " WHERE t." + key + " IS NULL")

	return b.String(), args
}

func buildInsertSQL(table string, columns []string, values []any) (string, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return "", fmt.Errorf("mssql: insert into %s: %d columns for %d values", table, len(columns), len(values))
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = mssqlIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		mssqlTableIdent(table), strings.Join(cols, ", "), mssqlIdent(storage.IDColumn), paramList(1, len(columns)),
	), nil
}

func buildUpdateSQL(table string, id int64, columns []string, values []any) (string, []any, error) {
	if len(columns) != len(values) {
		return "", nil, fmt.Errorf("mssql: update %s: %d columns for %d values", table, len(columns), len(values))
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = @p%d", mssqlIdent(c), i+1)
	}
	args := append(append([]any(nil), values...), id)
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = @p%d",
		mssqlTableIdent(table), strings.Join(sets, ", "), mssqlIdent(storage.IDColumn), len(columns)+1,
	), args, nil
}

func buildCreateTableDefs(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	var defs []string
	if t.PrimaryKey != nil {
		pk, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, pk)
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return "", fmt.Errorf("mssql: %s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		cols := make([]string, 0, len(con.Columns))
		for _, c := range con.Columns {
			cols = append(cols, mssqlIdent(c))
		}
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}
	return strings.Join(defs, ", "), nil
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
//
// This keeps EnsureTables idempotent without requiring IF NOT EXISTS syntax.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		tableName,
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlPrimaryKeyDef returns a column definition for an identity primary key.
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("mssql: primary key name is empty")
	}
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "serial", "bigserial", "int identity", "integer identity", "identity":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), pk.Type), nil
	}
}

// mssqlColumnDef builds a SQL Server column definition from storage.ColumnSpec.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c.Type))
	if c.Nullable != nil && !*c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if strings.TrimSpace(c.References) != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(c.References)
	}
	return b.String(), nil
}

// columnType maps logical types. Indexed text must stay under the 900-byte
// index key limit, hence NVARCHAR(450) for keys.
func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case storage.TypeKey:
		return "NVARCHAR(450)"
	case storage.TypeText:
		return "NVARCHAR(MAX)"
	case storage.TypeBigint:
		return "BIGINT"
	case storage.TypeDouble:
		return "FLOAT"
	case storage.TypeBoolean:
		return "BIT"
	default:
		return logical
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.contacts" -> [dbo].[contacts]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func paramList(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("@p%d", from+i))
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

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
