package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to create a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// ContactRef identifies an existing contact by its natural key parts.
type ContactRef struct {
	ID             int64
	NameKey        string
	OrganizationID int64
}

// Repository is the backend-agnostic surface the sync pipelines write through.
//
// Every natural-key lookup goes through the name_key column, which holds
// model.NameKey of the display name. Each backend implements create-or-get in
// its own idiom (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server NOT EXISTS).
type Repository interface {
	// Close releases any backend resources. Call once.
	Close()

	// EnsureTables creates tables and constraints as needed. Idempotent.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// EnsureLookupKeys inserts (name, name_key) rows that do not exist yet.
	// Rows whose name_key already exists are left alone, so concurrent callers
	// racing on the same names both succeed.
	EnsureLookupKeys(ctx context.Context, table string, names []LookupName) error

	// SelectIDsByKeys returns name_key -> id for the keys that exist in table.
	SelectIDsByKeys(ctx context.Context, table string, keys []string) (map[string]int64, error)

	// SelectContacts returns every contact whose name_key is in keys.
	SelectContacts(ctx context.Context, keys []string) ([]ContactRef, error)

	// InsertRecord inserts one row and returns its generated id.
	InsertRecord(ctx context.Context, table string, columns []string, values []any) (int64, error)

	// UpdateRecord sets columns on the row with the given id. A nil value
	// writes NULL. Returns ErrNoRows when the id no longer exists.
	UpdateRecord(ctx context.Context, table string, id int64, columns []string, values []any) error
}

// LookupName is one display name plus its folded key.
type LookupName struct {
	Name string
	Key  string
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f func(ctx context.Context, cfg Config) (Repository, error)) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
