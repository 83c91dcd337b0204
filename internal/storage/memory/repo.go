// Package memory is an in-process storage backend. It backs dry runs
// (kind "memory") and the pipeline tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bulksync/internal/storage"
)

// Repo keeps every table as id -> column -> value.
//
// Uniqueness mirrors the SQL schema: name_key is unique per table, except on
// contacts where (name_key, organization_id) is unique.
type Repo struct {
	mu     sync.Mutex
	nextID map[string]int64
	rows   map[string]map[int64]map[string]any

	// BeforeWrite, when set, runs before every insert and update with the
	// target table and the column values. A non-nil error rejects the write.
	BeforeWrite func(table string, values map[string]any) error
}

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

// New returns an empty repository.
func New() *Repo {
	return &Repo{
		nextID: make(map[string]int64),
		rows:   make(map[string]map[int64]map[string]any),
	}
}

func (r *Repo) Close() {}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tables {
		if r.rows[t.Name] == nil {
			r.rows[t.Name] = make(map[int64]map[string]any)
		}
	}
	return nil
}

func (r *Repo) table(name string) map[int64]map[string]any {
	t := r.rows[name]
	if t == nil {
		t = make(map[int64]map[string]any)
		r.rows[name] = t
	}
	return t
}

func (r *Repo) findKey(table, key string) (int64, bool) {
	for id, row := range r.table(table) {
		if row[storage.KeyColumn] == key {
			return id, true
		}
	}
	return 0, false
}

func (r *Repo) EnsureLookupKeys(ctx context.Context, table string, names []storage.LookupName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if n.Key == "" {
			continue
		}
		if _, ok := r.findKey(table, n.Key); ok {
			continue
		}
		r.insertLocked(table, map[string]any{storage.NameColumn: n.Name, storage.KeyColumn: n.Key})
	}
	return nil
}

func (r *Repo) SelectIDsByKeys(ctx context.Context, table string, keys []string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if id, ok := r.findKey(table, k); ok {
			out[k] = id
		}
	}
	return out, nil
}

func (r *Repo) SelectContacts(ctx context.Context, keys []string) ([]storage.ContactRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []storage.ContactRef
	for id, row := range r.table(storage.Contacts) {
		k, _ := row[storage.KeyColumn].(string)
		if !want[k] {
			continue
		}
		org, _ := row[storage.OrganizationColumn].(int64)
		out = append(out, storage.ContactRef{ID: id, NameKey: k, OrganizationID: org})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repo) InsertRecord(ctx context.Context, table string, columns []string, values []any) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return 0, fmt.Errorf("insert into %s: %d columns for %d values", table, len(columns), len(values))
	}
	row := make(map[string]any, len(columns))
	for i, c := range columns {
		row[c] = values[i]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BeforeWrite != nil {
		if err := r.BeforeWrite(table, row); err != nil {
			return 0, err
		}
	}
	if err := r.checkUniqueLocked(table, 0, row); err != nil {
		return 0, err
	}
	return r.insertLocked(table, row), nil
}

func (r *Repo) UpdateRecord(ctx context.Context, table string, id int64, columns []string, values []any) error {
	if len(columns) != len(values) {
		return fmt.Errorf("update %s: %d columns for %d values", table, len(columns), len(values))
	}
	if len(columns) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.table(table)[id]
	if !ok {
		return storage.ErrNoRows
	}
	next := make(map[string]any, len(cur)+len(columns))
	for k, v := range cur {
		next[k] = v
	}
	for i, c := range columns {
		next[c] = values[i]
	}
	if r.BeforeWrite != nil {
		if err := r.BeforeWrite(table, next); err != nil {
			return err
		}
	}
	if err := r.checkUniqueLocked(table, id, next); err != nil {
		return err
	}
	r.table(table)[id] = next
	return nil
}

func (r *Repo) checkUniqueLocked(table string, self int64, row map[string]any) error {
	key := row[storage.KeyColumn]
	for id, other := range r.table(table) {
		if id == self || other[storage.KeyColumn] != key {
			continue
		}
		if table == storage.Contacts && other[storage.OrganizationColumn] != row[storage.OrganizationColumn] {
			continue
		}
		return fmt.Errorf("memory: duplicate key %v in %s", key, table)
	}
	return nil
}

func (r *Repo) insertLocked(table string, row map[string]any) int64 {
	r.nextID[table]++
	id := r.nextID[table]
	row[storage.IDColumn] = id
	r.table(table)[id] = row
	return id
}

// Get returns a copy of one row, or nil.
func (r *Repo) Get(table string, id int64) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.table(table)[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// FindByKey returns a copy of the first row with the given name_key, or nil.
func (r *Repo) FindByKey(table, key string) map[string]any {
	r.mu.Lock()
	id, ok := r.findKey(table, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Get(table, id)
}

// Count returns the number of rows in table.
func (r *Repo) Count(table string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table(table))
}

// Seed inserts a row directly, bypassing BeforeWrite, and returns its id.
func (r *Repo) Seed(table string, row map[string]any) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return r.insertLocked(table, cp)
}

var _ storage.Repository = (*Repo)(nil)
