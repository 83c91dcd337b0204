// Package resolve maps display names in uploaded rows to ids of existing
// lookup rows, creating departments on demand.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"bulksync/internal/model"
	"bulksync/internal/storage"
)

// Kind is a lookup category.
type Kind string

const (
	Sport        Kind = storage.Sports
	Country      Kind = storage.Countries
	City         Kind = storage.Cities
	Department   Kind = storage.Departments
	Organization Kind = storage.Organizations
)

// Label is the header-style name used in row messages.
func (k Kind) Label() string {
	switch k {
	case Sport:
		return "Sport"
	case Country:
		return "Country"
	case City:
		return "City"
	case Department:
		return "Department"
	case Organization:
		return "team"
	default:
		return string(k)
	}
}

// ErrUnresolved is matched by every UnresolvedError.
var ErrUnresolved = errors.New("unresolved reference")

// UnresolvedError reports a name with no matching row.
type UnresolvedError struct {
	Kind Kind
	Name string
}

func (e *UnresolvedError) Error() string {
	if e.Kind == Organization {
		return fmt.Sprintf("no matching team %q", e.Name)
	}
	return fmt.Sprintf("unknown %s %q", e.Kind.Label(), e.Name)
}

func (e *UnresolvedError) Is(target error) bool { return target == ErrUnresolved }

// Resolver caches name_key -> id per kind for the lifetime of one run.
//
// Only hits are cached. A name that is missing now may be created later in
// the same run (an organization inserted by an earlier batch), so misses are
// always re-queried.
//
// Safe for concurrent use.
type Resolver struct {
	repo storage.Repository

	mu    sync.RWMutex
	cache map[Kind]map[string]int64

	flights singleflight.Group
}

// New returns a Resolver with an empty cache.
func New(repo storage.Repository) *Resolver {
	return &Resolver{repo: repo, cache: make(map[Kind]map[string]int64)}
}

func (r *Resolver) cached(kind Kind, key string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[kind][key]
	return id, ok
}

func (r *Resolver) store(kind Kind, kv map[string]int64) {
	if len(kv) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.cache[kind]
	if m == nil {
		m = make(map[string]int64, len(kv))
		r.cache[kind] = m
	}
	for k, v := range kv {
		m[k] = v
	}
}

// Remember records a row created during the run.
func (r *Resolver) Remember(kind Kind, name string, id int64) {
	if key := model.NameKey(name); key != "" {
		r.store(kind, map[string]int64{key: id})
	}
}

// Prefetch loads ids for every uncached name in one query per kind.
func (r *Resolver) Prefetch(ctx context.Context, kind Kind, names []string) error {
	keys := r.missing(kind, names)
	if len(keys) == 0 {
		return nil
	}
	kv, err := r.repo.SelectIDsByKeys(ctx, string(kind), keys)
	if err != nil {
		return fmt.Errorf("prefetch %s: %w", kind, err)
	}
	r.store(kind, kv)
	return nil
}

// missing returns sorted distinct keys of names that are not cached.
func (r *Resolver) missing(kind Kind, names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var keys []string
	for _, n := range names {
		k := model.NameKey(n)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := r.cached(kind, k); ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve looks name up without creating it. ok is false when no row
// matches or name is blank.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, name string) (id int64, ok bool, err error) {
	key := model.NameKey(name)
	if key == "" {
		return 0, false, nil
	}
	if id, ok := r.cached(kind, key); ok {
		return id, true, nil
	}
	kv, err := r.repo.SelectIDsByKeys(ctx, string(kind), []string{key})
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s %q: %w", kind.Label(), name, err)
	}
	r.store(kind, kv)
	id, ok = kv[key]
	return id, ok, nil
}

// MustResolve is Resolve with a miss turned into an *UnresolvedError.
func (r *Resolver) MustResolve(ctx context.Context, kind Kind, name string) (int64, error) {
	id, ok, err := r.Resolve(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &UnresolvedError{Kind: kind, Name: strings.TrimSpace(name)}
	}
	return id, nil
}

// EnsureDepartments creates every missing department in names and caches
// all their ids. Names that fold to the same key collapse to the first
// spelling seen. Concurrent calls for the same set of keys share one round
// trip; the insert itself is insert-or-ignore, so racing runs are safe.
func (r *Resolver) EnsureDepartments(ctx context.Context, names []string) error {
	keys := r.missing(Department, names)
	if len(keys) == 0 {
		return nil
	}

	display := make(map[string]string, len(keys))
	for _, n := range names {
		k := model.NameKey(n)
		if _, ok := display[k]; !ok && k != "" {
			display[k] = strings.Join(strings.Fields(n), " ")
		}
	}

	_, err, _ := r.flights.Do(strings.Join(keys, "\x00"), func() (any, error) {
		toCreate := make([]storage.LookupName, 0, len(keys))
		for _, k := range keys {
			toCreate = append(toCreate, storage.LookupName{Name: display[k], Key: k})
		}
		if err := r.repo.EnsureLookupKeys(ctx, storage.Departments, toCreate); err != nil {
			return nil, fmt.Errorf("create departments: %w", err)
		}
		kv, err := r.repo.SelectIDsByKeys(ctx, storage.Departments, keys)
		if err != nil {
			return nil, fmt.Errorf("select departments: %w", err)
		}
		r.store(Department, kv)
		return nil, nil
	})
	return err
}

// ResolveDepartment is create-or-get for one department name.
func (r *Resolver) ResolveDepartment(ctx context.Context, name string) (int64, error) {
	if err := r.EnsureDepartments(ctx, []string{name}); err != nil {
		return 0, err
	}
	return r.MustResolve(ctx, Department, name)
}
