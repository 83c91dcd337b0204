package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bulksync/internal/model"
	"bulksync/internal/schema"
	"bulksync/internal/storage"
)

// contactIndex holds the existing contacts for the names in one batch, plus
// contacts inserted while the batch runs. Safe for concurrent use.
type contactIndex struct {
	mu    sync.Mutex
	byKey map[string][]storage.ContactRef
}

// loadContacts fetches every contact whose name key appears in recs.
func loadContacts(ctx context.Context, repo storage.Repository, recs []schema.Record) (*contactIndex, error) {
	seen := make(map[string]bool, len(recs))
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		k := model.NameKey(r.Value(schema.HeaderName))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	sort.Strings(keys)

	x := &contactIndex{byKey: make(map[string][]storage.ContactRef, len(keys))}
	if len(keys) == 0 {
		return x, nil
	}
	refs, err := repo.SelectContacts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("select contacts: %w", err)
	}
	for _, ref := range refs {
		x.byKey[ref.NameKey] = append(x.byKey[ref.NameKey], ref)
	}
	return x, nil
}

// find returns the contact with key inside organization orgID.
func (x *contactIndex) find(key string, orgID int64) (storage.ContactRef, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, ref := range x.byKey[key] {
		if ref.OrganizationID == orgID {
			return ref, true
		}
	}
	return storage.ContactRef{}, false
}

// named returns every contact with key, across organizations.
func (x *contactIndex) named(key string) []storage.ContactRef {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]storage.ContactRef(nil), x.byKey[key]...)
}

func (x *contactIndex) add(ref storage.ContactRef) {
	x.mu.Lock()
	x.byKey[ref.NameKey] = append(x.byKey[ref.NameKey], ref)
	x.mu.Unlock()
}
