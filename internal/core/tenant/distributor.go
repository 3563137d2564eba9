package tenant

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/pkg/cmap"
)

type resourceKey struct {
	tenant domain.TenantIdentity
	key    string
}

type entry struct {
	mu    sync.Mutex
	ready atomic.Bool
	val   any
}

// Distributor is a registry of lazily built, tenant-scoped resources.
//
// Entries live until RemoveTenant or Close. Resources implementing io.Closer
// are closed when their entry is dropped.
type Distributor struct {
	entries *cmap.Map[resourceKey, *entry]
}

// NewDistributor creates an empty registry.
func NewDistributor() *Distributor {
	return &Distributor{entries: cmap.New[resourceKey, *entry]()}
}

func keyFor(t domain.TenantIdentity, key string) resourceKey {
	return resourceKey{
		tenant: domain.NewTenantIdentity(t.ConnectionURIDomain, t.AppID, t.TenantID),
		key:    key,
	}
}

// GetOrCreate returns the resource stored under (t, key), calling create to
// build it on first access. Concurrent first accesses call create once and
// all observe the same value. A failed create is not cached.
func (d *Distributor) GetOrCreate(t domain.TenantIdentity, key string, create func() (any, error)) (any, error) {
	k := keyFor(t, key)

	e, ok := d.entries.Get(k)
	if !ok {
		e, _ = d.entries.GetOrSet(k, &entry{})
	}
	if e.ready.Load() {
		return e.val, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ready.Load() {
		return e.val, nil
	}

	val, err := create()
	if err != nil {
		return nil, err
	}
	e.val = val
	e.ready.Store(true)
	return val, nil
}

// Get returns the resource under (t, key) if it has been built.
func (d *Distributor) Get(t domain.TenantIdentity, key string) (any, bool) {
	e, ok := d.entries.Get(keyFor(t, key))
	if !ok || !e.ready.Load() {
		return nil, false
	}
	return e.val, true
}

// Keys returns the resource keys built for t.
func (d *Distributor) Keys(t domain.TenantIdentity) []string {
	want := keyFor(t, "").tenant
	var keys []string
	d.entries.Range(func(k resourceKey, e *entry) bool {
		if k.tenant == want && e.ready.Load() {
			keys = append(keys, k.key)
		}
		return true
	})
	return keys
}

// Len returns the number of live resources across all tenants.
func (d *Distributor) Len() int {
	return d.entries.Count()
}

// RemoveTenant drops every resource of t and reports how many were removed.
func (d *Distributor) RemoveTenant(t domain.TenantIdentity) (int, error) {
	want := keyFor(t, "").tenant
	var dropped []*entry
	d.entries.DeleteFunc(func(k resourceKey, e *entry) bool {
		if k.tenant != want {
			return false
		}
		dropped = append(dropped, e)
		return true
	})
	return len(dropped), closeEntries(dropped)
}

// Close drops every resource of every tenant.
func (d *Distributor) Close() error {
	var dropped []*entry
	d.entries.DeleteFunc(func(_ resourceKey, e *entry) bool {
		dropped = append(dropped, e)
		return true
	})
	return closeEntries(dropped)
}

func closeEntries(entries []*entry) error {
	var errs []error
	for _, e := range entries {
		if !e.ready.Load() {
			continue
		}
		if c, ok := e.val.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Resource is a typed wrapper over Distributor.GetOrCreate.
func Resource[T any](d *Distributor, t domain.TenantIdentity, key string, create func() (T, error)) (T, error) {
	val, err := d.GetOrCreate(t, key, func() (any, error) {
		return create()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		return zero, domain.ErrInternal.WithDetails(fmt.Sprintf("resource %q of %s holds %T", key, t, val))
	}
	return typed, nil
}
