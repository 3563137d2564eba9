package memory

import (
	"sort"
	"sync"

	"github.com/yndnr/authcore-go/pkg/cmap"
)

// HandleSet is a concurrent-safe set of session handles.
type HandleSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewHandleSet creates an empty set.
func NewHandleSet() *HandleSet {
	return &HandleSet{items: make(map[string]struct{})}
}

// Add inserts handle.
func (s *HandleSet) Add(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[handle] = struct{}{}
}

// Remove deletes handle and reports how many handles remain.
func (s *HandleSet) Remove(handle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, handle)
	return len(s.items)
}

// Len returns the number of handles.
func (s *HandleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Sorted returns the handles in lexical order.
func (s *HandleSet) Sorted() []string {
	s.mu.RLock()
	items := make([]string, 0, len(s.items))
	for h := range s.items {
		items = append(items, h)
	}
	s.mu.RUnlock()

	sort.Strings(items)
	return items
}

// UserIndex maps a tenant-scoped user key to the handles of its sessions.
type UserIndex struct {
	index *cmap.Map[string, *HandleSet]
}

// NewUserIndex creates an empty index.
func NewUserIndex() *UserIndex {
	return &UserIndex{index: cmap.New[string, *HandleSet]()}
}

// Add records handle under user.
func (i *UserIndex) Add(user, handle string) {
	set, _ := i.index.GetOrSet(user, NewHandleSet())
	set.Add(handle)
}

// Remove drops handle from user. The user entry goes away with its last handle.
func (i *UserIndex) Remove(user, handle string) {
	set, ok := i.index.Get(user)
	if !ok {
		return
	}
	if set.Remove(handle) == 0 {
		i.index.DeleteIf(user, func(s *HandleSet) bool { return s.Len() == 0 })
	}
}

// Get returns the handles of user, sorted.
func (i *UserIndex) Get(user string) []string {
	set, ok := i.index.Get(user)
	if !ok {
		return nil
	}
	return set.Sorted()
}

// Count returns the number of handles of user.
func (i *UserIndex) Count(user string) int {
	set, ok := i.index.Get(user)
	if !ok {
		return 0
	}
	return set.Len()
}
