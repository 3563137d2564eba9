// Package cmap provides a generic, sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by its
// own RWMutex, so operations on unrelated keys rarely contend. Besides the
// plain Get/Set/Delete surface the map offers atomic compound operations
// (GetOrSet, Update, SetIfAbsent, DeleteIf) that run under a single shard
// lock. Higher layers build their "insert if absent" and "read then append"
// guarantees on these.
//
// Usage:
//
//	m := cmap.New[string, *Entry]()
//	entry, loaded := m.GetOrSet("tenant|signing_keys", &Entry{})
//
// Iteration (Range, Keys, Values) locks one shard at a time and therefore
// does not observe a single consistent snapshot.
package cmap
