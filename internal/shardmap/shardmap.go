// Package shardmap provides the sharded concurrent map used by the session
// registry (4.B), WS token registry (4.C), and WS hub (4.D). Each shard
// guards its bucket with its own sync.RWMutex so no single lock serializes
// the whole map, and no operation here suspends while holding a shard lock
// (spec.md §5).
package shardmap

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

type shard[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// Map is a sharded map keyed by anything that can render a stable byte
// key via KeyFunc. Get/Set/Delete/Range are synchronous and lock-free at
// the whole-map level.
type Map[K comparable, V any] struct {
	shards  [shardCount]*shard[K, V]
	keyFunc func(K) []byte
}

// New builds a Map. keyFunc must return a stable byte representation of K
// (e.g. a UUID's 16 bytes) used to pick a shard.
func New[K comparable, V any](keyFunc func(K) []byte) *Map[K, V] {
	m := &Map[K, V]{keyFunc: keyFunc}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{data: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) pick(key K) *shard[K, V] {
	h := fnv.New32a()
	h.Write(m.keyFunc(key))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.pick(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (m *Map[K, V]) Set(key K, value V) {
	s := m.pick(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.pick(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return false
	}
	delete(s.data, key)
	return true
}

// Take is an atomic get-then-delete, used by the WS token registry's
// destructive Use (spec.md §3 invariant 5: obtain-then-use is a take).
func (m *Map[K, V]) Take(key K) (V, bool) {
	s := m.pick(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if ok {
		delete(s.data, key)
	}
	return v, ok
}

// Update atomically applies fn to the current value (zero value if absent)
// and stores the result, returning it.
func (m *Map[K, V]) Update(key K, fn func(V, bool) V) V {
	s := m.pick(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key]
	next := fn(cur, ok)
	s.data[key] = next
	return next
}

// Range calls fn for every entry, shard by shard: each shard is copied
// under its read lock and fn runs on the copy after the lock is released, so
// the shards are snapshotted one after another rather than all at once.
// fn must not call back into the Map.
func (m *Map[K, V]) Range(fn func(K, V)) {
	for _, s := range m.shards {
		s.mu.RLock()
		snapshot := make(map[K]V, len(s.data))
		for k, v := range s.data {
			snapshot[k] = v
		}
		s.mu.RUnlock()
		for k, v := range snapshot {
			fn(k, v)
		}
	}
}

// DeleteIf removes every entry for which pred returns true, calling onDelete
// for each (used for best-effort expiry sweeps).
func (m *Map[K, V]) DeleteIf(pred func(K, V) bool, onDelete func(K, V)) {
	for _, s := range m.shards {
		s.mu.Lock()
		var toDelete []K
		for k, v := range s.data {
			if pred(k, v) {
				toDelete = append(toDelete, k)
			}
		}
		for _, k := range toDelete {
			v := s.data[k]
			delete(s.data, k)
			if onDelete != nil {
				onDelete(k, v)
			}
		}
		s.mu.Unlock()
	}
}
