// Package shardmap provides a concurrent insert-only map partitioned by a
// hash of the key bytes. Writers touching different shards never contend;
// writers on the same shard are serialized by that shard's lock and nothing
// else. The shard count is a construction-time parameter.
//
// Shard routing is a pure function of the key bytes (FNV-1a), so the same
// key lands on the same shard across goroutines, processes, and runs.
package shardmap

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// DefaultShards matches the merge partition count of the original engine.
const DefaultShards = 256

type shard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// Map is a sharded map keyed by byte strings. The zero value is not usable;
// construct with New.
type Map[V any] struct {
	shards []shard[V]
}

// New returns a map split into n shards; n <= 0 selects DefaultShards.
func New[V any](n int) *Map[V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Map[V]{shards: make([]shard[V], n)}
	for i := range m.shards {
		m.shards[i].m = make(map[string]V)
	}
	return m
}

// Shards reports the shard count.
func (m *Map[V]) Shards() int { return len(m.shards) }

// ShardIndex returns the shard the key routes to.
func (m *Map[V]) ShardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	return &m.shards[m.ShardIndex(key)]
}

// LoadOrStore stores v under key if the key is absent. It returns the value
// now in the map and whether it was already present. Exactly one writer wins
// a race on the same key; everyone else observes the winner's value.
func (m *Map[V]) LoadOrStore(key string, v V) (actual V, loaded bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[key]; ok {
		return existing, true
	}
	s.m[key] = v
	return v, false
}

// Load returns the value stored under key, if any.
func (m *Map[V]) Load(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Len walks all shards and returns the total entry count.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Range calls f for every entry until f returns false. Only one shard lock
// is held at a time; entries stored concurrently with the walk may or may
// not be visited.
func (m *Map[V]) Range(f func(key string, v V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.m {
			if !f(k, v) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

// String implements fmt.Stringer for diagnostics.
func (m *Map[V]) String() string {
	return fmt.Sprintf("shardmap(%d shards, %d entries)", m.Shards(), m.Len())
}
