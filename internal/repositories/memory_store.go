package repositories

import (
	"hash/fnv"
	"sync"
)

// DefaultShardCount is the number of lock shards used when none is given
const DefaultShardCount = 32

// ShardedStore owns a map of per-key records split across independently
// locked shards. Every mutation of a record happens under its shard lock,
// so read-modify-write sequences on the same key never interleave.
type ShardedStore[V any] struct {
	shards []*shard[V]
	create func(key string) *V
}

type shard[V any] struct {
	mu      sync.Mutex
	records map[string]*V
}

// NewShardedStore creates a store; create builds a fresh record for a key
// the first time it is updated.
func NewShardedStore[V any](shardCount int, create func(key string) *V) *ShardedStore[V] {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	s := &ShardedStore[V]{
		shards: make([]*shard[V], shardCount),
		create: create,
	}
	for i := range s.shards {
		s.shards[i] = &shard[V]{records: make(map[string]*V)}
	}
	return s
}

func (s *ShardedStore[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Update runs fn on the record for key, creating it lazily. fn must not
// retain the pointer after returning.
func (s *ShardedStore[V]) Update(key string, fn func(record *V)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		rec = s.create(key)
		sh.records[key] = rec
	}
	fn(rec)
}

// View runs fn on the record for key if it exists and reports whether it did.
// The record is locked for the duration of fn.
func (s *ShardedStore[V]) View(key string, fn func(record *V)) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Sweep deletes every record for which stale returns true and returns the
// number removed. Shards are locked one at a time.
func (s *ShardedStore[V]) Sweep(stale func(key string, record *V) bool) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, rec := range sh.records {
			if stale(key, rec) {
				delete(sh.records, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of records across all shards
func (s *ShardedStore[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}
