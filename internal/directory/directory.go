// Package directory implements the in-memory key directory described in
// spec §4.4: a sharded hash index mapping key bytes to a fixed-size
// on-disk location, with atomic compare-and-swap on the stored value.
//
// The sharding and per-shard-lock structure is modeled on
// gholt-valuestore's valueLocMap, the off-heap value-location index this
// project's Bitcask lineage shares a design ancestor with: keys are
// hashed (here with murmur3, as valueLocMap hashes its 128-bit keys) to
// pick one of a power-of-two number of independently-locked shards, so
// concurrent readers, the single writer, and the compactor's CAS calls
// spread across many locks instead of contending on one.
//
// Two storage backends are available per shard, selected by
// options.DirectoryOptions.UseMemoryPool: a plain Go map (simplest,
// fine up to a few million entries) and a pooled, chunk-allocated arena
// that amortizes allocation over many inserts and is intended for
// datasets with tens of millions of entries, per spec §9's guidance
// against "embedding the directory inside the general-purpose heap
// allocator" at that scale.
package directory

import (
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// Value is the fixed-width metadata the directory stores per key: the
// exact on-disk location of that key's current value, plus the
// sequence number that last wrote it.
//
// spec §4.4 illustrates a 16-byte value (4+4+4+4); this implementation
// widens the sequence number field to a full 64 bits; spec §4.8
// requires sequence numbers to be strictly monotonic 64-bit values; a
// truncated sequence number would make recovery's "higher sequence
// number wins" comparison (spec §4.6) ambiguous as soon as two records
// for the same key collide in their low 32 bits, which a
// high-throughput store reaches quickly.
type Value struct {
	FileID uint32
	Offset uint32
	Size   uint32
	Seq    uint64
}

// shardCountMinimum is the smallest shard count the directory will
// accept regardless of configuration, keeping single-core test
// environments correct rather than merely fast.
const shardCountMinimum = 1

// Directory is the sharded key directory.
type Directory struct {
	shards []*shard
	mask   uint64
	size   atomic.Int64
	closed atomic.Bool
}

// Config configures a new Directory.
type Config struct {
	// ShardCount is the number of independently-locked shards. Rounded
	// up to the next power of two if it is not already one.
	ShardCount int

	// NumberOfRecords is a capacity hint used to pre-size shard backing
	// stores so that ShardCount * perShardCapacity >= NumberOfRecords.
	NumberOfRecords int

	// ChunkSize is how many entries the pooled backend allocates per
	// chunk. Ignored when UseMemoryPool is false.
	ChunkSize int

	// UseMemoryPool selects the pooled, chunk-allocated backend.
	UseMemoryPool bool

	// FixedKeySize, when non-zero, declares every key the pooled
	// backend will see is exactly this many bytes. A pooled entry whose
	// key matches this length reuses its slot's key buffer across the
	// free-list recycle cycle instead of allocating a fresh copy on
	// every insert (see pooledStore.setKey). Ignored by the plain map
	// backend, and ignored for any individual key whose length doesn't
	// match — such keys fall back to a per-insert allocation, so a
	// mismatched key is slower, never incorrect.
	FixedKeySize int
}

// New builds a Directory per cfg.
func New(cfg Config) *Directory {
	shardCount := nextPowerOfTwo(cfg.ShardCount)
	if shardCount < shardCountMinimum {
		shardCount = shardCountMinimum
	}

	perShardCap := 0
	if cfg.NumberOfRecords > 0 {
		perShardCap = (cfg.NumberOfRecords + shardCount - 1) / shardCount
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 4096
	}

	d := &Directory{
		shards: make([]*shard, shardCount),
		mask:   uint64(shardCount - 1),
	}
	for i := range d.shards {
		d.shards[i] = newShard(cfg.UseMemoryPool, perShardCap, chunkSize, cfg.FixedKeySize)
	}
	return d
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shardFor picks the shard a key belongs to.
func (d *Directory) shardFor(key []byte) *shard {
	h := murmur3.Sum64(key)
	return d.shards[h&d.mask]
}

// Get returns the current value for key, if present.
func (d *Directory) Get(key []byte) (Value, bool) {
	return d.shardFor(key).get(key)
}

// ContainsKey reports whether key currently has a live value.
func (d *Directory) ContainsKey(key []byte) bool {
	_, ok := d.Get(key)
	return ok
}

// Put unconditionally installs value for key, returning the previous
// value if one existed. Used by the write path (spec §4.5's put()),
// which always wins over whatever was there before.
func (d *Directory) Put(key []byte, value Value) (Value, bool) {
	prev, hadPrev := d.shardFor(key).put(key, value)
	if !hadPrev {
		d.size.Add(1)
	}
	return prev, hadPrev
}

// Remove deletes key's entry unconditionally, returning the removed
// value if one existed.
func (d *Directory) Remove(key []byte) (Value, bool) {
	v, ok := d.shardFor(key).remove(key)
	if ok {
		d.size.Add(-1)
	}
	return v, ok
}

// AddOrReplace performs an atomic compare-and-swap on key's value. When
// expected is nil, the swap only succeeds if key currently has no
// entry (an insert-only CAS). When expected is non-nil, the swap only
// succeeds if the current value is byte-equal to *expected. This is
// the primitive the compactor uses to hand a key off to its new
// location without clobbering a write that raced ahead of it (spec
// §4.7).
func (d *Directory) AddOrReplace(key []byte, expected *Value, newValue Value) bool {
	ok, inserted := d.shardFor(key).addOrReplace(key, expected, newValue)
	if ok && inserted {
		d.size.Add(1)
	}
	return ok
}

// Size returns the number of distinct keys with a live value.
func (d *Directory) Size() int {
	return int(d.size.Load())
}

// Close releases the directory's backing storage. The directory must
// not be used after Close returns.
func (d *Directory) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, s := range d.shards {
		s.close()
	}
	return nil
}

// shard is one independently-locked partition of the directory.
type shard struct {
	mu     sync.RWMutex
	plain  map[string]Value
	pooled *pooledStore
}

func newShard(pooled bool, capacity, chunkSize, fixedKeySize int) *shard {
	if pooled {
		return &shard{pooled: newPooledStore(capacity, chunkSize, fixedKeySize)}
	}
	if capacity <= 0 {
		capacity = 16
	}
	return &shard{plain: make(map[string]Value, capacity)}
}

func (s *shard) get(key []byte) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pooled != nil {
		return s.pooled.get(key)
	}
	v, ok := s.plain[string(key)]
	return v, ok
}

func (s *shard) put(key []byte, value Value) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pooled != nil {
		return s.pooled.put(key, value)
	}
	k := string(key)
	prev, had := s.plain[k]
	s.plain[k] = value
	return prev, had
}

func (s *shard) remove(key []byte) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pooled != nil {
		return s.pooled.remove(key)
	}
	k := string(key)
	prev, had := s.plain[k]
	if had {
		delete(s.plain, k)
	}
	return prev, had
}

// addOrReplace returns (swapped, inserted). inserted is true only when
// the swap succeeded and the key had no prior entry.
func (s *shard) addOrReplace(key []byte, expected *Value, newValue Value) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pooled != nil {
		return s.pooled.addOrReplace(key, expected, newValue)
	}

	k := string(key)
	current, had := s.plain[k]
	if expected == nil {
		if had {
			return false, false
		}
		s.plain[k] = newValue
		return true, true
	}
	if !had || current != *expected {
		return false, false
	}
	s.plain[k] = newValue
	return true, false
}

func (s *shard) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain = nil
	s.pooled = nil
}
