package directory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(t *testing.T, pooled bool) *Directory {
	t.Helper()
	d := New(Config{ShardCount: 4, NumberOfRecords: 64, ChunkSize: 8, UseMemoryPool: pooled})
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDirectoryPutGetRemove(t *testing.T) {
	for _, pooled := range []bool{false, true} {
		t.Run(fmt.Sprintf("pooled=%v", pooled), func(t *testing.T) {
			d := newTestDirectory(t, pooled)

			_, ok := d.Get([]byte("missing"))
			assert.False(t, ok)

			d.Put([]byte("key"), Value{FileID: 1, Offset: 10, Size: 20, Seq: 1})
			assert.Equal(t, 1, d.Size())

			v, ok := d.Get([]byte("key"))
			require.True(t, ok)
			assert.Equal(t, uint32(1), v.FileID)
			assert.Equal(t, uint64(1), v.Seq)

			prev, had := d.Put([]byte("key"), Value{FileID: 2, Offset: 30, Size: 40, Seq: 2})
			require.True(t, had)
			assert.Equal(t, uint32(1), prev.FileID)
			assert.Equal(t, 1, d.Size())

			removed, had := d.Remove([]byte("key"))
			require.True(t, had)
			assert.Equal(t, uint32(2), removed.FileID)
			assert.Equal(t, 0, d.Size())

			_, had = d.Remove([]byte("key"))
			assert.False(t, had)
		})
	}
}

func TestDirectoryAddOrReplaceInsertOnly(t *testing.T) {
	for _, pooled := range []bool{false, true} {
		t.Run(fmt.Sprintf("pooled=%v", pooled), func(t *testing.T) {
			d := newTestDirectory(t, pooled)

			ok := d.AddOrReplace([]byte("key"), nil, Value{FileID: 1, Seq: 1})
			assert.True(t, ok)
			assert.Equal(t, 1, d.Size())

			ok = d.AddOrReplace([]byte("key"), nil, Value{FileID: 2, Seq: 2})
			assert.False(t, ok, "insert-only CAS must fail once a value exists")

			v, _ := d.Get([]byte("key"))
			assert.Equal(t, uint32(1), v.FileID)
		})
	}
}

func TestDirectoryAddOrReplaceCompareAndSwap(t *testing.T) {
	for _, pooled := range []bool{false, true} {
		t.Run(fmt.Sprintf("pooled=%v", pooled), func(t *testing.T) {
			d := newTestDirectory(t, pooled)

			current := Value{FileID: 1, Offset: 0, Size: 10, Seq: 1}
			d.Put([]byte("key"), current)

			stale := Value{FileID: 9, Offset: 0, Size: 10, Seq: 1}
			ok := d.AddOrReplace([]byte("key"), &stale, Value{FileID: 2, Seq: 2})
			assert.False(t, ok, "CAS against a stale expected value must fail")

			ok = d.AddOrReplace([]byte("key"), &current, Value{FileID: 2, Offset: 0, Size: 10, Seq: 2})
			assert.True(t, ok)

			v, _ := d.Get([]byte("key"))
			assert.Equal(t, uint32(2), v.FileID)
			assert.Equal(t, 1, d.Size(), "a successful replace must not change the live key count")
		})
	}
}

func TestDirectoryConcurrentPuts(t *testing.T) {
	d := New(Config{ShardCount: 8, NumberOfRecords: 1000})
	defer d.Close()

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte(fmt.Sprintf("key-%d", i))
			d.Put(key, Value{FileID: 1, Offset: uint32(i), Size: 1, Seq: uint64(i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, d.Size())
}

func TestDirectoryFixedKeySizeMismatchStillWorks(t *testing.T) {
	d := New(Config{ShardCount: 2, UseMemoryPool: true, FixedKeySize: 3})
	defer d.Close()

	// A key whose length doesn't match FixedKeySize must still be
	// stored correctly — it just doesn't get the buffer-reuse benefit.
	d.Put([]byte("ab"), Value{FileID: 1, Seq: 1})
	v, ok := d.Get([]byte("ab"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), v.FileID)
}

func TestPooledStoreFixedKeySizeReducesKeyAllocations(t *testing.T) {
	key := []byte("abc")

	fixed := newPooledStore(0, 4, len(key))
	fixed.put(key, Value{FileID: 1, Seq: 1})
	fixed.remove(key)
	fixedAllocs := testing.AllocsPerRun(50, func() {
		fixed.put(key, Value{FileID: 2, Seq: 2})
		fixed.remove(key)
	})

	variable := newPooledStore(0, 4, 0)
	variable.put(key, Value{FileID: 1, Seq: 1})
	variable.remove(key)
	variableAllocs := testing.AllocsPerRun(50, func() {
		variable.put(key, Value{FileID: 2, Seq: 2})
		variable.remove(key)
	})

	assert.Less(t, fixedAllocs, variableAllocs,
		"reusing a freed slot's key buffer under a matching FixedKeySize must allocate less than the variable-length path")
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 16: 16, 17: 32}
	for in, want := range cases {
		assert.Equal(t, want, nextPowerOfTwo(in), "nextPowerOfTwo(%d)", in)
	}
}
