package storage

import (
	"context"
	"testing"

	"github.com/iamNilotpal/ignite/pkg/logger"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testOptions builds options.Options directly rather than through the
// functional-options constructors, so tests can set a segment size
// well below options.MinSegmentSize to exercise rollover cheaply.
func testOptions(t *testing.T, maxFileSize uint64) *options.Options {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.SegmentOptions.Size = maxFileSize
	opts.CompactionOptions.Disabled = true
	return &opts
}

func openTestStore(t *testing.T, opts *options.Options) *Store {
	t.Helper()
	s, err := New(context.Background(), &Config{Options: opts, Logger: logger.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorePutGetDelete(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))

	require.NoError(t, s.Put([]byte("key"), []byte("value")))

	v, ok, err := s.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)

	require.NoError(t, s.Delete([]byte("key")))

	_, ok, err = s.Get([]byte("key"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreGetMissingKey(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))

	v, ok, err := s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestStorePutOverwriteChargesStaleBytes(t *testing.T) {
	// Two equal-size records leave a 0.5 stale ratio; a threshold of 1
	// keeps the file out of the candidate set so its counter is not
	// cleared by promotion.
	opts := testOptions(t, 1<<20)
	opts.CompactionOptions.MergeThresholdPerFile = 1
	s := openTestStore(t, opts)

	require.NoError(t, s.Put([]byte("key"), []byte("v1")))
	prev, had := s.directory.Get([]byte("key"))
	require.True(t, had)

	require.NoError(t, s.Put([]byte("key"), []byte("v2")))

	acc := s.staleAcc(int(prev.FileID))
	assert.EqualValues(t, prev.Size, acc.Load())
}

func TestStoreDeleteOnMissingKeyIsNoop(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))
	require.NoError(t, s.Delete([]byte("never-existed")))
}

func TestStoreSegmentRolloverOnOverflow(t *testing.T) {
	// A tiny max file size forces a rollover on nearly every put.
	s := openTestStore(t, testOptions(t, 64))

	firstID := s.ActiveSegmentID()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put([]byte("key"), []byte("a-reasonably-long-value")))
	}

	assert.NotEqual(t, firstID, s.ActiveSegmentID(), "writing past max_file_size must roll to a new segment")
}

func TestStoreNeverSealsEmptySegment(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1))
	firstID := s.ActiveSegmentID()

	// The very first write always lands in the still-empty active
	// segment, regardless of how small max_file_size is.
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	assert.Equal(t, firstID, s.ActiveSegmentID())
}

func TestStoreRecoversAfterReopen(t *testing.T) {
	opts := testOptions(t, 1<<20)

	s1 := openTestStore(t, opts)
	require.NoError(t, s1.Put([]byte("key"), []byte("value")))
	require.NoError(t, s1.Close())

	s2, err := New(context.Background(), &Config{Options: opts, Logger: logger.Nop()})
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestStoreSizeTracksLiveKeys(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))
	assert.Equal(t, 0, s.Size())

	require.NoError(t, s.Put([]byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("b"), []byte("2")))
	assert.Equal(t, 2, s.Size())

	require.NoError(t, s.Delete([]byte("a")))
	assert.Equal(t, 1, s.Size())
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestStoreOperationsFailAfterClose(t *testing.T) {
	opts := testOptions(t, 1<<20)
	s, err := New(context.Background(), &Config{Options: opts, Logger: logger.Nop()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)

	_, _, err = s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)

	err = s.Delete([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStoreRejectsOversizedKey(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))
	bigKey := make([]byte, 200)
	err := s.Put(bigKey, []byte("v"))
	require.Error(t, err)
}

func TestStoreForwardsFixedKeySizeToDirectory(t *testing.T) {
	opts := testOptions(t, 1<<20)
	opts.DirectoryOptions.UseMemoryPool = true
	opts.DirectoryOptions.FixedKeySize = 3
	s := openTestStore(t, opts)

	require.NoError(t, s.Put([]byte("abc"), []byte("value")))
	v, ok, err := s.Get([]byte("abc"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("value"), v)
}

func TestStoreCompactionHooksExcludeActiveSegment(t *testing.T) {
	s := openTestStore(t, testOptions(t, 1<<20))
	activeID := s.ActiveSegmentID()

	s.candidates.Store(activeID, struct{}{})
	s.candidates.Store(999, struct{}{})

	assert.Equal(t, 0, s.CandidateCount(), "the active segment must never be counted as a compaction candidate")

	ids := s.DrainCandidates(10)
	assert.NotContains(t, ids, activeID)
}
