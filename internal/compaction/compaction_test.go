package compaction

import (
	"context"
	"testing"
	"time"

	"github.com/iamNilotpal/ignite/internal/storage"
	"github.com/iamNilotpal/ignite/pkg/logger"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a real *storage.Store small enough that a
// handful of puts can force segment rollover, so compaction has
// something concrete to drain and rewrite.
func newTestStore(t *testing.T, maxFileSize uint64, mergeThreshold float64) *storage.Store {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.SegmentOptions.Size = maxFileSize
	opts.CompactionOptions.Disabled = true
	opts.CompactionOptions.MergeThresholdPerFile = mergeThreshold

	s, err := storage.New(context.Background(), &storage.Config{Options: &opts, Logger: logger.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCompactionRunMergeBatchRewritesFreshEntries(t *testing.T) {
	store := newTestStore(t, 100, 0.5)

	require.NoError(t, store.Put([]byte("a"), []byte("alpha")))
	require.NoError(t, store.Put([]byte("b"), []byte("brown")))

	firstSegment := store.ActiveSegmentID()

	// Force a rollover so "a" and "b" are sealed in firstSegment, away
	// from the segment subsequent writes land in.
	require.NoError(t, store.Put([]byte("filler"), make([]byte, 60)))
	require.NotEqual(t, firstSegment, store.ActiveSegmentID())

	// Overwriting "b" leaves firstSegment holding one live record ("a")
	// and one stale record ("b"'s old copy) — a 0.5 stale ratio, which
	// promotes firstSegment into the merge candidate set.
	require.NoError(t, store.Put([]byte("b"), []byte("zebra")))
	require.Equal(t, 1, store.CandidateCount())

	opts := options.NewDefaultOptions()
	opts.CompactionOptions.MergeThresholdFileNumber = 1
	c := New(store, &opts, logger.Nop())

	c.runMergeBatch(context.Background())

	v, ok, err := store.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok, "a's only copy must survive the merge")
	require.Equal(t, []byte("alpha"), v)

	v, ok, err = store.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("zebra"), v, "b must still read from its post-rollover location, untouched by the merge")

	_, err = store.OpenSegment(firstSegment)
	require.Error(t, err, "the fully-merged source segment must have been deleted")

	require.Equal(t, 0, store.CandidateCount())
}

func TestCompactionRunMergeBatchNoopOnEmptyCandidateSet(t *testing.T) {
	store := newTestStore(t, 1<<20, 0.5)
	require.NoError(t, store.Put([]byte("k"), []byte("v")))

	opts := options.NewDefaultOptions()
	c := New(store, &opts, logger.Nop())

	c.runMergeBatch(context.Background())

	v, ok, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestCompactionStartAndCloseIsIdempotent(t *testing.T) {
	store := newTestStore(t, 1<<20, 0.5)

	opts := options.NewDefaultOptions()
	opts.CompactionOptions.MergeInterval = time.Hour
	c := New(store, &opts, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestCompactionClosePreemptsContextCancellation(t *testing.T) {
	store := newTestStore(t, 1<<20, 0.5)

	opts := options.NewDefaultOptions()
	opts.CompactionOptions.MergeInterval = time.Hour
	c := New(store, &opts, logger.Nop())

	c.Start(context.Background())

	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return promptly")
	}
}
