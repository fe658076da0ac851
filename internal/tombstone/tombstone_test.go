package tombstone

import (
	"io"
	"testing"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	log, err := Create(dir, "tombstone", 1)
	require.NoError(t, err)
	defer log.Close()

	size, err := log.Append([]byte("a"), 1)
	require.NoError(t, err)
	assert.Positive(t, size)

	_, err = log.Append([]byte("bb"), 2)
	require.NoError(t, err)
	require.NoError(t, log.Force())

	r, err := log.Reader()
	require.NoError(t, err)
	defer r.Close()

	first, err := codec.ReadTombstone(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), first.Key)
	assert.Equal(t, uint64(1), first.Seq)

	second, err := codec.ReadTombstone(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), second.Key)

	_, err = codec.ReadTombstone(r)
	require.ErrorIs(t, err, io.EOF)
}

func TestLogOpenForReadingReportsExistingSize(t *testing.T) {
	dir := t.TempDir()
	log, err := Create(dir, "tombstone", 1)
	require.NoError(t, err)

	_, err = log.Append([]byte("key"), 1)
	require.NoError(t, err)
	require.NoError(t, log.Force())
	require.NoError(t, log.Close())

	reopened, err := OpenForReading(dir, "tombstone", 1)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, log.Size(), reopened.Size())
}

func TestLogCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	log, err := Create(dir, "tombstone", 1)
	require.NoError(t, err)

	require.NoError(t, log.Close())
	require.NoError(t, log.Close())
}
