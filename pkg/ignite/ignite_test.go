package ignite

import (
	"context"
	"testing"
	"time"

	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewInstance(context.Background(), "ignite-test",
		options.WithDataDir(t.TempDir()),
		options.WithMergeDisabled(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}

func TestInstanceSetGetDelete(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.Set(ctx, "key", []byte("value")))

	v, err := inst.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), v)

	require.NoError(t, inst.Delete(ctx, "key"))

	_, err = inst.Get(ctx, "key")
	require.Error(t, err)
}

func TestInstanceGetMissingKeyReturnsIndexError(t *testing.T) {
	inst := newTestInstance(t)

	_, err := inst.Get(context.Background(), "never-set")
	require.Error(t, err)

	var indexErr *errors.IndexError
	require.ErrorAs(t, err, &indexErr)
}

func TestInstanceStatsReflectsLiveKeys(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.Set(ctx, "a", []byte("1")))
	require.NoError(t, inst.Set(ctx, "b", []byte("2")))

	stats := inst.Stats()
	assert.Equal(t, 2, stats.Keys)
}

type recordingCollector struct {
	ops []string
}

func (c *recordingCollector) Observe(op string, _ time.Duration) {
	c.ops = append(c.ops, op)
}

func TestInstanceSetCollectorReceivesSamples(t *testing.T) {
	inst := newTestInstance(t)
	ctx := context.Background()

	collector := &recordingCollector{}
	inst.SetCollector(collector)

	require.NoError(t, inst.Set(ctx, "key", []byte("value")))
	_, _ = inst.Get(ctx, "key")
	require.NoError(t, inst.Delete(ctx, "key"))

	assert.Equal(t, []string{"set", "get", "delete"}, collector.ops)
}

func TestInstanceSetCollectorNilRestoresNoop(t *testing.T) {
	inst := newTestInstance(t)
	inst.SetCollector(nil)

	// Must not panic with a nil collector installed.
	require.NoError(t, inst.Set(context.Background(), "key", []byte("value")))
}

func TestInstanceSecondCloseReturnsError(t *testing.T) {
	inst, err := NewInstance(context.Background(), "ignite-test",
		options.WithDataDir(t.TempDir()),
		options.WithMergeDisabled(true),
	)
	require.NoError(t, err)

	require.NoError(t, inst.Close(context.Background()))
	require.Error(t, inst.Close(context.Background()))
}
