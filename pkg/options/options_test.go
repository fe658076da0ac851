package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultOptions(t *testing.T) {
	o := NewDefaultOptions()
	assert.Equal(t, DefaultDataDir, o.DataDir)
	assert.Equal(t, DefaultSegmentSize, o.SegmentOptions.Size)
	assert.Equal(t, DefaultTombstoneDirectory, o.TombstoneOptions.Directory)
	assert.Positive(t, o.DirectoryOptions.ShardCount)
	assert.False(t, o.StrictRecovery)
}

func TestNewDefaultOptionsReturnsIndependentInstances(t *testing.T) {
	a := NewDefaultOptions()
	b := NewDefaultOptions()
	a.SegmentOptions.Directory = "/mutated"
	assert.NotEqual(t, a.SegmentOptions.Directory, b.SegmentOptions.Directory)
}

func TestWithDataDirIgnoresBlank(t *testing.T) {
	o := NewDefaultOptions()
	WithDataDir("   ")(&o)
	assert.Equal(t, DefaultDataDir, o.DataDir)

	WithDataDir("/custom")(&o)
	assert.Equal(t, "/custom", o.DataDir)
}

func TestWithSegmentSizeEnforcesBounds(t *testing.T) {
	o := NewDefaultOptions()
	before := o.SegmentOptions.Size

	WithSegmentSize(MinSegmentSize - 1)(&o)
	assert.Equal(t, before, o.SegmentOptions.Size, "below minimum must be rejected")

	WithSegmentSize(MaxSegmentSize + 1)(&o)
	assert.Equal(t, before, o.SegmentOptions.Size, "above maximum must be rejected")

	WithSegmentSize(MinSegmentSize + 1)(&o)
	assert.Equal(t, MinSegmentSize+1, o.SegmentOptions.Size)
}

func TestWithMergeIntervalSyncsCompactInterval(t *testing.T) {
	o := NewDefaultOptions()
	WithMergeInterval(90 * time.Minute)(&o)
	assert.Equal(t, 90*time.Minute, o.CompactionOptions.MergeInterval)
	assert.Equal(t, 90*time.Minute, o.CompactInterval)
}

func TestWithCompactIntervalSyncsMergeInterval(t *testing.T) {
	o := NewDefaultOptions()
	WithCompactInterval(2 * time.Hour)(&o)
	assert.Equal(t, 2*time.Hour, o.CompactInterval)
	assert.Equal(t, 2*time.Hour, o.CompactionOptions.MergeInterval)
}

func TestWithMergeThresholdPerFileRejectsOutOfRange(t *testing.T) {
	o := NewDefaultOptions()
	before := o.CompactionOptions.MergeThresholdPerFile

	WithMergeThresholdPerFile(0)(&o)
	assert.Equal(t, before, o.CompactionOptions.MergeThresholdPerFile)

	WithMergeThresholdPerFile(1.5)(&o)
	assert.Equal(t, before, o.CompactionOptions.MergeThresholdPerFile)

	WithMergeThresholdPerFile(0.75)(&o)
	assert.Equal(t, 0.75, o.CompactionOptions.MergeThresholdPerFile)
}

func TestWithDirectoryShardCountRoundsUp(t *testing.T) {
	o := NewDefaultOptions()
	WithDirectoryShardCount(5)(&o)
	assert.Equal(t, 8, o.DirectoryOptions.ShardCount)
}

func TestWithFixedKeySizeValidatesRange(t *testing.T) {
	o := NewDefaultOptions()
	WithFixedKeySize(128)(&o)
	assert.Equal(t, 0, o.DirectoryOptions.FixedKeySize, "out-of-range size must be rejected")

	WithFixedKeySize(16)(&o)
	assert.Equal(t, 16, o.DirectoryOptions.FixedKeySize)
}

func TestWithFlushThresholdAllowsDisableSentinel(t *testing.T) {
	o := NewDefaultOptions()
	WithFlushThreshold(-1)(&o)
	assert.EqualValues(t, -1, o.CompactionOptions.FlushThresholdBytes)

	WithFlushThreshold(0)(&o)
	assert.EqualValues(t, -1, o.CompactionOptions.FlushThresholdBytes, "zero is neither -1 nor positive, must be rejected")
}

func TestWithDefaultOptionsResetsPriorMutations(t *testing.T) {
	o := NewDefaultOptions()
	WithDataDir("/custom")(&o)
	WithDefaultOptions()(&o)
	assert.Equal(t, DefaultDataDir, o.DataDir)
}
