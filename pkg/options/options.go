// Package options provides data structures and functions for configuring
// the Ignite database. It defines various parameters that control Ignite's
// storage behavior, performance, and maintenance operations, such as
// directory paths, segment characteristics, and compaction intervals.
package options

import (
	"strings"
	"time"
)

// Defines configurable parameters for each segment.
// It provides fine-grained control over segment behavior, performance, and resource utilization.
type segmentOptions struct {
	// Defines the maximum size a segment can grow to before rotation.
	// When a segment reaches this size, a new segment will be created.
	// Larger segments mean fewer files but slower compaction and recovery.
	//
	//  - Default: 1GB
	//  - Maximum: 4GB
	//  - Minimum: 512MB
	Size uint64 `json:"maxSegmentSize"`

	// Specifies where segment files are stored.
	//
	// Default: "/var/lib/ignitedb/segments"
	Directory string `json:"directory"`

	// Defines the filename prefix for segment files.
	// Final filenames will be: `prefix_NNNNNNNNNN.data` and `prefix_NNNNNNNNNN.index`
	// (a zero-padded 10-digit file id).
	//
	// Default: "segment"
	//
	// Example: If Prefix is "mydata", a segment's data file might be "mydata_0000000001.data".
	Prefix string `json:"prefix"`
}

// Defines configurable parameters for the tombstone log, which follows
// the same rollover rules as a data segment but carries only deletion
// markers and has no paired index file.
type tombstoneOptions struct {
	// Directory tombstone files are stored in, relative to DataDir.
	//
	// Default: "/tombstones"
	Directory string `json:"directory"`

	// Filename prefix for tombstone files, mirroring segmentOptions.Prefix.
	//
	// Default: "tombstone"
	Prefix string `json:"prefix"`
}

// Defines configurable parameters for the in-memory key directory: the
// fixed-size-value hash index over keys described in spec §4.4.
type directoryOptions struct {
	// ShardCount is the number of independently-locked shards the
	// directory is split into. Rounded up to the next power of two.
	// Chosen at construction to be at least 2x available hardware
	// parallelism so concurrent writers and the compactor rarely
	// contend on the same shard.
	//
	// Default: 2x GOMAXPROCS, rounded up to the next power of two.
	ShardCount int `json:"shardCount"`

	// NumberOfRecords is a capacity hint used to pre-size each shard so
	// that ShardCount * PerShardCapacity >= NumberOfRecords.
	//
	// Default: 1,000,000
	NumberOfRecords int `json:"numberOfRecords"`

	// FixedKeySize, when non-zero, declares every key is exactly this
	// many bytes. The pooled directory backend then reuses a freed
	// slot's key buffer for a key of this length instead of allocating
	// a new one; the plain map backend ignores it, and keys of other
	// lengths are still stored normally. Zero means variable-length keys
	// up to the 127-byte maximum.
	//
	// Default: 0 (variable length)
	FixedKeySize int `json:"fixedKeySize"`

	// ChunkSize controls how many directory entries are allocated per
	// off-heap-style chunk inside a shard, amortizing allocation over
	// many inserts.
	//
	// Default: 4096
	ChunkSize int `json:"chunkSize"`

	// UseMemoryPool selects the pooled-chunk directory backing store
	// instead of a plain per-shard map, trading a small amount of
	// fixed overhead for reduced allocation churn. Recommended for
	// datasets with tens of millions of entries.
	//
	// Default: false
	UseMemoryPool bool `json:"useMemoryPool"`
}

// Defines configurable parameters that govern the background compactor:
// candidate selection, rate limiting, and fsync cadence during merges.
type compactionOptions struct {
	// MergeInterval is how often the compactor wakes up to check the
	// candidate set.
	//
	// Default: 5 minutes
	MergeInterval time.Duration `json:"mergeInterval"`

	// MergeThresholdPerFile is the stale_bytes/file_size fraction in
	// (0,1] that promotes a sealed segment into the merge candidate set.
	//
	// Default: 0.5
	MergeThresholdPerFile float64 `json:"mergeThresholdPerFile"`

	// MergeThresholdFileNumber is the minimum number of candidate files
	// required before a merge batch is drained and run.
	//
	// Default: 4
	MergeThresholdFileNumber int `json:"mergeThresholdFileNumber"`

	// Disabled skips compaction entirely when true; the candidate set
	// still accumulates but is never drained.
	//
	// Default: false
	Disabled bool `json:"disabled"`

	// RateBytesPerSecond throttles the compactor's rewrite throughput via
	// a token bucket. Non-positive means unlimited.
	//
	// Default: 64MB/s
	RateBytesPerSecond int `json:"rateBytesPerSecond"`

	// FlushThresholdBytes is how many unflushed bytes the compactor
	// writes to a destination segment before it calls force(). -1
	// disables mid-merge flushing (only the final fsync on seal applies).
	//
	// Default: 4MB
	FlushThresholdBytes int64 `json:"flushThresholdBytes"`
}

// Defines the configuration parameters for Ignite DB.
// It provides control over storage, performance and maintenance aspects.
type Options struct {
	// Specifies the base path where files will be stored.
	//
	// Default: "/var/lib/ignitedb"
	DataDir string `json:"dataDir"`

	// Defines how often the compaction process runs to merge old
	// segments. Kept alongside CompactionOptions.MergeInterval (which
	// WithCompactInterval/WithMergeInterval keep in sync) for API
	// familiarity with the teacher's original single-field shape.
	//
	// Default: 5 minutes
	CompactInterval time.Duration `json:"compactInterval"`

	// Configures segment management including size limits and naming convention.
	SegmentOptions *segmentOptions `json:"segmentOptions"`

	// Configures the tombstone log's rollover and naming.
	TombstoneOptions *tombstoneOptions `json:"tombstoneOptions"`

	// Configures the in-memory key directory's sharding and sizing.
	DirectoryOptions *directoryOptions `json:"directoryOptions"`

	// Configures the background compactor.
	CompactionOptions *compactionOptions `json:"compactionOptions"`

	// StrictRecovery, when true, turns a corrupted index or tombstone
	// entry encountered during recovery into a fatal open error instead
	// of truncating that file at the corruption point and continuing
	// with the next file. See spec §7 and §9's open question on
	// truncation policy.
	//
	// Default: false (truncate-and-continue)
	StrictRecovery bool `json:"strictRecovery"`
}

// OptionFunc is a function type that modifies the Ignite system's configuration.
type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// Sets the primary data directory for Ignite.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// Sets the interval at which Ignite performs compaction operations.
// Equivalent to WithMergeInterval; kept for API familiarity.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactInterval = interval
			o.CompactionOptions.MergeInterval = interval
		}
	}
}

// Sets the directory specifically for storing segment files.
func WithSegmentDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.SegmentOptions.Directory = directory
		}
	}
}

// Sets the file name prefix for segment files.
func WithSegmentPrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.SegmentOptions.Prefix = prefix
		}
	}
}

// Sets the maximum size of individual segment files.
func WithSegmentSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentOptions.Size = size
		}
	}
}

// Sets the directory tombstone files are written to.
func WithTombstoneDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.TombstoneOptions.Directory = directory
		}
	}
}

// Sets the filename prefix for tombstone files.
func WithTombstonePrefix(prefix string) OptionFunc {
	return func(o *Options) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			o.TombstoneOptions.Prefix = prefix
		}
	}
}

// Sets the capacity hint used to pre-size the key directory.
func WithMaxRecordCount(count int) OptionFunc {
	return func(o *Options) {
		if count > 0 {
			o.DirectoryOptions.NumberOfRecords = count
		}
	}
}

// Sets the number of independently-locked shards in the key directory.
// Values that are not a power of two are rounded up to the next one.
func WithDirectoryShardCount(count int) OptionFunc {
	return func(o *Options) {
		if count > 0 {
			o.DirectoryOptions.ShardCount = nextPowerOfTwo(count)
		}
	}
}

// Declares that every key stored is exactly size bytes, letting the
// pooled directory backend reuse freed key buffers of that length.
// Pass 0 to restore variable-length keys.
func WithFixedKeySize(size int) OptionFunc {
	return func(o *Options) {
		if size >= 0 && size <= 127 {
			o.DirectoryOptions.FixedKeySize = size
		}
	}
}

// Sets how many entries each directory shard allocates per chunk.
func WithIndexChunkSize(size int) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.DirectoryOptions.ChunkSize = size
		}
	}
}

// Switches the directory to its pooled-chunk backing store.
func WithMemoryPoolDirectory(enabled bool) OptionFunc {
	return func(o *Options) {
		o.DirectoryOptions.UseMemoryPool = enabled
	}
}

// Sets how often the compactor checks the merge candidate set.
func WithMergeInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactionOptions.MergeInterval = interval
			o.CompactInterval = interval
		}
	}
}

// Sets the stale_bytes/file_size fraction that promotes a segment into
// the compaction candidate set. Values outside (0,1] are ignored.
func WithMergeThresholdPerFile(fraction float64) OptionFunc {
	return func(o *Options) {
		if fraction > 0 && fraction <= 1 {
			o.CompactionOptions.MergeThresholdPerFile = fraction
		}
	}
}

// Sets the minimum candidate count required to run a merge batch.
func WithMergeThresholdFileCount(count int) OptionFunc {
	return func(o *Options) {
		if count > 0 {
			o.CompactionOptions.MergeThresholdFileNumber = count
		}
	}
}

// Disables or re-enables the background compactor entirely.
func WithMergeDisabled(disabled bool) OptionFunc {
	return func(o *Options) {
		o.CompactionOptions.Disabled = disabled
	}
}

// Sets the compactor's rewrite throughput cap in bytes/sec. A
// non-positive value means unlimited.
func WithCompactionRate(bytesPerSecond int) OptionFunc {
	return func(o *Options) {
		o.CompactionOptions.RateBytesPerSecond = bytesPerSecond
	}
}

// Sets how many unflushed bytes the compactor writes before fsyncing
// the destination segment. -1 disables mid-merge flushing.
func WithFlushThreshold(bytes int64) OptionFunc {
	return func(o *Options) {
		if bytes == -1 || bytes > 0 {
			o.CompactionOptions.FlushThresholdBytes = bytes
		}
	}
}

// Turns corrupted index/tombstone entries encountered during recovery
// into a fatal open error instead of a truncation point.
func WithStrictRecovery(strict bool) OptionFunc {
	return func(o *Options) {
		o.StrictRecovery = strict
	}
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
