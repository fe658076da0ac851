package options

import (
	"runtime"
	"time"
)

const (
	// Specifies the default base directory where IgniteDB will store its data files.
	// If no other directory is specified during initialization, this path will be used.
	DefaultDataDir = "/var/lib/ignitedb"

	// Defines the default time duration between automatic compaction operations.
	// It equals DefaultMergeInterval, so by default compaction runs every 5 minutes.
	DefaultCompactInterval = DefaultMergeInterval

	// Represents the minimum allowed size for a segment file in bytes (512MB).
	MinSegmentSize uint64 = 512 * 1024 * 1024

	// Represents the maximum allowed size for a segment file in bytes (4GB).
	MaxSegmentSize uint64 = 4 * 1024 * 1024 * 1024

	// Specifies the default target size for a new segment file in bytes (1GB).
	DefaultSegmentSize uint64 = 1 * 1024 * 1024 * 1024

	// Specifies the default subdirectory within the main data directory
	// where segment files will be stored.
	DefaultSegmentDirectory = "/segments"

	// Defines the default prefix for segment file names.
	// For example, a segment's data file might be named "segment_0000000001.data".
	DefaultSegmentPrefix = "segment"

	// Specifies the default subdirectory tombstone files are stored in.
	DefaultTombstoneDirectory = "/tombstones"

	// Defines the default prefix for tombstone file names.
	DefaultTombstonePrefix = "tombstone"

	// Default capacity hint for the key directory.
	DefaultNumberOfRecords = 1_000_000

	// Default number of entries allocated per directory shard chunk.
	DefaultIndexChunkSize = 4096

	// Default compaction wake-up interval.
	DefaultMergeInterval = 5 * time.Minute

	// Default stale_bytes/file_size fraction that promotes a segment to
	// the merge candidate set.
	DefaultMergeThresholdPerFile = 0.5

	// Default minimum candidate count required to run a merge batch.
	DefaultMergeThresholdFileNumber = 4

	// Default compactor rewrite rate limit, in bytes/sec.
	DefaultCompactionRateBytesPerSecond = 64 * 1024 * 1024

	// Default unflushed-bytes threshold that triggers a mid-merge fsync.
	DefaultFlushThresholdBytes int64 = 4 * 1024 * 1024
)

// Holds the default configuration settings for an IgniteDB instance.
func NewDefaultOptions() Options {
	return Options{
		DataDir:         DefaultDataDir,
		CompactInterval: DefaultCompactInterval,
		SegmentOptions: &segmentOptions{
			Size:      DefaultSegmentSize,
			Prefix:    DefaultSegmentPrefix,
			Directory: DefaultSegmentDirectory,
		},
		TombstoneOptions: &tombstoneOptions{
			Directory: DefaultTombstoneDirectory,
			Prefix:    DefaultTombstonePrefix,
		},
		DirectoryOptions: &directoryOptions{
			ShardCount:      defaultShardCount(),
			NumberOfRecords: DefaultNumberOfRecords,
			ChunkSize:       DefaultIndexChunkSize,
		},
		CompactionOptions: &compactionOptions{
			MergeInterval:            DefaultMergeInterval,
			MergeThresholdPerFile:    DefaultMergeThresholdPerFile,
			MergeThresholdFileNumber: DefaultMergeThresholdFileNumber,
			RateBytesPerSecond:       DefaultCompactionRateBytesPerSecond,
			FlushThresholdBytes:      DefaultFlushThresholdBytes,
		},
	}
}

// defaultShardCount picks a power-of-two shard count at least 2x
// GOMAXPROCS, matching the sizing rule spec §4.4 requires of the
// directory's backing hash table.
func defaultShardCount() int {
	return nextPowerOfTwo(runtime.GOMAXPROCS(0) * 2)
}
