// Package storage implements the Store core spec §4.5 describes: the
// write path, read path, delete path, sequence-number assignment,
// stale-byte accounting, and the segment file map. It owns the current
// write segment, the tombstone log, the key directory, and runs
// recovery once at open before accepting any client traffic (spec
// §4.6).
//
// This keeps the teacher's original segment-rotation ownership model —
// one active append-only file, promoted to a new one on size overflow
// — but generalizes it from a single self-contained log file to the
// paired data/index segment plus independent tombstone log the target
// format requires, and adds the directory, stale accounting, and
// sequence-number plumbing recovery and compaction depend on.
package storage

import (
	"context"
	stdErrors "errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/iamNilotpal/ignite/internal/directory"
	"github.com/iamNilotpal/ignite/internal/recovery"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/iamNilotpal/ignite/internal/tombstone"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/filesys"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"go.uber.org/zap"
)

// ErrClosed is returned by Store operations attempted after Close.
var ErrClosed = stdErrors.New("ignite: store is closed")

// maxReadRetries bounds the retry spec §4.5's get() describes for the
// compactor-deletes-segment-concurrently race: the directory will
// point at the rewritten file by the time a second lookup runs.
const maxReadRetries = 1

// Store is the core read/write/delete path over the append-only log.
type Store struct {
	writeMu sync.Mutex // serializes put/delete; only one writer advances the active segment (spec §5).

	segDir, segPrefix     string
	tombDir, tombPrefix   string
	maxFileSize           int64
	mergeThresholdPerFile float64

	log *zap.SugaredLogger

	seq atomic.Uint64

	directory *directory.Directory

	active     atomic.Pointer[segment.Segment]
	activeTomb atomic.Pointer[tombstone.Log]

	nextSegmentID   atomic.Int64
	nextTombstoneID atomic.Int64

	segments   sync.Map // int -> *segment.Segment
	staleBytes sync.Map // int -> *atomic.Int64
	candidates sync.Map // int -> struct{}

	closed atomic.Bool
}

// New builds a Store over cfg, creating directories as needed and
// running recovery before returning.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Options == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("storage: invalid configuration")
	}
	opts := cfg.Options

	segDir := filepath.Join(opts.DataDir, opts.SegmentOptions.Directory)
	tombDir := filepath.Join(opts.DataDir, opts.TombstoneOptions.Directory)

	if err := filesys.CreateDir(segDir, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, segDir)
	}
	if err := filesys.CreateDir(tombDir, 0755, true); err != nil {
		return nil, errors.ClassifyDirectoryCreationError(err, tombDir)
	}
	if err := checkDataDirWritable(opts.DataDir, cfg.Logger); err != nil {
		return nil, err
	}

	dir := directory.New(directory.Config{
		ShardCount:      opts.DirectoryOptions.ShardCount,
		NumberOfRecords: opts.DirectoryOptions.NumberOfRecords,
		ChunkSize:       opts.DirectoryOptions.ChunkSize,
		UseMemoryPool:   opts.DirectoryOptions.UseMemoryPool,
		FixedKeySize:    opts.DirectoryOptions.FixedKeySize,
	})

	cfg.Logger.Infow("running recovery", "segmentDir", segDir, "tombstoneDir", tombDir)
	result, err := recovery.Run(recovery.Config{
		SegmentDir:      segDir,
		SegmentPrefix:   opts.SegmentOptions.Prefix,
		TombstoneDir:    tombDir,
		TombstonePrefix: opts.TombstoneOptions.Prefix,
		StrictRecovery:  opts.StrictRecovery,
	}, dir, cfg.Logger)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Infow("recovery complete",
		"keys", dir.Size(), "nextSegmentID", result.NextSegmentID, "nextSeq", result.NextSeq)

	s := &Store{
		segDir:                segDir,
		segPrefix:             opts.SegmentOptions.Prefix,
		tombDir:               tombDir,
		tombPrefix:            opts.TombstoneOptions.Prefix,
		maxFileSize:           int64(opts.SegmentOptions.Size),
		mergeThresholdPerFile: opts.CompactionOptions.MergeThresholdPerFile,
		log:                   cfg.Logger,
		directory:             dir,
	}
	s.seq.Store(result.NextSeq)
	s.nextSegmentID.Store(int64(result.NextSegmentID))
	s.nextTombstoneID.Store(int64(result.NextTombstoneID))

	// spec §4.6 step 1: enumerate existing data files and open them
	// read-only, populating the file map, before the fresh write
	// segment (below) is created.
	dataIDs, err := seginfo.ListIDs(segDir, opts.SegmentOptions.Prefix, seginfo.KindData)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to list data files").WithPath(segDir)
	}
	for _, id := range dataIDs {
		seg, err := segment.OpenForReading(segDir, opts.SegmentOptions.Prefix, int(id))
		if err != nil {
			return nil, err
		}
		s.segments.Store(int(id), seg)
	}
	for fileID, bytes := range result.StaleBytesByFile {
		s.staleAcc(fileID).Store(bytes)
		s.maybePromote(fileID)
	}

	activeSeg, err := segment.Create(segDir, opts.SegmentOptions.Prefix, int(s.nextSegmentID.Add(1)-1))
	if err != nil {
		return nil, err
	}
	s.active.Store(activeSeg)
	s.segments.Store(activeSeg.ID(), activeSeg)

	activeTomb, err := tombstone.Create(tombDir, opts.TombstoneOptions.Prefix, int(s.nextTombstoneID.Add(1)-1))
	if err != nil {
		activeSeg.Close()
		return nil, err
	}
	s.activeTomb.Store(activeTomb)

	cfg.Logger.Infow("store opened", "activeSegment", activeSeg.ID(), "activeTombstone", activeTomb.ID())
	return s, nil
}

// checkDataDirWritable fails fast with a clear error if dataDir cannot
// actually be written to (read-only filesystem, permission denied),
// rather than letting that surface later as an opaque segment-create
// failure deep inside recovery or the first Put.
func checkDataDirWritable(dataDir string, log *zap.SugaredLogger) error {
	probe := filepath.Join(dataDir, ".ignite-writable-probe")

	if err := filesys.WriteFile(probe, 0644, []byte("ok")); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "data directory is not writable").WithPath(dataDir)
	}

	ok, err := filesys.Exists(probe)
	if err != nil || !ok {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to verify data directory is writable").WithPath(dataDir)
	}

	if err := filesys.DeleteFile(probe); err != nil {
		log.Warnw("failed to remove data directory writability probe", "path", probe, "error", err)
	}
	return nil
}

// nextSeq atomically allocates the next strictly monotonic sequence
// number, bumping past a nanosecond clock reading the way spec §4.8
// recommends, so concurrent writers that observe the same tick still
// receive distinct, increasing numbers.
func (s *Store) nextSeq() uint64 {
	for {
		now := uint64(time.Now().UnixNano())
		cur := s.seq.Load()
		next := cur + 1
		if now > next {
			next = now
		}
		if s.seq.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func (s *Store) staleAcc(fileID int) *atomic.Int64 {
	v, _ := s.staleBytes.LoadOrStore(fileID, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (s *Store) fileSizeOf(fileID int) int64 {
	if active := s.active.Load(); active != nil && active.ID() == fileID {
		return active.Size()
	}
	if v, ok := s.segments.Load(fileID); ok {
		return v.(*segment.Segment).Size()
	}
	return 0
}

// addStale records bytes superseded in fileID and promotes it into the
// merge candidate set if the stale fraction crosses the threshold,
// per spec §4.5's update_stale.
func (s *Store) addStale(fileID int, bytes int64) {
	if bytes <= 0 {
		return
	}
	s.staleAcc(fileID).Add(bytes)
	s.maybePromote(fileID)
}

func (s *Store) maybePromote(fileID int) {
	acc := s.staleAcc(fileID)
	total := acc.Load()
	size := s.fileSizeOf(fileID)
	if size <= 0 {
		return
	}
	if float64(total)/float64(size) >= s.mergeThresholdPerFile {
		s.candidates.Store(fileID, struct{}{})
		acc.Store(0)
	}
}

// Put validates, appends, and indexes one record, per spec §4.5.
func (s *Store) Put(key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := codec.ValidateKeyLen(key); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	record := codec.Record{Key: key, Value: value}
	if err := s.rolloverSegmentIfNeeded(int64(record.Size())); err != nil {
		return err
	}

	seq := s.nextSeq()
	active := s.active.Load()
	appended, err := active.Append(key, value, seq)
	if err != nil {
		return err
	}

	prev, had := s.directory.Get(key)
	if had {
		s.addStale(int(prev.FileID), int64(prev.Size))
	}

	s.directory.Put(key, directory.Value{
		FileID: uint32(appended.FileID),
		Offset: appended.Offset,
		Size:   appended.Size,
		Seq:    seq,
	})
	return nil
}

// Get looks up key and, if present, reads its current value.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	for attempt := 0; attempt <= maxReadRetries; attempt++ {
		val, ok := s.directory.Get(key)
		if !ok {
			return nil, false, nil
		}

		seg, err := s.openSegmentForRead(int(val.FileID))
		if err != nil {
			if attempt < maxReadRetries {
				continue
			}
			return nil, false, err
		}

		record, err := seg.Read(val.Offset, val.Size)
		if err != nil {
			return nil, false, err
		}
		return record.Value, true, nil
	}
	return nil, false, nil
}

// Delete removes key, appending a tombstone if it was present.
func (s *Store) Delete(key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev, had := s.directory.Remove(key)
	if !had {
		return nil
	}

	tomb := codec.Tombstone{Key: key}
	if err := s.rolloverTombstoneIfNeeded(int64(tomb.Size())); err != nil {
		return err
	}

	seq := s.nextSeq()
	activeTomb := s.activeTomb.Load()
	if _, err := activeTomb.Append(key, seq); err != nil {
		return err
	}

	s.addStale(int(prev.FileID), int64(prev.Size))
	return nil
}

// Size returns the number of distinct live keys.
func (s *Store) Size() int {
	return s.directory.Size()
}

// Close stops accepting new operations and releases every open file.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.directory.Close(); err != nil {
		s.log.Warnw("error closing directory", "error", err)
	}

	var firstErr error
	s.segments.Range(func(_, v any) bool {
		if err := v.(*segment.Segment).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})

	if tomb := s.activeTomb.Load(); tomb != nil {
		if err := tomb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Store) rolloverSegmentIfNeeded(incoming int64) error {
	active := s.active.Load()
	if active.Size() == 0 || active.Size()+incoming <= s.maxFileSize {
		return nil
	}

	if err := active.Force(true); err != nil {
		return err
	}

	newID := int(s.nextSegmentID.Add(1) - 1)
	newSeg, err := segment.Create(s.segDir, s.segPrefix, newID)
	if err != nil {
		return err
	}

	s.active.Store(newSeg)
	s.segments.Store(newSeg.ID(), newSeg)
	return nil
}

func (s *Store) rolloverTombstoneIfNeeded(incoming int64) error {
	activeTomb := s.activeTomb.Load()
	if activeTomb.Size() == 0 || activeTomb.Size()+incoming <= s.maxFileSize {
		return nil
	}

	if err := activeTomb.Force(); err != nil {
		return err
	}

	newID := int(s.nextTombstoneID.Add(1) - 1)
	newTomb, err := tombstone.Create(s.tombDir, s.tombPrefix, newID)
	if err != nil {
		return err
	}

	s.activeTomb.Store(newTomb)
	return nil
}

func (s *Store) openSegmentForRead(fileID int) (*segment.Segment, error) {
	if v, ok := s.segments.Load(fileID); ok {
		return v.(*segment.Segment), nil
	}

	seg, err := segment.OpenForReading(s.segDir, s.segPrefix, fileID)
	if err != nil {
		return nil, err
	}

	actual, loaded := s.segments.LoadOrStore(fileID, seg)
	if loaded {
		seg.Close()
		return actual.(*segment.Segment), nil
	}
	return seg, nil
}

// The remaining exported methods are the hooks the compactor (internal
// package, holding a back-reference to the Store per spec §3's
// ownership note) needs; the Store never calls into the compactor.

// Directory returns the key directory, for the compactor's CAS calls.
func (s *Store) Directory() *directory.Directory { return s.directory }

// Logger returns the store's logger, shared by the compactor.
func (s *Store) Logger() *zap.SugaredLogger { return s.log }

// ActiveSegmentID returns the id of the current write segment, which
// the compactor must exclude when draining candidates.
func (s *Store) ActiveSegmentID() int {
	return s.active.Load().ID()
}

// OpenSegment returns the segment for fileID, opening and caching it
// read-only if this is the first request for it.
func (s *Store) OpenSegment(fileID int) (*segment.Segment, error) {
	return s.openSegmentForRead(fileID)
}

// NewSegment creates and registers a fresh writable segment. Used by
// the compactor to create its merge destination; the returned segment
// is not the store's active write segment.
func (s *Store) NewSegment() (*segment.Segment, error) {
	id := int(s.nextSegmentID.Add(1) - 1)
	seg, err := segment.Create(s.segDir, s.segPrefix, id)
	if err != nil {
		return nil, err
	}
	s.segments.Store(id, seg)
	return seg, nil
}

// RemoveSegment deletes fileID's data and index files and drops all
// bookkeeping for it. Called by the compactor once every live record
// from fileID has been transferred elsewhere.
func (s *Store) RemoveSegment(fileID int) error {
	s.staleBytes.Delete(fileID)
	s.candidates.Delete(fileID)

	if v, ok := s.segments.LoadAndDelete(fileID); ok {
		return v.(*segment.Segment).Delete()
	}

	seg, err := segment.OpenForReading(s.segDir, s.segPrefix, fileID)
	if err != nil {
		return err
	}
	return seg.Delete()
}

// DrainCandidates removes up to max file ids from the merge candidate
// set, always excluding the current write segment's id.
func (s *Store) DrainCandidates(max int) []int {
	activeID := s.ActiveSegmentID()
	ids := make([]int, 0, max)

	s.candidates.Range(func(k, _ any) bool {
		id := k.(int)
		if id == activeID {
			return true
		}
		ids = append(ids, id)
		return len(ids) < max
	})

	for _, id := range ids {
		s.candidates.Delete(id)
	}
	return ids
}

// CandidateCount reports how many segments (excluding the active one)
// currently sit in the merge candidate set.
func (s *Store) CandidateCount() int {
	activeID := s.ActiveSegmentID()
	count := 0
	s.candidates.Range(func(k, _ any) bool {
		if k.(int) != activeID {
			count++
		}
		return true
	})
	return count
}
