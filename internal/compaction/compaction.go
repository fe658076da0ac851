// Package compaction implements the background merge worker spec §4.7
// describes: a single dedicated goroutine that, on a timer, drains a
// batch of stale segments from the candidate set, rewrites their live
// records into a fresh destination segment, and hands each key off to
// its new location with a compare-and-swap on the directory so a
// racing writer is never clobbered.
//
// This package did not exist in the teacher repo — engine.go imported
// it but no implementation shipped with the retrieved source — so it
// is built fresh here, grounded in gtarraga-kv-store's compactionWorker
// select-loop idiom (a stop channel raced against a ticker) and
// intellect4all's compactSegments/applyCompaction split between
// reading a source's live records and swapping them into place, with
// rate limiting added via golang.org/x/time/rate per spec's
// compaction_job_rate.
package compaction

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/iamNilotpal/ignite/internal/directory"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/iamNilotpal/ignite/pkg/options"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store is the subset of *storage.Store the compactor needs. Declared
// here, satisfied there, so this package never imports storage's
// write-path internals.
type Store interface {
	Directory() *directory.Directory
	ActiveSegmentID() int
	OpenSegment(fileID int) (*segment.Segment, error)
	NewSegment() (*segment.Segment, error)
	RemoveSegment(fileID int) error
	DrainCandidates(max int) []int
	CandidateCount() int
}

// Compaction runs the merge worker goroutine.
type Compaction struct {
	store   Store
	options *options.Options
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	stop chan struct{}
	done chan struct{}

	closed atomic.Bool
}

// New builds a Compaction bound to store. Call Start to launch its
// worker goroutine.
func New(store Store, opts *options.Options, log *zap.SugaredLogger) *Compaction {
	var limiter *rate.Limiter
	if rps := opts.CompactionOptions.RateBytesPerSecond; rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}

	return &Compaction{
		store:   store,
		options: opts,
		log:     log.Named("compaction"),
		limiter: limiter,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background merge worker. Safe to call once.
func (c *Compaction) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Compaction) run(ctx context.Context) {
	defer close(c.done)

	interval := c.options.CompactionOptions.MergeInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if c.options.CompactionOptions.Disabled {
				continue
			}
			if c.store.CandidateCount() < c.options.CompactionOptions.MergeThresholdFileNumber {
				continue
			}
			c.runMergeBatch(ctx)
		}
	}
}

// Close signals the worker to stop and waits for it to exit. The
// worker checks for this between source files and between records
// (spec §5's cancellation rule), so a merge in progress finishes its
// current record before observing the signal.
func (c *Compaction) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stop)
	<-c.done
	return nil
}

func (c *Compaction) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Compaction) runMergeBatch(ctx context.Context) {
	batchSize := c.options.CompactionOptions.MergeThresholdFileNumber
	ids := c.store.DrainCandidates(batchSize)
	if len(ids) == 0 {
		return
	}

	dest, err := c.store.NewSegment()
	if err != nil {
		c.log.Errorw("failed to create merge destination segment", "error", err)
		return
	}
	c.log.Infow("starting merge batch", "sources", ids, "destination", dest.ID())

	flushThreshold := c.options.CompactionOptions.FlushThresholdBytes
	var unflushed int64

	for _, sourceID := range ids {
		if c.stopped() {
			break
		}

		if err := c.compactSource(ctx, sourceID, dest, &unflushed, flushThreshold); err != nil {
			c.log.Warnw("compaction of source segment failed, skipping", "sourceID", sourceID, "error", err)
			continue
		}

		// compactSource returns early without error once stop is
		// signalled; keep the source, which may still hold live records.
		if c.stopped() {
			break
		}

		if err := c.store.RemoveSegment(sourceID); err != nil {
			c.log.Warnw("failed to remove compacted source segment", "sourceID", sourceID, "error", err)
		}
	}

	if err := dest.Force(true); err != nil {
		c.log.Warnw("failed to fsync merge destination", "destinationID", dest.ID(), "error", err)
	}
}

// compactSource walks one source segment's index file, transferring
// every still-fresh record into dest and CAS-ing the directory entry
// over to its new location.
func (c *Compaction) compactSource(
	ctx context.Context,
	sourceID int,
	dest *segment.Segment,
	unflushed *int64,
	flushThreshold int64,
) error {
	source, err := c.store.OpenSegment(sourceID)
	if err != nil {
		return err
	}

	indexFile, err := source.IndexReader()
	if err != nil {
		return err
	}
	defer indexFile.Close()

	dataFile, err := source.DataReader()
	if err != nil {
		return err
	}
	defer dataFile.Close()

	dir := c.store.Directory()

	for {
		if c.stopped() {
			return nil
		}

		entry, err := codec.ReadIndexEntry(indexFile)
		if err == io.EOF {
			break
		}
		if err != nil {
			c.log.Warnw("corrupt index entry, stopping source scan", "sourceID", sourceID, "error", err)
			return err
		}

		if entry.IsTombstone() {
			// This implementation's write path never produces
			// tombstone-flagged index entries (deletes go only to
			// the tombstone log), so there is no value here to
			// transfer; nothing to do.
			continue
		}

		current, ok := dir.Get(entry.Key)
		fresh := ok && current.FileID == uint32(sourceID) && current.Offset == entry.Offset
		if !fresh {
			continue
		}

		if c.limiter != nil {
			if err := c.limiter.WaitN(ctx, int(entry.RecordSize)); err != nil {
				return err
			}
		}

		buf := make([]byte, entry.RecordSize)
		if _, err := dataFile.ReadAt(buf, int64(entry.Offset)); err != nil {
			c.log.Warnw("failed to read source record", "sourceID", sourceID, "offset", entry.Offset, "error", err)
			return err
		}

		appended, err := dest.AppendRaw(buf, entry.Key, entry.Seq)
		if err != nil {
			c.log.Warnw("failed to write destination record", "destinationID", dest.ID(), "error", err)
			return err
		}

		swapped := dir.AddOrReplace(entry.Key, &current, directory.Value{
			FileID: uint32(appended.FileID),
			Offset: appended.Offset,
			Size:   appended.Size,
			Seq:    entry.Seq,
		})
		if !swapped {
			// Superseded by a concurrent write between the freshness
			// check and the CAS; the bytes just copied become dead
			// weight in dest, reclaimed by a later compaction pass.
			continue
		}

		*unflushed += int64(appended.Size)
		if flushThreshold > 0 && *unflushed >= flushThreshold {
			if err := dest.Force(true); err != nil {
				c.log.Warnw("mid-merge fsync failed", "destinationID", dest.ID(), "error", err)
			}
			*unflushed = 0
		}
	}
	return nil
}
