// Package recovery rebuilds the in-memory key directory from the
// on-disk index and tombstone files left behind by a previous run,
// per spec §4.6.
//
// Index files are replayed first, sorted by ascending file id (oldest
// first); because a single store serializes all writers, file-id order
// and within-file order already agree with sequence-number order for
// the overwhelming majority of records, so the straightforward
// single-pass comparison below is sufficient: a later entry for a key
// wins over an earlier one only if its sequence number is strictly
// greater, in which case the superseded entry's bytes are charged to its
// own file's stale total; a later entry that loses is ignored and
// charged nothing. Tombstone files are replayed afterward; a tombstone
// removes a directory entry only if that entry's sequence number is
// strictly smaller than the tombstone's.
package recovery

import (
	"io"
	"os"
	"path/filepath"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/iamNilotpal/ignite/internal/directory"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"go.uber.org/zap"
)

// Result summarizes what recovery learned, beyond populating the
// directory: the next ids/sequence number the store should allocate,
// and how many stale bytes each existing data file already carries,
// which seeds the compactor's candidate selection.
type Result struct {
	NextSegmentID    int
	NextTombstoneID  int
	NextSeq          uint64
	StaleBytesByFile map[int]int64
}

type presentEntry struct {
	seq   uint64
	value directory.Value
}

// Config names the directories and filename prefixes recovery reads.
type Config struct {
	SegmentDir      string
	SegmentPrefix   string
	TombstoneDir    string
	TombstonePrefix string
	StrictRecovery  bool
}

// Run replays every index and tombstone file under cfg, installing the
// winning entries into dir, and returns the next ids to allocate along
// with per-file stale-byte totals accumulated during replay.
func Run(cfg Config, dir *directory.Directory, log *zap.SugaredLogger) (Result, error) {
	present := make(map[string]presentEntry)
	staleBytes := make(map[int]int64)
	var maxSeq uint64

	segIDs, err := seginfo.ListIDs(cfg.SegmentDir, cfg.SegmentPrefix, seginfo.KindIndex)
	if err != nil {
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to list segment index files").
			WithPath(cfg.SegmentDir)
	}

	for _, id := range segIDs {
		path := seginfo.Path(cfg.SegmentDir, cfg.SegmentPrefix, seginfo.KindIndex, id)
		if err := replayIndexFile(path, int(id), present, staleBytes, &maxSeq, cfg.StrictRecovery, dir, log); err != nil {
			return Result{}, err
		}
	}

	tombIDs, err := seginfo.ListIDs(cfg.TombstoneDir, cfg.TombstonePrefix, seginfo.KindTombstone)
	if err != nil {
		return Result{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to list tombstone files").
			WithPath(cfg.TombstoneDir)
	}

	for _, id := range tombIDs {
		path := seginfo.Path(cfg.TombstoneDir, cfg.TombstonePrefix, seginfo.KindTombstone, id)
		if err := replayTombstoneFile(path, present, &maxSeq, cfg.StrictRecovery, dir, log); err != nil {
			return Result{}, err
		}
	}

	result := Result{StaleBytesByFile: staleBytes, NextSegmentID: 1, NextTombstoneID: 1}
	if len(segIDs) > 0 {
		result.NextSegmentID = int(segIDs[len(segIDs)-1]) + 1
	}
	if len(tombIDs) > 0 {
		result.NextTombstoneID = int(tombIDs[len(tombIDs)-1]) + 1
	}
	if maxSeq > 0 {
		result.NextSeq = maxSeq + 1
	} else {
		result.NextSeq = 1
	}
	return result, nil
}

// replayIndexFile reads every entry in an index file, in order. A
// corrupt entry truncates replay of this file at that point (the rest
// of the file is treated as not-yet-durable) unless strict is set, in
// which case it is a fatal open error (spec §7, §9).
func replayIndexFile(
	path string,
	fileID int,
	present map[string]presentEntry,
	staleBytes map[int]int64,
	maxSeq *uint64,
	strict bool,
	dir *directory.Directory,
	log *zap.SugaredLogger,
) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	defer f.Close()

	count := 0
	for {
		entry, err := codec.ReadIndexEntry(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			if strict {
				return errors.NewIndexCorruptionError("Recovery", count, err).
					WithSegmentID(uint16(fileID))
			}
			log.Warnw("truncating corrupted index file during recovery",
				"path", path, "entriesRecovered", count, "error", err)
			break
		}

		if entry.Seq > *maxSeq {
			*maxSeq = entry.Seq
		}

		key := string(entry.Key)
		value := directory.Value{
			FileID: uint32(fileID),
			Offset: entry.Offset,
			Size:   entry.RecordSize,
			Seq:    entry.Seq,
		}

		existing, ok := present[key]
		switch {
		case !ok:
			present[key] = presentEntry{seq: entry.Seq, value: value}
			dir.Put(entry.Key, value)
		case existing.seq < entry.Seq:
			staleBytes[int(existing.value.FileID)] += int64(existing.value.Size)
			present[key] = presentEntry{seq: entry.Seq, value: value}
			dir.Put(entry.Key, value)
		default:
			// An older record appearing later is already superseded.
		}
		count++
	}
	return nil
}

// replayTombstoneFile reads every entry in a tombstone file, same
// truncation policy as replayIndexFile. No stale-byte accounting is
// performed here: the superseded data record's bytes are not charged
// against any file's stale total at this step.
func replayTombstoneFile(
	path string,
	present map[string]presentEntry,
	maxSeq *uint64,
	strict bool,
	dir *directory.Directory,
	log *zap.SugaredLogger,
) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	defer f.Close()

	count := 0
	for {
		tomb, err := codec.ReadTombstone(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			if strict {
				return errors.NewIndexCorruptionError("Recovery", count, err)
			}
			log.Warnw("truncating corrupted tombstone file during recovery",
				"path", path, "entriesRecovered", count, "error", err)
			break
		}

		if tomb.Seq > *maxSeq {
			*maxSeq = tomb.Seq
		}

		key := string(tomb.Key)
		if existing, ok := present[key]; ok && existing.seq < tomb.Seq {
			delete(present, key)
			dir.Remove(tomb.Key)
		}
		count++
	}
	return nil
}
