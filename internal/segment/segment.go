// Package segment manages the append-only data/index file pair spec
// §4.2 describes: a data file holding encoded records back to back, and
// a paired index file holding one codec.IndexEntry per record so the
// directory can be rebuilt without rereading every value.
//
// Segment mirrors the file-opening idiom the storage layer's original
// openSegmentFile used — os.OpenFile with O_CREATE|O_RDWR|O_APPEND,
// explicit Seek to the end of the file — generalized
// to the paired data+index files spec §4.2 and §6 require, and to
// cover both the writable tail segment and read-only sealed segments
// the compactor and recovery open purely for reading.
package segment

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
)

// Appended is the result of appending one record to a segment: exactly
// the fields the directory needs to locate it again.
type Appended struct {
	FileID int
	Offset uint32
	Size   uint32
}

// Segment owns one data file and its paired index file.
type Segment struct {
	mu sync.Mutex

	id     int
	dir    string
	prefix string

	dataPath  string
	indexPath string

	data  *os.File
	index *os.File

	writable bool
	size     atomic.Int64 // current data file length

	closed atomic.Bool
}

// Create opens a writable segment with the given id. Both the data and
// index files are opened with O_CREATE|O_RDWR|O_APPEND; O_EXCL is not
// used, so a duplicate id is not detected. The segment's write offset
// starts at zero whatever the files already contain.
func Create(dir, prefix string, id int) (*Segment, error) {
	dataPath := seginfo.Path(dir, prefix, seginfo.KindData, uint32(id))
	indexPath := seginfo.Path(dir, prefix, seginfo.KindIndex, uint32(id))

	data, err := openAppendable(dataPath)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dataPath, filenameOf(dataPath))
	}

	index, err := openAppendable(indexPath)
	if err != nil {
		data.Close()
		return nil, errors.ClassifyFileOpenError(err, indexPath, filenameOf(indexPath))
	}

	return &Segment{
		id:        id,
		dir:       dir,
		prefix:    prefix,
		dataPath:  dataPath,
		indexPath: indexPath,
		data:      data,
		index:     index,
		writable:  true,
	}, nil
}

// OpenForReading opens an existing sealed segment read-only. Used by
// recovery (replaying the index file) and the compactor (reading
// records out of a merge candidate).
func OpenForReading(dir, prefix string, id int) (*Segment, error) {
	dataPath := seginfo.Path(dir, prefix, seginfo.KindData, uint32(id))
	indexPath := seginfo.Path(dir, prefix, seginfo.KindIndex, uint32(id))

	data, err := os.Open(dataPath)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, dataPath, filenameOf(dataPath))
	}

	index, err := os.Open(indexPath)
	if err != nil {
		data.Close()
		return nil, errors.ClassifyFileOpenError(err, indexPath, filenameOf(indexPath))
	}

	size, err := seginfo.FileSize(dataPath)
	if err != nil {
		data.Close()
		index.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat data file").
			WithPath(dataPath)
	}

	s := &Segment{
		id:        id,
		dir:       dir,
		prefix:    prefix,
		dataPath:  dataPath,
		indexPath: indexPath,
		data:      data,
		index:     index,
		writable:  false,
	}
	s.size.Store(size)
	return s, nil
}

func openAppendable(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ID returns the segment's file id.
func (s *Segment) ID() int { return s.id }

// Size returns the current length of the data file.
func (s *Segment) Size() int64 { return s.size.Load() }

// DataPath returns the data file's path on disk.
func (s *Segment) DataPath() string { return s.dataPath }

// IndexPath returns the index file's path on disk.
func (s *Segment) IndexPath() string { return s.indexPath }

// Append encodes and writes one record plus its index entry, returning
// the location the directory should record for this key.
func (s *Segment) Append(key, value []byte, seq uint64) (Appended, error) {
	if !s.writable {
		return Appended{}, errors.NewStorageError(
			nil, errors.ErrorCodeIO, "append on read-only segment",
		).WithSegmentID(s.id)
	}

	record, err := codec.EncodeRecord(key, value, seq, 0)
	if err != nil {
		return Appended{}, err
	}
	return s.appendEncoded(record, key, seq)
}

// AppendRaw writes an already-encoded record verbatim (its checksum,
// sequence number, and flags are whatever the caller baked into it)
// and a matching index entry. The compactor uses this to transfer a
// live record's bytes straight from a source segment's data file to
// the destination without re-encoding it.
func (s *Segment) AppendRaw(encoded []byte, key []byte, seq uint64) (Appended, error) {
	if !s.writable {
		return Appended{}, errors.NewStorageError(
			nil, errors.ErrorCodeIO, "append on read-only segment",
		).WithSegmentID(s.id)
	}
	return s.appendEncoded(encoded, key, seq)
}

func (s *Segment) appendEncoded(record []byte, key []byte, seq uint64) (Appended, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.size.Load()

	if _, err := s.data.Write(record); err != nil {
		return Appended{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write data record").
			WithPath(s.dataPath).WithSegmentID(s.id).WithOffset(int(offset))
	}

	entry := codec.IndexEntry{
		Key:        key,
		RecordSize: uint32(len(record)),
		Offset:     uint32(offset),
		Seq:        seq,
	}
	encodedEntry, err := codec.EncodeIndexEntry(entry)
	if err != nil {
		return Appended{}, err
	}

	if _, err := s.index.Write(encodedEntry); err != nil {
		return Appended{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write index entry").
			WithPath(s.indexPath).WithSegmentID(s.id)
	}

	s.size.Add(int64(len(record)))
	return Appended{FileID: s.id, Offset: uint32(offset), Size: uint32(len(record))}, nil
}

// Read returns the decoded record stored at [offset, offset+size) in
// the data file.
func (s *Segment) Read(offset, size uint32) (codec.Record, error) {
	buf := make([]byte, size)
	if _, err := s.data.ReadAt(buf, int64(offset)); err != nil {
		return codec.Record{}, errors.NewStorageError(
			err, errors.ErrorCodePayloadReadFailure, "failed to read record",
		).WithPath(s.dataPath).WithSegmentID(s.id).WithOffset(int(offset))
	}
	return codec.DecodeRecord(buf)
}

// IndexReader returns a fresh *os.File positioned at the start of the
// index file, for sequential replay during recovery or compaction. The
// caller owns closing the returned file.
func (s *Segment) IndexReader() (*os.File, error) {
	f, err := os.Open(s.indexPath)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, s.indexPath, filenameOf(s.indexPath))
	}
	return f, nil
}

// DataReader returns a fresh *os.File positioned at the start of the
// data file, for full-segment scans (compaction's source read).
func (s *Segment) DataReader() (*os.File, error) {
	f, err := os.Open(s.dataPath)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, s.dataPath, filenameOf(s.dataPath))
	}
	return f, nil
}

// Force fsyncs the data file and, when metadata is true, the index
// file as well.
func (s *Segment) Force(metadata bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.data.Sync(); err != nil {
		return errors.ClassifySyncError(err, filenameOf(s.dataPath), s.dataPath, int(s.size.Load()))
	}
	if metadata {
		if err := s.index.Sync(); err != nil {
			return errors.ClassifySyncError(err, filenameOf(s.indexPath), s.indexPath, int(s.size.Load()))
		}
	}
	return nil
}

// Close closes both underlying files. Idempotent.
func (s *Segment) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dataErr := s.data.Close()
	indexErr := s.index.Close()
	if dataErr != nil {
		return dataErr
	}
	return indexErr
}

// Delete closes and removes both the data and index files. Used by the
// compactor once a merged segment's keys have all been handed off to
// their new locations.
func (s *Segment) Delete() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.dataPath); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to remove data file").
			WithPath(s.dataPath).WithSegmentID(s.id)
	}
	if err := os.Remove(s.indexPath); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to remove index file").
			WithPath(s.indexPath).WithSegmentID(s.id)
	}
	return nil
}
