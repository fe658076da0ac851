// Package tombstone manages the deletion log spec §4.3 describes: an
// append-only record of delete() calls, rolled over by the same
// max_file_size policy as a data segment, but with no paired index
// file of its own — every tombstone entry is self-describing (key +
// sequence number), so recovery replays the log directly (spec §4.6).
package tombstone

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/codec"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
)

// Log is one tombstone file.
type Log struct {
	mu sync.Mutex

	id   int
	path string

	file *os.File
	size atomic.Int64

	closed atomic.Bool
}

// Create opens a brand-new writable tombstone file with the given id.
func Create(dir, prefix string, id int) (*Log, error) {
	path := seginfo.Path(dir, prefix, seginfo.KindTombstone, uint32(id))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filenameOf(path))
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek tombstone file").
			WithPath(path)
	}

	return &Log{id: id, path: path, file: f}, nil
}

// OpenForReading opens an existing tombstone file read-only, for
// recovery replay.
func OpenForReading(dir, prefix string, id int) (*Log, error) {
	path := seginfo.Path(dir, prefix, seginfo.KindTombstone, uint32(id))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filenameOf(path))
	}

	size, err := seginfo.FileSize(path)
	if err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat tombstone file").
			WithPath(path)
	}

	l := &Log{id: id, path: path, file: f}
	l.size.Store(size)
	return l, nil
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// ID returns the tombstone file's id.
func (l *Log) ID() int { return l.id }

// Size returns the current length of the tombstone file.
func (l *Log) Size() int64 { return l.size.Load() }

// Path returns the tombstone file's path on disk.
func (l *Log) Path() string { return l.path }

// Append writes one tombstone entry for key at seq.
func (l *Log) Append(key []byte, seq uint64) (int64, error) {
	entry, err := codec.EncodeTombstone(key, seq)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(entry); err != nil {
		return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write tombstone").
			WithPath(l.path)
	}

	l.size.Add(int64(len(entry)))
	return l.size.Load(), nil
}

// Reader returns a fresh *os.File positioned at the start of the
// tombstone file, for sequential replay. The caller owns closing it.
func (l *Log) Reader() (*os.File, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, l.path, filenameOf(l.path))
	}
	return f, nil
}

// Force fsyncs the tombstone file.
func (l *Log) Force() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return errors.ClassifySyncError(err, filenameOf(l.path), l.path, int(l.size.Load()))
	}
	return nil
}

// Close closes the underlying file. Idempotent.
func (l *Log) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
