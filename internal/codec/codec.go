// Package codec implements the binary layout of every on-disk structure
// ignite writes: data records, their paired index entries, and
// tombstone entries (spec §4.1, §6). All multi-byte integers are
// little-endian. Field widths and order are fixed for the lifetime of a
// database; changing them requires a new on-disk format version.
//
// data record:
//
//	[checksum:4][key_len:1][value_len:4][seq:8][flags:1][key][value]
//
// index entry:
//
//	[key_len:1][record_size:4][record_offset:4][seq:8][flags:1][key]
//
// tombstone entry:
//
//	[checksum:4][key_len:1][seq:8][key]
package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/iamNilotpal/ignite/pkg/errors"
)

// MaxKeySize is the largest key this format can represent: key length
// occupies a single byte and is constrained to the signed-byte range
// (spec §4.1).
const MaxKeySize = 127

const (
	// DataHeaderSize is the fixed-width prefix of every data record,
	// before the key and value bytes.
	DataHeaderSize = 4 + 1 + 4 + 8 + 1

	// IndexHeaderSize is the fixed-width prefix of every index entry,
	// before the key bytes.
	IndexHeaderSize = 1 + 4 + 4 + 8 + 1

	// TombstoneHeaderSize is the fixed-width prefix of every tombstone
	// entry, before the key bytes.
	TombstoneHeaderSize = 4 + 1 + 8
)

// FlagTombstone marks an index entry as representing a deletion rather
// than a live value. ignite's write path never appends tombstone-flagged
// entries to a data segment's index file today — deletes are recorded
// exclusively in the tombstone log (spec §4.5's delete()) — but the
// compactor still honors this flag on read so an index format emitted
// by a future writer that inlines deletions keeps working unmodified.
const FlagTombstone uint8 = 1 << 0

// checksum hashes key and value together and folds the result into 4
// bytes, the same width spec §6's illustrative layout reserves for it.
func checksum(key, value []byte) uint32 {
	h := xxhash.New()
	h.Write(key)
	h.Write(value)
	return uint32(h.Sum64())
}

// ValidateKeyLen returns an *errors.ValidationError if key is longer
// than MaxKeySize.
func ValidateKeyLen(key []byte) error {
	if len(key) > MaxKeySize {
		return errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "key exceeds maximum length",
		).WithField("key").WithRule("max_length").
			WithProvided(len(key)).WithExpected(MaxKeySize)
	}
	return nil
}

// Record is the decoded form of a data record.
type Record struct {
	Key   []byte
	Value []byte
	Seq   uint64
	Flags uint8
}

// Size returns the total on-disk size of the encoded record.
func (r Record) Size() int {
	return DataHeaderSize + len(r.Key) + len(r.Value)
}

// EncodeRecord serializes a data record. Returns ValidationError if the
// key is too long.
func EncodeRecord(key, value []byte, seq uint64, flags uint8) ([]byte, error) {
	if err := ValidateKeyLen(key); err != nil {
		return nil, err
	}

	buf := make([]byte, DataHeaderSize+len(key)+len(value))
	binary.LittleEndian.PutUint32(buf[0:4], checksum(key, value))
	buf[4] = byte(len(key))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(value)))
	binary.LittleEndian.PutUint64(buf[9:17], seq)
	buf[17] = flags
	copy(buf[DataHeaderSize:], key)
	copy(buf[DataHeaderSize+len(key):], value)
	return buf, nil
}

// DecodeRecordHeader parses the fixed-width prefix of a data record.
// It returns the checksum, key length, value length, sequence number,
// and flags, without touching key/value bytes.
func DecodeRecordHeader(buf []byte) (chk uint32, keyLen uint8, valueLen uint32, seq uint64, flags uint8, err error) {
	if len(buf) < DataHeaderSize {
		return 0, 0, 0, 0, 0, fmt.Errorf("codec: short data header: got %d bytes, need %d", len(buf), DataHeaderSize)
	}
	chk = binary.LittleEndian.Uint32(buf[0:4])
	keyLen = buf[4]
	valueLen = binary.LittleEndian.Uint32(buf[5:9])
	seq = binary.LittleEndian.Uint64(buf[9:17])
	flags = buf[17]
	return chk, keyLen, valueLen, seq, flags, nil
}

// DecodeRecord parses a complete data record (header + key + value) and
// verifies its checksum. A checksum mismatch is reported as a
// *errors.StorageError with ErrorCodeSegmentCorrupted.
func DecodeRecord(buf []byte) (Record, error) {
	chk, keyLen, valueLen, seq, flags, err := DecodeRecordHeader(buf)
	if err != nil {
		return Record{}, err
	}

	want := DataHeaderSize + int(keyLen) + int(valueLen)
	if len(buf) < want {
		return Record{}, fmt.Errorf("codec: truncated record: got %d bytes, need %d", len(buf), want)
	}

	key := buf[DataHeaderSize : DataHeaderSize+int(keyLen)]
	value := buf[DataHeaderSize+int(keyLen) : want]

	if checksum(key, value) != chk {
		return Record{}, errors.NewStorageError(
			nil, errors.ErrorCodeSegmentCorrupted, "record checksum mismatch",
		).WithDetail("expectedChecksum", chk).WithDetail("keyLen", keyLen).WithDetail("valueLen", valueLen)
	}

	out := Record{Seq: seq, Flags: flags}
	out.Key = append([]byte(nil), key...)
	out.Value = append([]byte(nil), value...)
	return out, nil
}

// IndexEntry is the decoded form of an index entry: everything needed
// to locate and validate a record without reading its value bytes.
type IndexEntry struct {
	Key        []byte
	RecordSize uint32
	Offset     uint32
	Seq        uint64
	Flags      uint8
}

// EncodedSize returns the total on-disk size of the encoded index entry.
func (e IndexEntry) EncodedSize() int {
	return IndexHeaderSize + len(e.Key)
}

// IsTombstone reports whether this entry's flags mark it as a
// deletion. See FlagTombstone's doc comment for why this is currently
// always false for entries this implementation writes.
func (e IndexEntry) IsTombstone() bool {
	return e.Flags&FlagTombstone != 0
}

// EncodeIndexEntry serializes an index entry.
func EncodeIndexEntry(e IndexEntry) ([]byte, error) {
	if err := ValidateKeyLen(e.Key); err != nil {
		return nil, err
	}

	buf := make([]byte, IndexHeaderSize+len(e.Key))
	buf[0] = byte(len(e.Key))
	binary.LittleEndian.PutUint32(buf[1:5], e.RecordSize)
	binary.LittleEndian.PutUint32(buf[5:9], e.Offset)
	binary.LittleEndian.PutUint64(buf[9:17], e.Seq)
	buf[17] = e.Flags
	copy(buf[IndexHeaderSize:], e.Key)
	return buf, nil
}

// ReadIndexEntry reads one index entry from r. Returns io.EOF (only)
// when r is exhausted exactly at an entry boundary; any other read
// failure, including a short read mid-entry, is reported as a
// *errors.StorageError with ErrorCodeSegmentCorrupted so callers can
// treat it as a truncation point (spec §7).
func ReadIndexEntry(r io.Reader) (IndexEntry, error) {
	header := make([]byte, IndexHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return IndexEntry{}, io.EOF
		}
		return IndexEntry{}, errors.NewStorageError(
			err, errors.ErrorCodeSegmentCorrupted, "truncated index entry header",
		)
	}

	keyLen := header[0]
	size := binary.LittleEndian.Uint32(header[1:5])
	offset := binary.LittleEndian.Uint32(header[5:9])
	seq := binary.LittleEndian.Uint64(header[9:17])
	flags := header[17]

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return IndexEntry{}, errors.NewStorageError(
			err, errors.ErrorCodeSegmentCorrupted, "truncated index entry key",
		)
	}

	return IndexEntry{Key: key, RecordSize: size, Offset: offset, Seq: seq, Flags: flags}, nil
}

// Tombstone is the decoded form of a tombstone entry.
type Tombstone struct {
	Key []byte
	Seq uint64
}

// Size returns the total on-disk size of the encoded tombstone entry.
func (t Tombstone) Size() int {
	return TombstoneHeaderSize + len(t.Key)
}

// EncodeTombstone serializes a tombstone entry.
func EncodeTombstone(key []byte, seq uint64) ([]byte, error) {
	if err := ValidateKeyLen(key); err != nil {
		return nil, err
	}

	buf := make([]byte, TombstoneHeaderSize+len(key))
	binary.LittleEndian.PutUint32(buf[0:4], checksum(key, nil))
	buf[4] = byte(len(key))
	binary.LittleEndian.PutUint64(buf[5:13], seq)
	copy(buf[TombstoneHeaderSize:], key)
	return buf, nil
}

// ReadTombstone reads one tombstone entry from r and verifies its
// checksum. Returns io.EOF (only) at a clean entry boundary.
func ReadTombstone(r io.Reader) (Tombstone, error) {
	header := make([]byte, TombstoneHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Tombstone{}, io.EOF
		}
		return Tombstone{}, errors.NewStorageError(
			err, errors.ErrorCodeSegmentCorrupted, "truncated tombstone header",
		)
	}

	chk := binary.LittleEndian.Uint32(header[0:4])
	keyLen := header[4]
	seq := binary.LittleEndian.Uint64(header[5:13])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Tombstone{}, errors.NewStorageError(
			err, errors.ErrorCodeSegmentCorrupted, "truncated tombstone key",
		)
	}

	if checksum(key, nil) != chk {
		return Tombstone{}, errors.NewStorageError(
			nil, errors.ErrorCodeSegmentCorrupted, "tombstone checksum mismatch",
		)
	}

	return Tombstone{Key: key, Seq: seq}, nil
}
