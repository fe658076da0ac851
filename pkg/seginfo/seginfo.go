// Package seginfo provides utilities for naming and discovering the
// files that make up the append-only log: data segments, their paired
// index files, and the tombstone log.
//
// Filename Format: prefix_NNNNNNNNNN.ext
//
// Where:
//   - prefix: a configurable string identifying the file's owner (segment
//     files and tombstone files use independently configurable prefixes).
//   - NNNNNNNNNN: a zero-padded, 10-digit decimal file id. File ids are
//     allocated monotonically and are unique within a store's lifetime
//     (spec §3), so lexicographic and numeric filename order agree.
//   - ext: one of ".data", ".index", or ".tombstone", identifying which
//     of the three file kinds spec §6 describes this is.
//
// Example filenames:
//
//	segment_0000000001.data
//	segment_0000000001.index
//	tombstone_0000000003.tombstone
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iamNilotpal/ignite/pkg/filesys"
)

// Kind identifies which of the three file roles spec §6 describes a
// given file plays.
type Kind int

const (
	// KindData identifies a segment's append-only value log.
	KindData Kind = iota
	// KindIndex identifies a segment's paired index file.
	KindIndex
	// KindTombstone identifies a tombstone log file.
	KindTombstone
)

// Extension returns the filename suffix (including the leading dot)
// used for files of this kind.
func (k Kind) Extension() string {
	switch k {
	case KindData:
		return ".data"
	case KindIndex:
		return ".index"
	case KindTombstone:
		return ".tombstone"
	default:
		return ""
	}
}

// String implements fmt.Stringer for logging.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindIndex:
		return "index"
	case KindTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// idWidth is the zero-padding width applied to file ids so that
// lexicographic sort order matches numeric order up to 10 digits,
// comfortably covering the 32-bit id space spec §3 requires.
const idWidth = 10

// GenerateName builds the filename for a file of the given kind, id,
// and prefix.
func GenerateName(kind Kind, id uint32, prefix string) string {
	return fmt.Sprintf("%s_%0*d%s", prefix, idWidth, id, kind.Extension())
}

// ParseID extracts the file id and kind from a filename produced by
// GenerateName. The path component, if any, is ignored.
func ParseID(fullPath, prefix string) (uint32, Kind, error) {
	_, filename := filepath.Split(fullPath)

	ext := filepath.Ext(filename)
	var kind Kind
	switch ext {
	case ".data":
		kind = KindData
	case ".index":
		kind = KindIndex
	case ".tombstone":
		kind = KindTombstone
	default:
		return 0, 0, fmt.Errorf("seginfo: unrecognized extension %q in %q", ext, filename)
	}

	withoutExt := strings.TrimSuffix(filename, ext)
	withoutPrefix := strings.TrimPrefix(withoutExt, prefix+"_")
	if withoutPrefix == withoutExt {
		return 0, 0, fmt.Errorf("seginfo: filename %q does not start with expected prefix %q", filename, prefix)
	}

	id, err := strconv.ParseUint(withoutPrefix, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("seginfo: failed to parse id from %q: %w", filename, err)
	}

	return uint32(id), kind, nil
}

// ListIDs returns every distinct file id present for the given kind in
// dir, sorted ascending (oldest first). This is the order spec §4.6
// requires index files to be replayed in during recovery.
func ListIDs(dir, prefix string, kind Kind) ([]uint32, error) {
	pattern := filepath.Join(dir, prefix+"_*"+kind.Extension())
	matches, err := filesys.ReadDir(pattern)
	if err != nil {
		return nil, fmt.Errorf("seginfo: failed to glob %q: %w", pattern, err)
	}

	ids := make([]uint32, 0, len(matches))
	for _, m := range matches {
		id, _, err := ParseID(m, prefix)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// LatestID returns the highest file id of the given kind present in
// dir, and whether any file of that kind exists at all.
func LatestID(dir, prefix string, kind Kind) (uint32, bool, error) {
	ids, err := ListIDs(dir, prefix, kind)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[len(ids)-1], true, nil
}

// Path joins dir with the generated filename for kind/id/prefix.
func Path(dir, prefix string, kind Kind, id uint32) string {
	return filepath.Join(dir, GenerateName(kind, id, prefix))
}

// FileSize stats path and returns its size in bytes, or 0 if it does
// not exist.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
