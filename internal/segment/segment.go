// Package segment implements a single append-only WAL segment file:
// length-prefixed, JSON-encoded records with torn-tail tolerant replay.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsjohal14/fluxdb/internal/store"
)

// ErrCorrupt indicates a fully-written record whose payload is not valid
// JSON: a disk corruption, not a crash-induced torn write.
var ErrCorrupt = errors.New("segment: corrupt record")

const lengthPrefixSize = 4

// Segment is one append-only `<id>.log` file within a WAL directory.
type Segment struct {
	ID   uint64
	path string
	f    *os.File
}

// FileName returns the on-disk name for segment id.
func FileName(id uint64) string {
	return fmt.Sprintf("%d.log", id)
}

// Create creates `<id>.log` inside dir exclusively, failing if it already
// exists, and returns it opened for read/write at the start of the file.
func Create(dir string, id uint64) (*Segment, error) {
	path := filepath.Join(dir, FileName(id))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}
	return &Segment{ID: id, path: path, f: f}, nil
}

// Open opens an existing `<id>.log` file for read/write, cursor at its
// current end of file (ready to append).
func Open(dir string, id uint64) (*Segment, error) {
	path := filepath.Join(dir, FileName(id))
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: seek %s: %w", path, err)
	}
	return &Segment{ID: id, path: path, f: f}, nil
}

// Size returns the current length of the segment file in bytes.
func (s *Segment) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("segment: stat %s: %w", s.path, err)
	}
	return fi.Size(), nil
}

// Seek positions the cursor at an absolute byte offset.
func (s *Segment) Seek(offset int64) error {
	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("segment: seek %s: %w", s.path, err)
	}
	return nil
}

// Append serializes e, writes its length prefix and payload at the
// current end of file, and returns the byte offset where the length
// prefix began. Append does not fsync; callers batch fsyncs separately.
func (s *Segment) Append(e store.Event) (int64, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		// Event derivation is total for well-formed values; a failure here
		// is a programming error, not a runtime condition callers can act on.
		panic(fmt.Sprintf("segment: event failed to marshal: %v", err))
	}
	startOffset, err := s.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("segment: seek-to-end %s: %w", s.path, err)
	}
	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := s.f.Write(header[:]); err != nil {
		return 0, fmt.Errorf("segment: write length %s: %w", s.path, err)
	}
	if _, err := s.f.Write(payload); err != nil {
		return 0, fmt.Errorf("segment: write payload %s: %w", s.path, err)
	}
	return startOffset, nil
}

// ReadNext reads the record at the current cursor. A short length prefix
// or short payload at the tail (unexpected EOF) is reported as (nil, nil,
// io.EOF)-equivalent via the ok=false return, never an error: it means a
// torn write from a crash mid-append, and replay must stop silently. A
// fully present but JSON-invalid payload returns ErrCorrupt.
func (s *Segment) ReadNext() (e store.Event, ok bool, err error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(s.f, header[:]); err != nil {
		return store.Event{}, false, nil
	}
	n := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(s.f, payload); err != nil {
		return store.Event{}, false, nil
	}
	if err := json.Unmarshal(payload, &e); err != nil {
		return store.Event{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return e, true, nil
}

// Fsync flushes the OS page cache for this segment's contents and
// metadata to stable storage.
func (s *Segment) Fsync() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("segment: fsync %s: %w", s.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *Segment) Close() error {
	return s.f.Close()
}
