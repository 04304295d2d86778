// Package wal implements the write-ahead log: a directory of segments,
// rotation on a size threshold, append-with-LSN, replay from an LSN, and
// garbage collection of segments made obsolete by a snapshot.
package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/dsjohal14/fluxdb/internal/lsn"
	"github.com/dsjohal14/fluxdb/internal/segment"
	"github.com/dsjohal14/fluxdb/internal/store"
)

var segmentNamePattern = regexp.MustCompile(`^(\d+)\.log$`)

// Counters receives rotation/GC events as they happen, so callers (the
// engine) can wire Prometheus counters without the wal package importing
// a metrics library directly.
type Counters interface {
	SegmentRotated()
	SegmentGCed()
}

// WAL owns the active segment and tracks the next segment id to allocate
// on rotation. It is meant to be driven by a single goroutine (the writer
// actor); it does not lock internally.
type WAL struct {
	dir              string
	segmentSizeLimit int64
	counters         Counters

	active        *segment.Segment
	activeID      uint64
	nextSegmentID uint64
}

// SetCounters installs the Counters sink used for rotation/GC events.
func (w *WAL) SetCounters(c Counters) {
	w.counters = c
}

// Open ensures dir exists, discovers existing `<id>.log` segments, and
// opens the highest-numbered one as active (or creates segment 0 if the
// directory is empty).
func Open(dir string, segmentSizeLimit int64) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}
	ids, err := ListSegmentIDs(dir)
	if err != nil {
		return nil, err
	}
	w := &WAL{dir: dir, segmentSizeLimit: segmentSizeLimit}
	if len(ids) == 0 {
		seg, err := segment.Create(dir, 0)
		if err != nil {
			return nil, err
		}
		w.active = seg
		w.activeID = 0
		w.nextSegmentID = 1
		return w, nil
	}
	highest := ids[len(ids)-1]
	seg, err := segment.Open(dir, highest)
	if err != nil {
		return nil, err
	}
	w.active = seg
	w.activeID = highest
	w.nextSegmentID = highest + 1
	return w, nil
}

// ListSegmentIDs returns the sorted ids of every `<id>.log` file in dir.
func ListSegmentIDs(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: readdir %s: %w", dir, err)
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CurrentLSN returns the address of the next record that Append would
// produce.
func (w *WAL) CurrentLSN() (lsn.LSN, error) {
	size, err := w.active.Size()
	if err != nil {
		return lsn.LSN{}, err
	}
	return lsn.LSN{Segment: w.activeID, Offset: uint64(size)}, nil
}

// recordSize returns the exact number of bytes Append would write for e,
// so rotation decisions are made before the record is ever written.
func recordSize(e store.Event) int64 {
	payload, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("wal: event failed to marshal: %v", err))
	}
	return int64(4 + len(payload))
}

// Append writes e to the active segment, rotating first if it would
// exceed the configured size limit, and returns the LSN of the new
// record. Append does not fsync.
func (w *WAL) Append(e store.Event) (lsn.LSN, error) {
	size, err := w.active.Size()
	if err != nil {
		return lsn.LSN{}, err
	}
	recSize := recordSize(e)
	if size+recSize > w.segmentSizeLimit {
		if err := w.rotate(); err != nil {
			return lsn.LSN{}, err
		}
	}
	offset, err := w.active.Append(e)
	if err != nil {
		return lsn.LSN{}, err
	}
	return lsn.LSN{Segment: w.activeID, Offset: uint64(offset)}, nil
}

// rotate seals the active segment (fsyncing it so every record it holds
// is durable before it stops accepting writes) and opens a fresh active
// segment.
func (w *WAL) rotate() error {
	if err := w.active.Fsync(); err != nil {
		return fmt.Errorf("wal: rotate fsync sealed segment %d: %w", w.activeID, err)
	}
	newID := w.nextSegmentID
	newSeg, err := segment.Create(w.dir, newID)
	if err != nil {
		return err
	}
	w.active = newSeg
	w.activeID = newID
	w.nextSegmentID++
	if w.counters != nil {
		w.counters.SegmentRotated()
	}
	return nil
}

// FsyncActive fsyncs only the currently active segment, per the batch
// fsync step of the writer's group-commit loop.
func (w *WAL) FsyncActive() error {
	return w.active.Fsync()
}

// Iterator produces Events starting at from, single-pass and restartable
// only via a fresh call to ReplayFrom.
type Iterator struct {
	dir      string
	cur      *segment.Segment
	curID    uint64
	activeID uint64
}

// ReplayFrom opens from.Segment, seeks to from.Offset, and returns an
// iterator that walks forward through sealed segments into the active
// one, stopping at the first torn or absent record on the active
// segment.
func (w *WAL) ReplayFrom(from lsn.LSN) (*Iterator, error) {
	seg, err := segment.Open(w.dir, from.Segment)
	if err != nil {
		return nil, err
	}
	if err := seg.Seek(int64(from.Offset)); err != nil {
		seg.Close()
		return nil, err
	}
	return &Iterator{dir: w.dir, cur: seg, curID: from.Segment, activeID: w.activeID}, nil
}

// Next returns the next Event, or ok=false when the iterator is
// exhausted (end of the active segment, or a torn tail).
func (it *Iterator) Next() (e store.Event, ok bool, err error) {
	for {
		e, ok, err = it.cur.ReadNext()
		if err != nil {
			return store.Event{}, false, err
		}
		if ok {
			return e, true, nil
		}
		if it.curID >= it.activeID {
			return store.Event{}, false, nil
		}
		it.cur.Close()
		it.curID++
		next, err := segment.Open(it.dir, it.curID)
		if err != nil {
			return store.Event{}, false, err
		}
		it.cur = next
	}
}

// Close releases the iterator's open segment handle.
func (it *Iterator) Close() error {
	return it.cur.Close()
}

// GC deletes every sealed segment with id strictly less than upto.Segment.
// It never deletes the active segment, and is idempotent if a file is
// already gone. Callers must only invoke GC after the snapshot that
// produced upto has been durably installed (fsynced file + renamed +
// fsynced directory), per the snapshot install protocol.
func (w *WAL) GC(upto lsn.LSN) error {
	ids, err := ListSegmentIDs(w.dir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id >= upto.Segment || id == w.activeID {
			continue
		}
		path := filepath.Join(w.dir, segment.FileName(id))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wal: gc remove %s: %w", path, err)
		}
		if w.counters != nil {
			w.counters.SegmentGCed()
		}
	}
	return nil
}

// Close closes the active segment.
func (w *WAL) Close() error {
	return w.active.Close()
}
