// Package engine composes the Store, WAL, and Snapshot protocol into the
// Database: the pre-durability/post-durability split the writer actor
// drives, plus recovery at open.
package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/dsjohal14/fluxdb/internal/lsn"
	"github.com/dsjohal14/fluxdb/internal/snapshot"
	"github.com/dsjohal14/fluxdb/internal/store"
	"github.com/dsjohal14/fluxdb/internal/wal"
)

// Database holds the shared Store and the writer-exclusive WAL, and
// coordinates recovery at open. The writer actor is the only caller of
// the write-side methods; Store reads may happen concurrently from any
// goroutine via Store itself.
type Database struct {
	Store *store.Store

	wal           *wal.WAL
	root          string
	failNextFsync atomic.Bool
}

// Open performs recovery — load the latest snapshot (if any), then
// replay every WAL record from the snapshot's LSN (or zero) — and
// returns a ready Database. root is the directory that holds `wal/`; the
// snapshot file `<root>.snapshot` sits beside root, not inside it.
func Open(root string, segmentSizeLimit int64) (*Database, error) {
	walDir := filepath.Join(root, "wal")
	w, err := wal.Open(walDir, segmentSizeLimit)
	if err != nil {
		return nil, err
	}

	s := store.New()
	from := lsn.Zero()
	if snap, ok, err := snapshot.Load(root); err != nil {
		return nil, err
	} else if ok {
		for k, doc := range snap.Data {
			s.ApplyEvent(store.Event{Key: k, New: doc.Value, Version: doc.Version})
		}
		from = snap.LSN
	}

	it, err := w.ReplayFrom(from)
	if err != nil {
		return nil, fmt.Errorf("engine: open replay from %s: %w", from, err)
	}
	defer it.Close()
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("engine: recovery replay: %w", err)
		}
		if !ok {
			break
		}
		s.ApplyEvent(e)
	}

	return &Database{Store: s, wal: w, root: root}, nil
}

// Put is the pre-durability half of a set: derive the Event against the
// shared Store and append it to the WAL, without applying it or
// fsyncing.
func (d *Database) Put(key string, value any) (store.Event, error) {
	e := d.Store.Put(key, value)
	if _, err := d.wal.Append(e); err != nil {
		return store.Event{}, err
	}
	return e, nil
}

// Delete is the pre-durability half of a delete.
func (d *Database) Delete(key string) (store.Event, error) {
	e := d.Store.Delete(key)
	if _, err := d.wal.Append(e); err != nil {
		return store.Event{}, err
	}
	return e, nil
}

// Patch is the pre-durability half of a deep-merge patch.
func (d *Database) Patch(key string, delta any) (store.Event, error) {
	e := d.Store.Patch(key, delta)
	if _, err := d.wal.Append(e); err != nil {
		return store.Event{}, err
	}
	return e, nil
}

// ExecutePostDurability applies e to the Store. Callers must only invoke
// this after the WAL segment containing e has been fsynced: this is the
// engine's central correctness property.
func (d *Database) ExecutePostDurability(e store.Event) {
	d.Store.ApplyEvent(e)
}

// FailNextFsync arms a one-shot fault injection: the next call to
// FsyncWAL returns an error instead of fsyncing, then clears itself.
func (d *Database) FailNextFsync() {
	d.failNextFsync.Store(true)
}

// FsyncWAL fsyncs the active WAL segment, honoring a pending fault
// injection exactly once.
func (d *Database) FsyncWAL() error {
	if d.failNextFsync.CompareAndSwap(true, false) {
		return fmt.Errorf("engine: injected fsync failure")
	}
	return d.wal.FsyncActive()
}

// CheckpointPayload captures a Snapshot of the current Store contents
// paired with the WAL's current LSN. Callers (the writer actor) must
// invoke this from the same single-threaded context that drives Put/
// Delete/Patch, so no WAL record can be produced between reading the LSN
// and returning the payload.
func (d *Database) CheckpointPayload() (snapshot.Snapshot, error) {
	lsnNow, err := d.wal.CurrentLSN()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	data := make(map[string]store.Document)
	d.Store.Range(func(key string, doc store.Document) bool {
		data[key] = doc
		return true
	})
	return snapshot.Snapshot{Data: data, LSN: lsnNow}, nil
}

// InstallSnapshot runs the snapshot install protocol (write temp, fsync,
// rename, fsync parent dir). It only touches the snapshot file, never the
// WAL, so it is safe to call from outside the writer actor's goroutine.
func (d *Database) InstallSnapshot(snap snapshot.Snapshot) error {
	return snapshot.Install(d.root, snap)
}

// GC garbage-collects WAL segments made obsolete by a durably-installed
// snapshot. Callers must only invoke GC from the writer actor's goroutine:
// it reads and compares against WAL state (the active segment id) that the
// writer concurrently mutates via rotation.
func (d *Database) GC(upto lsn.LSN) error {
	return d.wal.GC(upto)
}

// Close releases the WAL's active segment handle.
func (d *Database) Close() error {
	return d.wal.Close()
}

// SetCounters installs a wal.Counters sink (e.g. *metrics.Metrics) for
// rotation/GC instrumentation.
func (d *Database) SetCounters(c wal.Counters) {
	d.wal.SetCounters(c)
}
