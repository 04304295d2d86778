package fluxdb

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/fluxdb/internal/engine"
	"github.com/dsjohal14/fluxdb/internal/lsn"
	"github.com/dsjohal14/fluxdb/internal/metrics"
	"github.com/dsjohal14/fluxdb/internal/snapshot"
	"github.com/dsjohal14/fluxdb/internal/store"
)

// writeCommand is the tagged union of messages the writer actor accepts.
type writeCommand interface {
	isWriteCommand()
}

type setCommand struct {
	key   string
	value any
	reply chan error
}

type deleteCommand struct {
	key   string
	reply chan error
}

type patchCommand struct {
	key   string
	delta any
	reply chan error
}

type checkpointPayloadCommand struct {
	reply chan checkpointPayloadResult
}

type checkpointPayloadResult struct {
	snap snapshot.Snapshot
	err  error
}

type faultInjectCommand struct {
	reply chan struct{}
}

// gcCommand asks the writer to garbage-collect WAL segments made obsolete
// by a durably-installed snapshot. GC must run on the writer's goroutine:
// it reads WAL state (the active segment id) that only the writer mutates
// (via rotation), per spec §5's single-writer ownership of the WAL.
type gcCommand struct {
	upto  lsn.LSN
	reply chan error
}

func (setCommand) isWriteCommand()              {}
func (deleteCommand) isWriteCommand()            {}
func (patchCommand) isWriteCommand()             {}
func (checkpointPayloadCommand) isWriteCommand() {}
func (faultInjectCommand) isWriteCommand()       {}
func (gcCommand) isWriteCommand()                {}

// pendingWrite is a write that has been appended to the WAL (pre-durable)
// but not yet applied to the Store or ACKed to its caller.
type pendingWrite struct {
	event store.Event
	reply chan error
}

// writer is the single-writer actor from spec §4.6: it owns the Database
// exclusively, batches fsyncs on a timer, and only applies/ACKs writes
// once that batch's fsync has succeeded.
type writer struct {
	db      *engine.Database
	metrics *metrics.Metrics
	notify  *notifyActor
	log     zerolog.Logger

	fsyncInterval       time.Duration
	snapshotEveryWrites uint64
	snapshotTrigger     chan struct{}

	cmds                chan writeCommand
	pending             []pendingWrite
	writesSinceSnapshot uint64
}

func newWriter(db *engine.Database, m *metrics.Metrics, notify *notifyActor, log zerolog.Logger, cmdCapacity int, fsyncInterval time.Duration, snapshotEveryWrites uint64, snapshotTrigger chan struct{}) *writer {
	return &writer{
		db:                  db,
		metrics:             m,
		notify:              notify,
		log:                 log,
		fsyncInterval:       fsyncInterval,
		snapshotEveryWrites: snapshotEveryWrites,
		snapshotTrigger:     snapshotTrigger,
		cmds:                make(chan writeCommand, cmdCapacity),
	}
}

// run is the writer's event loop. It exits when cmds is closed.
func (w *writer) run() {
	ticker := time.NewTicker(w.fsyncInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-w.cmds:
			if !ok {
				return
			}
			w.handle(cmd)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *writer) handle(cmd writeCommand) {
	switch c := cmd.(type) {
	case setCommand:
		w.acceptPreDurable(c.reply, func() (store.Event, error) { return w.db.Put(c.key, c.value) })
	case deleteCommand:
		w.acceptPreDurable(c.reply, func() (store.Event, error) { return w.db.Delete(c.key) })
	case patchCommand:
		w.acceptPreDurable(c.reply, func() (store.Event, error) { return w.db.Patch(c.key, c.delta) })
	case checkpointPayloadCommand:
		snap, err := w.db.CheckpointPayload()
		c.reply <- checkpointPayloadResult{snap: snap, err: err}
	case faultInjectCommand:
		w.db.FailNextFsync()
		c.reply <- struct{}{}
	case gcCommand:
		c.reply <- w.db.GC(c.upto)
	}
}

// acceptPreDurable runs the pre-durability half of a write command: on
// success the event joins the pending queue without replying yet; on
// error the caller is NACKed immediately.
func (w *writer) acceptPreDurable(reply chan error, derive func() (store.Event, error)) {
	event, err := derive()
	if err != nil {
		reply <- err
		return
	}
	if w.metrics != nil {
		w.metrics.Appends.Inc()
	}
	w.pending = append(w.pending, pendingWrite{event: event, reply: reply})
}

// flush is the fsync-tick half of the loop: group-commit fsync, then
// apply and ACK every pending write in FIFO order.
func (w *writer) flush() {
	if len(w.pending) == 0 {
		return
	}
	if w.metrics != nil {
		w.metrics.FsyncBatches.Inc()
	}
	if err := w.db.FsyncWAL(); err != nil {
		if w.metrics != nil {
			w.metrics.FsyncFailures.Inc()
		}
		w.log.Warn().Err(err).Int("batch_size", len(w.pending)).Msg("fsync batch failed, nacking pending writes")
		for _, pw := range w.pending {
			pw.reply <- err
		}
		w.pending = w.pending[:0]
		return
	}
	for _, pw := range w.pending {
		w.db.ExecutePostDurability(pw.event)
		pw.reply <- nil
		if w.notify != nil {
			w.notify.dispatch(pw.event)
		}
		w.writesSinceSnapshot++
	}
	w.pending = w.pending[:0]

	if w.metrics != nil {
		w.metrics.WritesSinceSnapshot.Set(float64(w.writesSinceSnapshot))
	}
	if w.snapshotEveryWrites > 0 && w.writesSinceSnapshot >= w.snapshotEveryWrites {
		w.writesSinceSnapshot = 0
		select {
		case w.snapshotTrigger <- struct{}{}:
		default:
		}
	}
}

// close shuts down the writer actor's command channel; in-flight pending
// writes are left un-replied, matching the documented shutdown semantics
// (a dropped reply channel does not affect durability).
func (w *writer) close() {
	close(w.cmds)
}
