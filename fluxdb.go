// Package fluxdb implements an embedded, single-node, durable key/value
// document store keyed by byte strings and valued by arbitrary
// tree-structured JSON-like values. Writes are ordered through a single
// writer actor, persisted to a write-ahead log, applied to an in-memory
// index, and periodically checkpointed via atomic snapshots so recovery
// only replays the WAL suffix newer than the snapshot.
package fluxdb

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dsjohal14/fluxdb/internal/engine"
	"github.com/dsjohal14/fluxdb/internal/metrics"
	"github.com/dsjohal14/fluxdb/internal/obs"
)

// Options configures Open. Zero-value Options apply spec's documented
// defaults.
type Options struct {
	SegmentSizeLimit       int64
	FsyncInterval          time.Duration
	SnapshotInterval       time.Duration
	SnapshotEveryWrites    uint64
	CommandChanCapacity    int
	SubscriberChanCapacity int
	// Registerer is the Prometheus registry new metrics are added to. A
	// nil Registerer gets a fresh *prometheus.Registry, retrievable via
	// DB.Registry for wiring into an ops HTTP surface.
	Registerer *prometheus.Registry
	// Logger is the base logger actors attach their component tag to. A
	// nil Logger falls back to obs.Logger("fluxdb").
	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.SegmentSizeLimit <= 0 {
		o.SegmentSizeLimit = 64 << 20
	}
	if o.FsyncInterval <= 0 {
		o.FsyncInterval = 5 * time.Millisecond
	}
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = 30 * time.Second
	}
	if o.SnapshotEveryWrites == 0 {
		o.SnapshotEveryWrites = 1000
	}
	if o.CommandChanCapacity <= 0 {
		o.CommandChanCapacity = 32
	}
	if o.SubscriberChanCapacity <= 0 {
		o.SubscriberChanCapacity = 100
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	return o
}

// DB is the open engine: recovery has already run, and the writer,
// reader, snapshot, and notify actors are live.
type DB struct {
	opts Options

	writer        *writer
	reader        *readerActor
	snapshotActor *snapshotActor
	notify        *notifyActor

	db      *engine.Database
	metrics *metrics.Metrics

	group  *errgroup.Group
	closed chan struct{}
}

// Open recovers the engine rooted at dir (snapshot load + WAL suffix
// replay) and starts its actors.
func Open(dir string, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if opts.Logger == nil {
		l := obs.Logger("fluxdb")
		opts.Logger = &l
	}

	engineDB, err := engine.Open(dir, opts.SegmentSizeLimit)
	if err != nil {
		return nil, fmt.Errorf("fluxdb: open %s: %w", dir, err)
	}

	m := metrics.New(opts.Registerer)
	engineDB.SetCounters(m)

	notify := newNotifyActor(opts.SubscriberChanCapacity)
	snapshotTrigger := make(chan struct{}, 1)
	w := newWriter(engineDB, m, notify, opts.Logger.With().Str("actor", "writer").Logger(),
		opts.CommandChanCapacity, opts.FsyncInterval, opts.SnapshotEveryWrites, snapshotTrigger)
	reader := newReaderActor(engineDB.Store, opts.CommandChanCapacity)
	snap := newSnapshotActor(engineDB, w, m, opts.Logger.With().Str("actor", "snapshot").Logger(),
		opts.SnapshotInterval, snapshotTrigger)

	group := &errgroup.Group{}
	group.Go(func() error { w.run(); return nil })
	group.Go(func() error { reader.run(); return nil })
	group.Go(func() error { snap.run(); return nil })
	group.Go(func() error { notify.run(); return nil })

	return &DB{
		opts:          opts,
		writer:        w,
		reader:        reader,
		snapshotActor: snap,
		notify:        notify,
		db:            engineDB,
		metrics:       m,
		group:         group,
		closed:        make(chan struct{}),
	}, nil
}

// Handle returns the client-facing façade for this DB.
func (d *DB) Handle() *Handle {
	return &Handle{db: d}
}

// Registry returns the Prometheus registry this DB's metrics were
// registered against.
func (d *DB) Registry() *prometheus.Registry {
	return d.opts.Registerer
}

// Closed reports whether Close has been called.
func (d *DB) Closed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// Close flushes a final checkpoint, stops every actor, and releases the
// WAL's file handles.
func (d *DB) Close() error {
	close(d.closed)

	if err := d.snapshotActor.triggerNowWithAck(); err != nil {
		d.opts.Logger.Warn().Err(err).Msg("final checkpoint on close failed")
	}

	d.writer.close()
	d.reader.close()
	d.snapshotActor.close()
	d.notify.close()
	_ = d.group.Wait()

	return d.db.Close()
}
