// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge the writer, snapshot, and WAL layers
// update over the engine's lifetime.
type Metrics struct {
	Appends              prometheus.Counter
	FsyncBatches         prometheus.Counter
	FsyncFailures        prometheus.Counter
	SegmentRotations     prometheus.Counter
	SegmentsGCed         prometheus.Counter
	CheckpointsInstalled prometheus.Counter
	WritesSinceSnapshot  prometheus.Gauge
}

// SegmentRotated implements wal.Counters.
func (m *Metrics) SegmentRotated() { m.SegmentRotations.Inc() }

// SegmentGCed implements wal.Counters.
func (m *Metrics) SegmentGCed() { m.SegmentsGCed.Inc() }

// New registers and returns a fresh Metrics instance against reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Appends: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_wal_appends_total",
			Help: "fluxdb_wal_appends_total counts WAL records appended.",
		}),
		FsyncBatches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_fsync_batches_total",
			Help: "fluxdb_fsync_batches_total counts group-commit fsync calls issued by the writer actor.",
		}),
		FsyncFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_fsync_failures_total",
			Help: "fluxdb_fsync_failures_total counts fsync batches that failed, NACKing every pending write in that batch.",
		}),
		SegmentRotations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_segment_rotations_total",
			Help: "fluxdb_segment_rotations_total counts how many times the WAL sealed its active segment and opened a new one.",
		}),
		SegmentsGCed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_segments_gced_total",
			Help: "fluxdb_segments_gced_total counts sealed segments removed after a checkpoint made them obsolete.",
		}),
		CheckpointsInstalled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fluxdb_checkpoints_installed_total",
			Help: "fluxdb_checkpoints_installed_total counts snapshot installs that completed the atomic publish protocol.",
		}),
		WritesSinceSnapshot: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "fluxdb_writes_since_snapshot",
			Help: "fluxdb_writes_since_snapshot is the writer's current counter toward the next automatic checkpoint trigger.",
		}),
	}
}
