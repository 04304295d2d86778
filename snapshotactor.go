package fluxdb

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dsjohal14/fluxdb/internal/engine"
	"github.com/dsjohal14/fluxdb/internal/metrics"
)

type triggerAckCommand struct {
	reply chan error
}

// snapshotActor drives the checkpoint protocol (spec §4.8): a periodic
// timer plus an inbox for on-demand triggers. It never reads the Store
// directly; it always round-trips through the writer for a consistent
// payload, so capture is serialized against application.
type snapshotActor struct {
	db      *engine.Database
	writer  *writer
	metrics *metrics.Metrics
	log     zerolog.Logger

	period  time.Duration
	trigger chan struct{}
	ackCmds chan triggerAckCommand
	done    chan struct{}
}

func newSnapshotActor(db *engine.Database, w *writer, m *metrics.Metrics, log zerolog.Logger, period time.Duration, trigger chan struct{}) *snapshotActor {
	return &snapshotActor{
		db:      db,
		writer:  w,
		metrics: m,
		log:     log,
		period:  period,
		trigger: trigger,
		ackCmds: make(chan triggerAckCommand),
		done:    make(chan struct{}),
	}
}

func (s *snapshotActor) run() {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.checkpoint(); err != nil {
				s.log.Warn().Err(err).Msg("periodic checkpoint failed")
			}
		case <-s.trigger:
			if err := s.checkpoint(); err != nil {
				s.log.Warn().Err(err).Msg("triggered checkpoint failed")
			}
		case cmd := <-s.ackCmds:
			cmd.reply <- s.checkpoint()
		case <-s.done:
			return
		}
	}
}

// checkpoint runs one full cycle: request a payload from the writer,
// install the snapshot file, then ask the writer to GC the WAL segments
// it makes obsolete. GC is routed back through the writer rather than run
// here directly, since it touches WAL state the writer owns exclusively.
func (s *snapshotActor) checkpoint() error {
	reply := make(chan checkpointPayloadResult, 1)
	s.writer.cmds <- checkpointPayloadCommand{reply: reply}
	result := <-reply
	if result.err != nil {
		return result.err
	}
	if err := s.db.InstallSnapshot(result.snap); err != nil {
		return err
	}

	gcReply := make(chan error, 1)
	s.writer.cmds <- gcCommand{upto: result.snap.LSN, reply: gcReply}
	if err := <-gcReply; err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.CheckpointsInstalled.Inc()
	}
	s.log.Info().Str("lsn", result.snap.LSN.String()).Int("keys", len(result.snap.Data)).Msg("checkpoint installed")
	return nil
}

// triggerNowWithAck runs one checkpoint cycle and returns its error.
func (s *snapshotActor) triggerNowWithAck() error {
	reply := make(chan error, 1)
	s.ackCmds <- triggerAckCommand{reply: reply}
	return <-reply
}

func (s *snapshotActor) close() {
	close(s.done)
}
