package fluxdb

import "github.com/dsjohal14/fluxdb/internal/store"

type getCommand struct {
	key   string
	reply chan getResult
}

type getResult struct {
	doc   store.Document
	found bool
}

// readerActor services Get commands concurrently against the shared
// Store. Multiple readerActor.run goroutines may be started against the
// same command channel, since the Store itself handles its own
// concurrency (spec §4.7: readers run concurrently with each other and
// with the writer's pre-durability path).
type readerActor struct {
	s    *store.Store
	cmds chan getCommand
}

func newReaderActor(s *store.Store, cmdCapacity int) *readerActor {
	return &readerActor{s: s, cmds: make(chan getCommand, cmdCapacity)}
}

func (r *readerActor) run() {
	for cmd := range r.cmds {
		doc, ok := r.s.Get(cmd.key)
		cmd.reply <- getResult{doc: doc, found: ok}
	}
}

func (r *readerActor) close() {
	close(r.cmds)
}
