package fluxdb

import (
	"context"
	"errors"

	"github.com/dsjohal14/fluxdb/internal/store"
)

// ErrClosed is returned by Handle methods once the database has been
// closed.
var ErrClosed = errors.New("fluxdb: closed")

// ErrNotFound is returned by Get when the key has no live document.
var ErrNotFound = errors.New("fluxdb: not found")

// Document is the value and per-key version returned by Get.
type Document = store.Document

// Handle is the external façade: every client operation is a typed
// request/response round trip against the writer, reader, or snapshot
// actor, per spec §4's "Handle / command dispatch" component.
type Handle struct {
	db *DB
}

// Set durably stores value at key, returning once the write is both
// fsynced and applied.
func (h *Handle) Set(ctx context.Context, key string, value any) error {
	reply := make(chan error, 1)
	cmd := setCommand{key: key, value: value, reply: reply}
	return h.sendWrite(ctx, cmd, reply)
}

// Delete durably removes key, returning once the write is both fsynced
// and applied. Deleting an absent key still produces a versioned Event.
func (h *Handle) Delete(ctx context.Context, key string) error {
	reply := make(chan error, 1)
	cmd := deleteCommand{key: key, reply: reply}
	return h.sendWrite(ctx, cmd, reply)
}

// Patch deep-merges delta into key's current value (per store.Merge) and
// returns once the write is both fsynced and applied.
func (h *Handle) Patch(ctx context.Context, key string, delta any) error {
	reply := make(chan error, 1)
	cmd := patchCommand{key: key, delta: delta, reply: reply}
	return h.sendWrite(ctx, cmd, reply)
}

func (h *Handle) sendWrite(ctx context.Context, cmd writeCommand, reply chan error) error {
	select {
	case h.db.writer.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.db.closed:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get reads key's current Document. ErrNotFound is returned if the key is
// absent.
func (h *Handle) Get(ctx context.Context, key string) (Document, error) {
	reply := make(chan getResult, 1)
	select {
	case h.db.reader.cmds <- getCommand{key: key, reply: reply}:
	case <-ctx.Done():
		return Document{}, ctx.Err()
	case <-h.db.closed:
		return Document{}, ErrClosed
	}
	select {
	case result := <-reply:
		if !result.found {
			return Document{}, ErrNotFound
		}
		return result.doc, nil
	case <-ctx.Done():
		return Document{}, ctx.Err()
	}
}

// Snapshot triggers an immediate checkpoint and waits for it to install
// (or fail).
func (h *Handle) Snapshot(ctx context.Context) error {
	type result struct{ err error }
	done := make(chan result, 1)
	go func() { done <- result{err: h.db.snapshotActor.triggerNowWithAck()} }()
	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers for every Event applied to key from this point
// forward. The returned channel is delivered in per-key application
// order; an event that arrives while the channel's buffer is full is
// dropped for this subscriber. Unsubscribe releases it.
func (h *Handle) Subscribe(key string) chan store.Event {
	return h.db.notify.subscribe(key)
}

// Unsubscribe removes a subscription previously returned by Subscribe.
func (h *Handle) Unsubscribe(key string, ch chan store.Event) {
	h.db.notify.unsubscribe(key, ch)
}

// FailNextFsync arms a one-shot fault injection for tests: the next
// group-commit fsync will fail, NACKing every write in that batch.
func (h *Handle) FailNextFsync(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	cmd := faultInjectCommand{reply: reply}
	select {
	case h.db.writer.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.db.closed:
		return ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
