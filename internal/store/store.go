// Package store implements the in-memory key/value index: pure Event
// derivation from put/delete/patch, and the single Event mutator that
// applies durable records to the live map.
package store

import (
	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

// Document is a key's current value and its per-key version counter.
type Document struct {
	Value   any    `json:"value"`
	Version uint64 `json:"version"`
}

// Event is the canonical on-the-wire record: the single source of truth
// for durability and for notification. New == nil denotes a delete.
type Event struct {
	Key     string `json:"key"`
	Old     any    `json:"old"`
	New     any    `json:"new"`
	Version uint64 `json:"version"`
}

// Store is the live key -> Document map. The map itself is an immutable
// structure swapped under an atomic pointer: readers never block on a
// mutation in progress, and a reader's pointer load always sees a fully
// applied prior state, never a partially-applied one.
type Store struct {
	v atomic.Value // *immutable.SortedMap[string, Document]
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.v.Store(&immutable.SortedMap[string, Document]{})
	return s
}

func (s *Store) current() *immutable.SortedMap[string, Document] {
	return s.v.Load().(*immutable.SortedMap[string, Document])
}

// Get returns the Document for key, if present.
func (s *Store) Get(key string) (Document, bool) {
	return s.current().Get(key)
}

// Count returns the number of live keys.
func (s *Store) Count() int {
	return s.current().Len()
}

// Range calls fn for every live key/Document pair. fn must not mutate s.
func (s *Store) Range(fn func(key string, doc Document) bool) {
	it := s.current().Iterator()
	for !it.Done() {
		k, v, _ := it.Next()
		if !fn(k, v) {
			return
		}
	}
}

func currentValue(doc Document, ok bool) any {
	if !ok {
		return nil
	}
	return doc.Value
}

func nextVersion(doc Document, ok bool) uint64 {
	if !ok {
		return 1
	}
	return doc.Version + 1
}

// Put derives the Event for setting key to value, without mutating s.
func (s *Store) Put(key string, value any) Event {
	doc, ok := s.Get(key)
	return Event{
		Key:     key,
		Old:     currentValue(doc, ok),
		New:     value,
		Version: nextVersion(doc, ok),
	}
}

// Delete derives the Event for removing key, without mutating s.
func (s *Store) Delete(key string) Event {
	doc, ok := s.Get(key)
	return Event{
		Key:     key,
		Old:     currentValue(doc, ok),
		New:     nil,
		Version: nextVersion(doc, ok),
	}
}

// Patch derives the Event for deep-merging delta into key's current
// value, without mutating s.
func (s *Store) Patch(key string, delta any) Event {
	doc, ok := s.Get(key)
	old := currentValue(doc, ok)
	return Event{
		Key:     key,
		Old:     old,
		New:     Merge(old, delta),
		Version: nextVersion(doc, ok),
	}
}

// ApplyEvent is the sole mutator: it installs e's effect into the live
// map. Callers (the writer actor, or recovery) must serialize calls to
// ApplyEvent; Store itself does not lock, since only one goroutine is
// ever permitted to mutate it at a time.
func (s *Store) ApplyEvent(e Event) {
	m := s.current()
	if e.New == nil {
		m = m.Delete(e.Key)
	} else {
		m = m.Set(e.Key, Document{Value: e.New, Version: e.Version})
	}
	s.v.Store(m)
}

// Merge implements patch's deep JSON object merge: when both target and
// delta are objects, each key of delta is recursively merged into
// target's entry (missing keys on target's side start from nil).
// Anything else overwrites target wholesale, including arrays, which are
// treated as scalars.
func Merge(target, delta any) any {
	deltaObj, deltaIsObj := delta.(map[string]any)
	if !deltaIsObj {
		return delta
	}
	targetObj, targetIsObj := target.(map[string]any)
	if !targetIsObj {
		targetObj = nil
	}
	merged := make(map[string]any, len(targetObj)+len(deltaObj))
	for k, v := range targetObj {
		merged[k] = v
	}
	for k, dv := range deltaObj {
		merged[k] = Merge(merged[k], dv)
	}
	return merged
}
