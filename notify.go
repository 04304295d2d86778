package fluxdb

import "github.com/dsjohal14/fluxdb/internal/store"

type subscribeCommand struct {
	key   string
	reply chan chan store.Event
}

type unsubscribeCommand struct {
	key string
	ch  chan store.Event
}

// notifyActor owns the subscriber registry (spec §4.9): a mapping from
// key to the set of subscribers registered against it. dispatch is called
// synchronously from inside the writer's post-durability loop, so
// per-key delivery order equals per-key application order.
type notifyActor struct {
	subscriberChanCapacity int
	subs                   map[string]map[chan store.Event]struct{}

	subscribeCmds   chan subscribeCommand
	unsubscribeCmds chan unsubscribeCommand
	dispatchCmds    chan store.Event
	done            chan struct{}
}

func newNotifyActor(subscriberChanCapacity int) *notifyActor {
	return &notifyActor{
		subscriberChanCapacity: subscriberChanCapacity,
		subs:                   make(map[string]map[chan store.Event]struct{}),
		subscribeCmds:          make(chan subscribeCommand),
		unsubscribeCmds:        make(chan unsubscribeCommand),
		dispatchCmds:           make(chan store.Event, 256),
		done:                   make(chan struct{}),
	}
}

// run owns the subscriber registry exclusively; all registry mutation and
// all dispatch happens on this single goroutine.
func (n *notifyActor) run() {
	for {
		select {
		case cmd := <-n.subscribeCmds:
			ch := make(chan store.Event, n.subscriberChanCapacity)
			if n.subs[cmd.key] == nil {
				n.subs[cmd.key] = make(map[chan store.Event]struct{})
			}
			n.subs[cmd.key][ch] = struct{}{}
			cmd.reply <- ch
		case cmd := <-n.unsubscribeCmds:
			delete(n.subs[cmd.key], cmd.ch)
		case e := <-n.dispatchCmds:
			n.deliver(e)
		case <-n.done:
			return
		}
	}
}

// deliver attempts a non-blocking send to every subscriber of e.Key.
// Per the resolved backpressure policy: a full channel drops this event
// for that one subscriber only (the subscription stays registered); a
// subscriber can only be removed via explicit Unsubscribe, since Go
// channels give no portable way to detect "receiver gone" short of that.
func (n *notifyActor) deliver(e store.Event) {
	for ch := range n.subs[e.Key] {
		select {
		case ch <- e:
		default:
		}
	}
}

// dispatch is called from the writer's post-durability loop. It queues e
// on a 256-slot channel that notify drains on its own goroutine; it
// blocks only while that channel is full.
func (n *notifyActor) dispatch(e store.Event) {
	n.dispatchCmds <- e
}

// subscribe registers a new subscriber for key and returns its receive
// channel.
func (n *notifyActor) subscribe(key string) chan store.Event {
	reply := make(chan chan store.Event)
	n.subscribeCmds <- subscribeCommand{key: key, reply: reply}
	return <-reply
}

// unsubscribe removes a previously registered subscriber.
func (n *notifyActor) unsubscribe(key string, ch chan store.Event) {
	n.unsubscribeCmds <- unsubscribeCommand{key: key, ch: ch}
}

func (n *notifyActor) close() {
	close(n.done)
}
