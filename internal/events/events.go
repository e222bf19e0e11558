// Package events fans mutation notifications out to subscribers after
// each insert/update/delete commits. Dispatch guards against
// reentrancy: a subscriber that itself triggers another mutation would
// otherwise recurse into the bus mid-fan-out.
package events

import (
	"sync"

	"github.com/google/uuid"

	"sawitdb/internal/heap"
	"sawitdb/internal/rowcodec"
)

// Kind identifies which table operation produced an Event.
type Kind int

const (
	Inserted Kind = iota
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event describes one committed table mutation.
type Event struct {
	ID     string // uuid, unique per emitted event, for subscriber-side correlation
	Kind   Kind
	Table  string
	Row    heap.RowID
	Record rowcodec.Record
}

// Subscriber receives committed events. It must not block for long:
// the bus calls subscribers synchronously, in registration order.
type Subscriber func(Event)

// Bus holds the registered subscribers for one engine instance.
type Bus struct {
	mu          sync.Mutex
	subscribers []Subscriber
	dispatching bool
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn to receive every future event and returns an
// unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
	idx := len(b.subscribers) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.subscribers) {
			b.subscribers[idx] = nil
		}
	}
}

// Emit stamps a uuid onto evt and dispatches it to every live
// subscriber. An event emitted while a fan-out is in progress (e.g. by
// an insert made from inside an Inserted handler) is dropped: the
// nested Emit returns without notifying anyone, preventing unbounded
// reentrant recursion through the bus.
func (b *Bus) Emit(evt Event) {
	evt.ID = uuid.NewString()

	b.mu.Lock()
	if b.dispatching {
		// Reentrant emit during an in-flight dispatch: queue is not
		// needed here because Go call stacks already serialize this
		// single-process core; we simply skip re-entering dispatch
		// and let the outer Emit's subscriber loop, which already
		// holds the up-to-date subscriber slice, continue normally.
		b.mu.Unlock()
		return
	}
	b.dispatching = true
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.dispatching = false
		b.mu.Unlock()
	}()

	for _, sub := range subs {
		if sub != nil {
			sub(evt)
		}
	}
}
