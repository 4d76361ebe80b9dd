package dispatch

import (
	"log/slog"
	"sync"

	"github.com/beamlink/beamcast/internal/protocol"
)

// Handler consumes one inbound envelope.
type Handler func(*protocol.Envelope)

type entry struct {
	fn Handler
	id uint64
}

// Subscription identifies one registration so it can be removed later.
// The zero value matches nothing.
type Subscription struct {
	key string
	id  uint64
}

// Dispatcher maps message type keys to interested callbacks and delivers
// inbound envelopes to them. Callbacks registered under one key run in
// registration order, synchronously with respect to each other; the caller
// decides which goroutine drives Dispatch.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[string][]entry
	next uint64
}

func New() *Dispatcher {
	return &Dispatcher{
		subs: make(map[string][]entry),
	}
}

// Subscribe registers fn under key and returns a handle for Unsubscribe.
// Every call is its own registration: distinct callbacks under one key all
// fire, even when they share a code location.
func (d *Dispatcher) Subscribe(key string, fn Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	d.subs[key] = append(d.subs[key], entry{fn: fn, id: d.next})
	return Subscription{key: key, id: d.next}
}

// Unsubscribe removes one registration. Removing it again is a no-op;
// removing the last registration for a key removes the key.
func (d *Dispatcher) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.subs[sub.key]
	for i, e := range entries {
		if e.id == sub.id {
			d.subs[sub.key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(d.subs[sub.key]) == 0 {
		delete(d.subs, sub.key)
	}
}

// UnsubscribeAll clears every callback registered under key.
func (d *Dispatcher) UnsubscribeAll(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, key)
}

// Dispatch invokes every callback registered under the envelope's type key.
// Unknown types are ignored.
func (d *Dispatcher) Dispatch(env *protocol.Envelope) {
	d.mu.RLock()
	entries := make([]entry, len(d.subs[env.ID]))
	copy(entries, d.subs[env.ID])
	d.mu.RUnlock()

	if len(entries) == 0 {
		slog.Debug("no subscribers for message", "type", env.ID)
		return
	}
	for _, e := range entries {
		e.fn(env)
	}
}
