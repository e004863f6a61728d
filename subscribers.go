package driftsync

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SyncListener receives the outcome of every completed sync pass,
// success or failure.
type SyncListener func(SyncResult)

// subscriberHub fans sync results out to registered listeners in
// registration order. Delivery is synchronous; a panicking listener is
// logged and skipped so one bad subscriber cannot abort the loop.
type subscriberHub struct {
	mu   sync.Mutex
	subs []hubEntry
}

type hubEntry struct {
	id string
	fn SyncListener
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{}
}

// Subscribe registers a listener and returns its id.
func (h *subscriberHub) Subscribe(fn SyncListener) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.subs = append(h.subs, hubEntry{id: id, fn: fn})
	h.mu.Unlock()
	return id
}

// Unsubscribe removes the listener with the given id.
func (h *subscriberHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if sub.id == id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

// Notify delivers the result to every listener in registration order.
func (h *subscriberHub) Notify(result SyncResult) {
	h.mu.Lock()
	subs := make([]hubEntry, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, sub := range subs {
		h.notifyOne(sub, result)
	}
}

func (h *subscriberHub) notifyOne(sub hubEntry, result SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync listener panicked", "subscriber", sub.id, "panic", r)
		}
	}()
	sub.fn(result)
}

// Clear drops all listeners.
func (h *subscriberHub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = nil
}

// Count returns the number of registered listeners.
func (h *subscriberHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
