// Package crosstab is a cross-tab/cross-process signalling channel: a
// best-effort, unordered, non-durable broadcast of
// { kind: "persistent-store-written", stream } messages, so that siblings
// sharing a local persistent store can schedule a sync of the affected
// stream without polling.
package crosstab

import "sync"

// Signal is the cross-tab message shape. Stream is empty when the
// originator doesn't know (or doesn't want to narrow) which stream
// changed — subscribers should treat an empty Stream as "resync
// everything against the local persistent store."
type Signal struct {
	Kind   string `json:"kind"`
	Stream string `json:"stream,omitempty"`
}

// KindPersistentStoreWritten is the only Kind defined today.
const KindPersistentStoreWritten = "persistent-store-written"

// Hub is an in-process, concurrency-safe fan-out dispatcher: each
// registered subscriber gets its own buffered channel, and a slow
// subscriber drops events rather than backpressuring the publisher — the
// same "never block ingestion" design goal as pkg/realtime.FirehoseHub.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Signal
	nextID    uint64
	bufSize   int
}

// NewHub constructs a Hub with the given per-subscriber channel buffer
// size (defaulting to 32 if bufSize <= 0).
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{listeners: make(map[uint64]chan Signal), bufSize: bufSize}
}

// Register adds a subscriber and returns its id and receive-only channel.
// Callers must Unregister(id) when done.
func (h *Hub) Register() (uint64, <-chan Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Signal, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes a subscriber and closes its channel. Safe to call
// more than once; unknown ids are ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers sig to every registered subscriber, best-effort: a
// subscriber whose buffer is full simply misses this signal.
func (h *Hub) Broadcast(sig Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- sig:
		default:
		}
	}
}

// Size reports the current number of registered subscribers.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// BroadcastStreamWritten is a convenience wrapper for the common case: the
// local persistent store gained new events for stream.
func (h *Hub) BroadcastStreamWritten(stream string) {
	h.Broadcast(Signal{Kind: KindPersistentStoreWritten, Stream: stream})
}
