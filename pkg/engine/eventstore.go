package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventStore is the top-level container: a map from stream id to a
// dirty-tracked, type-erased StreamStore, a listener registry, and one
// SyncState per sync target. S is the stream identifier type, D the device
// identifier type (shared by every stream in this store).
//
// Grounded on pkg/warehouse/warehouse.go's mutex-guarded container and
// pkg/core/registry.go's stable-key registry: a single sync.Mutex guards
// the maps, and listener dispatch never happens while that mutex is held
// (see DrainDueNotifications).
type EventStore[S comparable, D cmp.Ordered] struct {
	mu         sync.Mutex
	streams    map[S]*DirtyTracker[StreamStore[D]]
	listeners  map[ListenerKey]func(ListenerKey, S)
	nextKey    uint64
	syncStates map[string]*SyncState[S, D]
}

// NewEventStore returns an empty container.
func NewEventStore[S comparable, D cmp.Ordered]() *EventStore[S, D] {
	return &EventStore[S, D]{
		streams:    make(map[S]*DirtyTracker[StreamStore[D]]),
		listeners:  make(map[ListenerKey]func(ListenerKey, S)),
		syncStates: make(map[string]*SyncState[S, D]),
	}
}

// Get recovers the typed view of stream if it exists and was created with
// event payload type E. Returns (nil, false) if the stream doesn't exist;
// panics (via AsTyped) if it exists under a different payload type.
func Get[S comparable, D cmp.Ordered, E any](es *EventStore[S, D], stream S) (*EventStreamStore[D, E], bool) {
	es.mu.Lock()
	tracker, ok := es.streams[stream]
	es.mu.Unlock()
	if !ok {
		return nil, false
	}
	return AsTyped[D, E](tracker.Store()), true
}

// GetOrInsertDefault returns the typed view of stream, creating it (with
// decode bound for JSON ingest) if absent. Creating a new stream marks it
// DirtyAll: creating a stream is itself an action that warrants a
// notification.
func GetOrInsertDefault[S comparable, D cmp.Ordered, E any](es *EventStore[S, D], stream S, decode Decoder[E]) *EventStreamStore[D, E] {
	es.mu.Lock()
	defer es.mu.Unlock()
	tracker, ok := es.streams[stream]
	if !ok {
		typed := NewEventStreamStore[D, E](decode)
		es.streams[stream] = NewDirtyTracker[StreamStore[D]](typed)
		return typed
	}
	return AsTyped[D, E](tracker.Store())
}

// AddDeviceEvents validates and appends batch for device on stream,
// creating the stream if necessary, and marks it dirty on success. A batch
// that fails the contiguity check is rejected wholesale and reported as an
// *ErrInvalidBatch naming both stream and device.
// modifier/hasModifier identify the listener that should be excluded from
// the resulting notification (see DirtyTracker).
func AddDeviceEvents[S comparable, D cmp.Ordered, E any](es *EventStore[S, D], stream S, device D, batch []Timestamped[EventType[E]], modifier ListenerKey, hasModifier bool, decode Decoder[E]) (int, error) {
	typed := GetOrInsertDefault[S, D, E](es, stream, decode)
	n, err := typed.AddDeviceEvents(device, batch)
	if err != nil {
		return 0, withStream(err, stream)
	}
	if n > 0 {
		es.markStreamDirty(stream, modifier, hasModifier)
	}
	return n, nil
}

// AddRawEvent wraps payload as EventType.User with the next
// within-device index and the current wall-clock time, and appends it. The
// batch it constructs is always contiguous by construction, so the append
// cannot fail.
func AddRawEvent[S comparable, D cmp.Ordered, E any](es *EventStore[S, D], stream S, device D, payload E, modifier ListenerKey, hasModifier bool, decode Decoder[E]) {
	typed := GetOrInsertDefault[S, D, E](es, stream, decode)
	event := Timestamped[EventType[E]]{
		Timestamp:               time.Now().UTC(),
		WithinDeviceEventsIndex: typed.LenDevice(device),
		Event:                   NewUserEvent(payload),
	}
	typed.AddDeviceEvents(device, []Timestamped[EventType[E]]{event})
	es.markStreamDirty(stream, modifier, hasModifier)
}

// AddDeviceEventJSONs is the type-erased ingest path used by sync drivers
// that do not statically know a stream's event type. The stream must
// already exist (a sync driver cannot materialise a decoder out of thin
// air); an unknown stream is reported as an error, not silently dropped,
// so the caller can log it. A non-contiguous batch is reported as an
// *ErrInvalidBatch naming both stream and device, not silently dropped.
func (es *EventStore[S, D]) AddDeviceEventJSONs(stream S, device D, batch []Timestamped[json.RawMessage], modifier ListenerKey, hasModifier bool) (int, error) {
	es.mu.Lock()
	tracker, ok := es.streams[stream]
	es.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("eventstore: cannot insert events for stream %v as it does not exist", stream)
	}
	n, err := tracker.Store().AddDeviceEventJSONs(device, batch)
	if err != nil {
		return 0, withStream(err, stream)
	}
	if n > 0 {
		es.markStreamDirty(stream, modifier, hasModifier)
	}
	return n, nil
}

// withStream fills in an *ErrInvalidBatch's Stream field with stream's
// concrete value, since EventStreamStore itself has no notion of which
// stream it backs. Other error types pass through unchanged.
func withStream[S comparable](err error, stream S) error {
	if invalid, ok := err.(*ErrInvalidBatch); ok {
		invalid.Stream = stream
	}
	return err
}

func (es *EventStore[S, D]) markStreamDirty(stream S, modifier ListenerKey, hasModifier bool) {
	es.mu.Lock()
	tracker := es.streams[stream]
	es.mu.Unlock()
	tracker.StoreMut(modifier, hasModifier).ForWrite()
}

// VectorClock snapshots the number-of-events-known-per-device for every
// stream.
func (es *EventStore[S, D]) VectorClock() Clock[S, D] {
	es.mu.Lock()
	defer es.mu.Unlock()
	clock := make(Clock[S, D], len(es.streams))
	for stream, tracker := range es.streams {
		clock[stream] = tracker.Store().NumEventsPerDevice()
	}
	return clock
}

// GetTimestampOfEarliestUnsyncedEvent mins TimestampOfEarliestUnsyncedEvent
// across every stream, using target's recorded remote clock.
func (es *EventStore[S, D]) GetTimestampOfEarliestUnsyncedEvent(target string) (time.Time, bool) {
	es.mu.Lock()
	state := es.syncStates[target]
	streams := make(map[S]StreamStore[D], len(es.streams))
	for stream, tracker := range es.streams {
		streams[stream] = tracker.Store()
	}
	es.mu.Unlock()

	var remoteClock Clock[S, D]
	if state != nil {
		remoteClock = state.RemoteClock
	}

	var earliest time.Time
	found := false
	for stream, store := range streams {
		remote := remoteClock[stream]
		candidate, ok := store.TimestampOfEarliestUnsyncedEvent(remote)
		if !ok {
			continue
		}
		if !found || candidate.Before(earliest) {
			earliest = candidate
			found = true
		}
	}
	return earliest, found
}

// RegisterListener adds cb to the registry and returns its stable key.
func (es *EventStore[S, D]) RegisterListener(cb func(ListenerKey, S)) ListenerKey {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.nextKey++
	key := ListenerKey(es.nextKey)
	es.listeners[key] = cb
	return key
}

// UnregisterListener removes a previously registered listener. Keys are
// never reused, so this can never collide with a later registration.
func (es *EventStore[S, D]) UnregisterListener(key ListenerKey) {
	es.mu.Lock()
	defer es.mu.Unlock()
	delete(es.listeners, key)
}

// MarkLoaded marks stream as loaded at least once, creating it if absent,
// and reports whether this call was the first (i.e. whether it just
// caused a mutation).
func MarkLoaded[S comparable, D cmp.Ordered, E any](es *EventStore[S, D], stream S, modifier ListenerKey, hasModifier bool, decode Decoder[E]) bool {
	GetOrInsertDefault[S, D, E](es, stream, decode)
	es.mu.Lock()
	tracker := es.streams[stream]
	es.mu.Unlock()
	return tracker.MarkLoaded(modifier, hasModifier)
}

// LoadedAtLeastOnce reports whether MarkLoaded has ever fired for stream.
func (es *EventStore[S, D]) LoadedAtLeastOnce(stream S) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	tracker, ok := es.streams[stream]
	if !ok {
		return false
	}
	return tracker.LoadedAtLeastOnce()
}

// DrainDueNotifications walks every stream, resets any non-Clean state to
// Clean, and returns one not-yet-invoked closure per (stream, listener)
// pair that should be notified — skipping the excluded listener for a
// DirtyExcept stream. The caller must invoke the closures after releasing
// any other lock it holds; none of them re-enters the store's own mutex
// until called: drain returns closures, the dispatcher invokes them with
// no engine lock held.
func (es *EventStore[S, D]) DrainDueNotifications() []func() {
	es.mu.Lock()
	defer es.mu.Unlock()

	var notifications []func()
	for stream, tracker := range es.streams {
		state := tracker.State()
		if state.IsClean() {
			continue
		}
		exclude, hasExclude := ListenerKey(0), false
		if state.kind == dirtyExcept {
			exclude, hasExclude = state.exclude, true
		}
		tracker.state = Clean()

		stream := stream // capture
		for key, cb := range es.listeners {
			if hasExclude && key == exclude {
				continue
			}
			key, cb := key, cb
			notifications = append(notifications, func() { cb(key, stream) })
		}
	}
	return notifications
}
