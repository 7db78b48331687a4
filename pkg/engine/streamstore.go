package engine

import (
	"cmp"
	"encoding/json"
	"fmt"
	"time"
)

// StreamStore is the type-erased capability set exposed by an
// EventStreamStore independent of its event payload type E. It lets the
// engine host heterogeneous streams (one per application event type)
// behind a single map, recovering the typed view via a checked downcast at
// access sites that know E.
//
// Modeled directly on core.Block / core.GenericBlock / Block.Factory: a
// narrow interface carries the operations that don't need the concrete
// payload type, and the concrete generic type satisfies it alongside its
// full typed API.
type StreamStore[D cmp.Ordered] interface {
	NumEvents() int
	NumEventsPerDevice() map[D]int
	TimestampOfEarliestUnsyncedEvent(remoteDeviceCounts map[D]int) (time.Time, bool)

	// ValidToAddEventJSONs mirrors EventStreamStore.ValidToAddEvents but
	// operates on raw JSON envelopes, for sync drivers that do not
	// statically know E.
	ValidToAddEventJSONs(device D, batch []Timestamped[json.RawMessage]) bool

	// AddDeviceEventJSONs decodes each envelope via the store's bound
	// decoder and appends them. On the first decode failure nothing from
	// the batch is inserted and the error is returned.
	AddDeviceEventJSONs(device D, batch []Timestamped[json.RawMessage]) (int, error)
}

var _ StreamStore[string] = (*EventStreamStore[string, int])(nil)

// ValidToAddEventJSONs implements StreamStore. It only needs the index
// sequence, which does not require decoding the payload.
func (s *EventStreamStore[D, E]) ValidToAddEventJSONs(device D, batch []Timestamped[json.RawMessage]) bool {
	if len(batch) == 0 {
		return true
	}
	current := len(s.devices[device])
	if batch[0].WithinDeviceEventsIndex != current {
		return false
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].WithinDeviceEventsIndex != batch[i-1].WithinDeviceEventsIndex+1 {
			return false
		}
	}
	return true
}

// AddDeviceEventJSONs implements StreamStore: decode every envelope, and
// only if every decode succeeds, append all of them via the typed path.
func (s *EventStreamStore[D, E]) AddDeviceEventJSONs(device D, batch []Timestamped[json.RawMessage]) (int, error) {
	if !s.ValidToAddEventJSONs(device, batch) {
		return 0, &ErrInvalidBatch{Device: device}
	}
	if s.decode == nil {
		return 0, fmt.Errorf("streamstore: no decoder bound for this stream's event type")
	}
	decoded := make([]Timestamped[EventType[E]], 0, len(batch))
	for _, envelope := range batch {
		eventType, err := DecodeEventType(envelope.Event, s.decode)
		if err != nil {
			return 0, &ErrDeserialization{Err: err}
		}
		decoded = append(decoded, Timestamped[EventType[E]]{
			Timestamp:               envelope.Timestamp,
			WithinDeviceEventsIndex: envelope.WithinDeviceEventsIndex,
			Event:                   eventType,
		})
	}
	return s.AddDeviceEvents(device, decoded)
}

// EventsAfterJSON returns device's events whose index is >= from, encoded
// as raw EventType envelopes, for the sync protocol's push step (which
// must read local events without knowing E).
func (s *EventStreamStore[D, E]) EventsAfterJSON(device D, from int) ([]Timestamped[json.RawMessage], error) {
	events := s.devices[device]
	out := make([]Timestamped[json.RawMessage], 0, len(events))
	for _, e := range events {
		if e.WithinDeviceEventsIndex < from {
			continue
		}
		raw, err := e.Event.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding event for stream export: %w", err)
		}
		out = append(out, Timestamped[json.RawMessage]{
			Timestamp:               e.Timestamp,
			WithinDeviceEventsIndex: e.WithinDeviceEventsIndex,
			Event:                   raw,
		})
	}
	return out, nil
}

// AsTyped recovers the typed *EventStreamStore[D, E] view of an erased
// StreamStore[D]. A mismatched E is a programming error: the caller asked
// for a stream under a type it was never created with.
func AsTyped[D cmp.Ordered, E any](store StreamStore[D]) *EventStreamStore[D, E] {
	typed, ok := store.(*EventStreamStore[D, E])
	if !ok {
		panic(fmt.Sprintf("type mismatch: expected an EventStreamStore[Device, Timestamped[EventType[%T]]], but got a different stream payload type than expected", *new(E)))
	}
	return typed
}
