package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamped annotates an event with a wall-clock instant and a per-device
// monotonic index. The engine never orders by the struct's field order when
// constructing a merged view (see EventStreamStore.Iter); this type exists
// to carry the two pieces of metadata the merge algorithm actually uses.
type Timestamped[X any] struct {
	Timestamp               time.Time `json:"timestamp"`
	WithinDeviceEventsIndex int       `json:"within_device_events_index"`
	Event                   X         `json:"event"`
}

// ToJSON implements Event for Timestamped by wrapping the three fields.
func (t Timestamped[X]) ToJSON() (json.RawMessage, error) {
	eventJSON, err := toJSONValue(t.Event)
	if err != nil {
		return nil, fmt.Errorf("encoding timestamped event: %w", err)
	}
	return json.Marshal(struct {
		Timestamp               time.Time       `json:"timestamp"`
		WithinDeviceEventsIndex int             `json:"within_device_events_index"`
		Event                   json.RawMessage `json:"event"`
	}{t.Timestamp, t.WithinDeviceEventsIndex, eventJSON})
}

// DecodeTimestamped decodes a Timestamped[X] given a decoder for the inner
// event type X.
func DecodeTimestamped[X any](raw json.RawMessage, decode Decoder[X]) (Timestamped[X], error) {
	var wire struct {
		Timestamp               time.Time       `json:"timestamp"`
		WithinDeviceEventsIndex int             `json:"within_device_events_index"`
		Event                   json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Timestamped[X]{}, fmt.Errorf("decoding timestamped envelope: %w", err)
	}
	event, err := decode(wire.Event)
	if err != nil {
		return Timestamped[X]{}, fmt.Errorf("decoding timestamped event: %w", err)
	}
	return Timestamped[X]{
		Timestamp:               wire.Timestamp,
		WithinDeviceEventsIndex: wire.WithinDeviceEventsIndex,
		Event:                   event,
	}, nil
}
