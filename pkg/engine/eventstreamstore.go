package engine

import (
	"cmp"
	"container/heap"
	"time"
)

// EventStreamStore is a single stream's per-device append-only log, plus a
// merge-sorted total order over all devices' events in that stream. D is
// the device identifier type (must be orderable: the merge tie-break uses
// device natural order); E is the application event payload type.
//
// The merge algorithm and validity rules below are built directly from
// this package's own contract, not ported from any upstream source.
type EventStreamStore[D cmp.Ordered, E any] struct {
	devices map[D][]Timestamped[EventType[E]]
	// decode reconstructs E from JSON. Bound at construction time so the
	// type-erased StreamStore view (see streamstore.go) can still ingest
	// JSON without the caller re-supplying a decoder at every call site —
	// the same "the type knows how to reconstruct itself" idea as
	// core.Block's Factory method.
	decode Decoder[E]
}

// NewEventStreamStore returns an empty stream store bound to decode, which
// is used by the type-erased StreamStore JSON ingest path.
func NewEventStreamStore[D cmp.Ordered, E any](decode Decoder[E]) *EventStreamStore[D, E] {
	return &EventStreamStore[D, E]{
		devices: make(map[D][]Timestamped[EventType[E]]),
		decode:  decode,
	}
}

// AddEventUnchecked appends a single event for device with no validation.
// For tests and internal bootstrapping only.
func (s *EventStreamStore[D, E]) AddEventUnchecked(device D, event Timestamped[EventType[E]]) {
	s.devices[device] = append(s.devices[device], event)
}

// ValidToAddEvents reports whether batch may be appended for device: it
// must be contiguous in WithinDeviceEventsIndex and its first index must
// equal the device's current stored length. An empty batch is trivially
// valid (a no-op append).
func (s *EventStreamStore[D, E]) ValidToAddEvents(device D, batch []Timestamped[EventType[E]]) bool {
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

// AddDeviceEvents appends batch for device and returns the number of events
// added. A batch that fails ValidToAddEvents is rejected wholesale: nothing
// is mutated and the zero count is paired with an *ErrInvalidBatch (its
// Stream field is left nil; callers that know the stream id fill it in).
func (s *EventStreamStore[D, E]) AddDeviceEvents(device D, batch []Timestamped[EventType[E]]) (int, error) {
	if !s.ValidToAddEvents(device, batch) {
		return 0, &ErrInvalidBatch{Device: device}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	s.devices[device] = append(s.devices[device], batch...)
	return len(batch), nil
}

// LenDevice returns the number of stored events for device.
func (s *EventStreamStore[D, E]) LenDevice(device D) int {
	return len(s.devices[device])
}

// NumEvents returns the total number of stored events across all devices.
func (s *EventStreamStore[D, E]) NumEvents() int {
	total := 0
	for _, events := range s.devices {
		total += len(events)
	}
	return total
}

// NumEventsPerDevice returns a snapshot of per-device counts.
func (s *EventStreamStore[D, E]) NumEventsPerDevice() map[D]int {
	out := make(map[D]int, len(s.devices))
	for device, events := range s.devices {
		out[device] = len(events)
	}
	return out
}

// Events returns the raw per-device sequences, for use by sync drivers that
// need to read beyond a given index.
func (s *EventStreamStore[D, E]) Events() map[D][]Timestamped[EventType[E]] {
	return s.devices
}

// mergeItem is one heap entry in the k-way merge.
type mergeItem[D cmp.Ordered, E any] struct {
	device D
	index  int // position within devices[device]
	event  Timestamped[EventType[E]]
}

type mergeHeap[D cmp.Ordered, E any] []mergeItem[D, E]

func (h mergeHeap[D, E]) Len() int { return len(h) }
func (h mergeHeap[D, E]) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.event.Timestamp.Equal(b.event.Timestamp) {
		return a.event.Timestamp.Before(b.event.Timestamp)
	}
	if a.device != b.device {
		return a.device < b.device
	}
	return a.event.WithinDeviceEventsIndex < b.event.WithinDeviceEventsIndex
}
func (h mergeHeap[D, E]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap[D, E]) Push(x any)        { *h = append(*h, x.(mergeItem[D, E])) }
func (h *mergeHeap[D, E]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Iter returns every stored event in the deterministic total order defined
// by (timestamp, device, within_device_events_index). It is a function of
// stored state only, never of insertion order: implemented as a k-way
// merge over the per-device sequences, each already sorted by index.
func (s *EventStreamStore[D, E]) Iter() []Timestamped[EventType[E]] {
	h := &mergeHeap[D, E]{}
	heap.Init(h)
	for device, events := range s.devices {
		if len(events) == 0 {
			continue
		}
		heap.Push(h, mergeItem[D, E]{device: device, index: 0, event: events[0]})
	}
	out := make([]Timestamped[EventType[E]], 0, s.NumEvents())
	for h.Len() > 0 {
		item := heap.Pop(h).(mergeItem[D, E])
		out = append(out, item.event)
		next := item.index + 1
		if events := s.devices[item.device]; next < len(events) {
			heap.Push(h, mergeItem[D, E]{device: item.device, index: next, event: events[next]})
		}
	}
	return out
}

// TimestampOfEarliestUnsyncedEvent considers, for each device, the event at
// index equal to the corresponding remote device count (the first one the
// remote lacks) and returns the minimum of those timestamps, or false if
// every device is already in sync with remoteDeviceCounts.
func (s *EventStreamStore[D, E]) TimestampOfEarliestUnsyncedEvent(remoteDeviceCounts map[D]int) (time.Time, bool) {
	var earliest time.Time
	found := false
	for device, events := range s.devices {
		remote := remoteDeviceCounts[device]
		if remote >= len(events) {
			continue
		}
		candidate := events[remote].Timestamp
		if !found || candidate.Before(earliest) {
			earliest = candidate
			found = true
		}
	}
	return earliest, found
}

// State folds the merged iteration through apply, starting from initial.
// Reducer determinism follows because Iter's order depends only on
// stored state.
func State[D cmp.Ordered, E any, A any](s *EventStreamStore[D, E], initial A, apply func(A, Timestamped[EventType[E]]) A) A {
	state := initial
	for _, event := range s.Iter() {
		state = apply(state, event)
	}
	return state
}
