package engine

import (
	"context"
	"encoding/json"
	"testing"
)

// fakeTarget is an in-memory SyncTarget used to exercise the
// backend-neutral protocol without a real backend.
type fakeTarget struct {
	name   string
	events map[string]map[string][]Timestamped[json.RawMessage]
}

func newFakeTarget(name string) *fakeTarget {
	return &fakeTarget{name: name, events: make(map[string]map[string][]Timestamped[json.RawMessage])}
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) GetClock(_ context.Context, onlyStream *string) (Clock[string, string], error) {
	clock := make(Clock[string, string])
	for stream, devices := range f.events {
		if onlyStream != nil && stream != *onlyStream {
			continue
		}
		counts := make(map[string]int, len(devices))
		for device, events := range devices {
			counts[device] = len(events)
		}
		clock[stream] = counts
	}
	return clock, nil
}

func (f *fakeTarget) GetAllStreamEvents(_ context.Context, stream string) (StreamEvents[string], error) {
	out := StreamEvents[string]{}
	for device, events := range f.events[stream] {
		out[device] = append([]Timestamped[json.RawMessage]{}, events...)
	}
	return out, nil
}

func (f *fakeTarget) PushEvent(_ context.Context, stream, device string, event Timestamped[json.RawMessage]) error {
	if f.events[stream] == nil {
		f.events[stream] = make(map[string][]Timestamped[json.RawMessage])
	}
	f.events[stream][device] = append(f.events[stream][device], event)
	return nil
}

func (f *fakeTarget) Streams(_ context.Context) ([]string, error) {
	streams := make([]string, 0, len(f.events))
	for stream := range f.events {
		streams = append(streams, stream)
	}
	return streams, nil
}

func TestIdempotentPushPull(t *testing.T) {
	es := NewEventStore[string, string]()
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(0), 0, false, decodeIntEvent)
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(1), 0, false, decodeIntEvent)
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(2), 0, false, decodeIntEvent)

	target := newFakeTarget("remote")
	a0, _ := ts(0, "A", 0, 0).Event.ToJSON()
	a1, _ := ts(0, "A", 1, 1).Event.ToJSON()
	b0, _ := ts(0, "B", 0, 99).Event.ToJSON()
	target.events["s"] = map[string][]Timestamped[json.RawMessage]{
		"A": {
			{Timestamp: ts(0, "A", 0, 0).Timestamp, WithinDeviceEventsIndex: 0, Event: a0},
			{Timestamp: ts(0, "A", 1, 1).Timestamp, WithinDeviceEventsIndex: 1, Event: a1},
		},
		"B": {
			{Timestamp: ts(0, "B", 0, 99).Timestamp, WithinDeviceEventsIndex: 0, Event: b0},
		},
	}

	ctx := context.Background()
	if err := Sync[string, string](ctx, es, target, nil, nil); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	local, _ := Get[string, string, intEvent](es, "s")
	if local.LenDevice("B") != 1 {
		t.Fatalf("expected local to gain B#0, got len_device(B)=%d", local.LenDevice("B"))
	}
	if got := len(target.events["s"]["A"]); got != 3 {
		t.Fatalf("expected remote to gain A#2, got %d events for A", got)
	}

	state := es.SyncState("remote")
	if state.LastSyncError != nil {
		t.Fatalf("expected no sync error, got %v", *state.LastSyncError)
	}
	if state.RemoteClock["s"]["A"] != 3 || state.RemoteClock["s"]["B"] != 1 {
		t.Fatalf("unexpected recorded remote clock: %+v", state.RemoteClock)
	}

	// Second sync: no intervening mutation, should be a true no-op.
	if err := Sync[string, string](ctx, es, target, nil, nil); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if local.LenDevice("A") != 3 || local.LenDevice("B") != 1 {
		t.Fatalf("expected state unchanged after idempotent resync, got A=%d B=%d", local.LenDevice("A"), local.LenDevice("B"))
	}
	if got := len(target.events["s"]["A"]); got != 3 {
		t.Fatalf("expected remote unchanged after idempotent resync, got %d events for A", got)
	}
}

func TestOnPushedFiresOnlyWhenSomethingWasPushed(t *testing.T) {
	es := NewEventStore[string, string]()
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(0), 0, false, decodeIntEvent)

	target := newFakeTarget("remote")
	fired := 0
	ctx := context.Background()
	if err := Sync[string, string](ctx, es, target, nil, func(string) { fired++ }); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected onPushed to fire exactly once, got %d", fired)
	}

	if err := Sync[string, string](ctx, es, target, nil, func(string) { fired++ }); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected onPushed not to fire again with nothing new to push, got total %d", fired)
	}
}
