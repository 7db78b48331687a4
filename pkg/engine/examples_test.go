package engine

import "testing"

// counterState is a minimal reducer exercising the AppState contract:
// a pure fold over the merged event order. It documents the shape
// applications implement; it is not a product feature of the engine.
type counterState struct {
	total int
}

func (c counterState) ApplyEvent(event Timestamped[EventType[intEvent]]) counterState {
	v, ok := event.Event.User()
	if !ok {
		return c
	}
	return counterState{total: c.total + int(v)}
}

func TestReducerFoldsEveryEvent(t *testing.T) {
	store := NewEventStreamStore[string, intEvent](decodeIntEvent)
	store.AddDeviceEvents("A", []Timestamped[EventType[intEvent]]{ts(0, "A", 0, 1), ts(2, "A", 1, 2)})
	store.AddDeviceEvents("B", []Timestamped[EventType[intEvent]]{ts(1, "B", 0, 10)})

	final := State(store, counterState{}, func(s counterState, e Timestamped[EventType[intEvent]]) counterState {
		return s.ApplyEvent(e)
	})
	if final.total != 13 {
		t.Fatalf("expected reducer determinism to fold to 13, got %d", final.total)
	}
}
