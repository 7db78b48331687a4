package engine

import "testing"

func TestGetOrInsertDefaultCreatesOnce(t *testing.T) {
	es := NewEventStore[string, string]()

	first := GetOrInsertDefault[string, string, intEvent](es, "s", decodeIntEvent)
	first.AddEventUnchecked("A", ts(0, "A", 0, 7))

	second := GetOrInsertDefault[string, string, intEvent](es, "s", decodeIntEvent)
	if second.NumEvents() != 1 {
		t.Fatalf("expected GetOrInsertDefault to return the same store on a second call, got %d events", second.NumEvents())
	}
}

func TestGetUnknownStreamReturnsFalse(t *testing.T) {
	es := NewEventStore[string, string]()
	_, ok := Get[string, string, intEvent](es, "missing")
	if ok {
		t.Fatalf("expected ok=false for a stream that was never created")
	}
}

func TestGetWrongTypePanics(t *testing.T) {
	es := NewEventStore[string, string]()
	GetOrInsertDefault[string, string, intEvent](es, "s", decodeIntEvent)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic recovering the wrong event type")
		}
	}()
	Get[string, string, string](es, "s")
}

func TestVectorClockReflectsStoredCounts(t *testing.T) {
	es := NewEventStore[string, string]()
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(1), 0, false, decodeIntEvent)
	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(2), 0, false, decodeIntEvent)
	AddRawEvent[string, string, intEvent](es, "s", "B", intEvent(3), 0, false, decodeIntEvent)

	clock := es.VectorClock()
	if clock["s"]["A"] != 2 || clock["s"]["B"] != 1 {
		t.Fatalf("unexpected vector clock: %+v", clock)
	}
}

func TestAddDeviceEventsJSONsUnknownStreamErrors(t *testing.T) {
	es := NewEventStore[string, string]()
	_, err := es.AddDeviceEventJSONs("nope", "A", nil, 0, false)
	if err == nil {
		t.Fatalf("expected an error inserting into a stream that doesn't exist")
	}
}
