package engine

import "testing"

func TestDirtyStateTransitionTable(t *testing.T) {
	const k1, k2 = ListenerKey(1), ListenerKey(2)

	cases := []struct {
		name        string
		start       DirtyState
		modifier    ListenerKey
		hasModifier bool
		want        DirtyState
	}{
		{"clean + some(k) -> dirtyExcept(k)", Clean(), k1, true, DirtyExcept(k1)},
		{"clean + none -> dirtyAll", Clean(), 0, false, DirtyAll()},
		{"dirtyExcept(k) + some(k) -> dirtyExcept(k)", DirtyExcept(k1), k1, true, DirtyExcept(k1)},
		{"dirtyExcept(k) + some(k') -> dirtyAll", DirtyExcept(k1), k2, true, DirtyAll()},
		{"dirtyExcept(k) + none -> dirtyAll", DirtyExcept(k1), 0, false, DirtyAll()},
		{"dirtyAll + anything -> dirtyAll", DirtyAll(), k2, true, DirtyAll()},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.start.transition(c.modifier, c.hasModifier)
			if got.kind != c.want.kind || (got.kind == dirtyExcept && got.exclude != c.want.exclude) {
				t.Fatalf("transition(%v, modifier=%v hasModifier=%v) = %+v, want %+v", c.start, c.modifier, c.hasModifier, got, c.want)
			}
		})
	}
}

func TestNewDirtyTrackerStartsDirtyAll(t *testing.T) {
	tracker := NewDirtyTracker[int](0)
	if tracker.State().kind != dirtyAll {
		t.Fatalf("expected a freshly created tracker to start DirtyAll (new stream warrants a notification)")
	}
}

func TestMarkLoadedOnlyDirtiesOnce(t *testing.T) {
	tracker := NewDirtyTracker[int](0)
	tracker.state = Clean()

	if changed := tracker.MarkLoaded(0, false); !changed {
		t.Fatalf("expected first MarkLoaded to report a change")
	}
	if tracker.State().kind != dirtyAll {
		t.Fatalf("expected MarkLoaded's first call to mark DirtyAll")
	}

	tracker.state = Clean()
	if changed := tracker.MarkLoaded(0, false); changed {
		t.Fatalf("expected subsequent MarkLoaded calls to report no change")
	}
	if tracker.State().kind != dirtyClean {
		t.Fatalf("expected subsequent MarkLoaded calls to leave state untouched")
	}
}

func TestDirtyExceptionEchoSuppression(t *testing.T) {
	es := NewEventStore[string, string]()
	// Creating a stream is itself an unattributed mutation that notifies
	// everyone, so create it and drain that notification first.
	GetOrInsertDefault[string, string, intEvent](es, "s", decodeIntEvent)
	es.DrainDueNotifications()

	var notified []string
	key := es.RegisterListener(func(_ ListenerKey, stream string) {
		notified = append(notified, stream)
	})

	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(1), key, true, decodeIntEvent)

	for _, cb := range es.DrainDueNotifications() {
		cb()
	}
	if len(notified) != 0 {
		t.Fatalf("expected zero callbacks for the modifying listener, got %d", len(notified))
	}

	AddRawEvent[string, string, intEvent](es, "s", "A", intEvent(2), 0, false, decodeIntEvent)
	for _, cb := range es.DrainDueNotifications() {
		cb()
	}
	if len(notified) != 1 {
		t.Fatalf("expected exactly one callback after an unattributed mutation, got %d", len(notified))
	}
}
