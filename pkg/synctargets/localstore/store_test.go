package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/weapon/pkg/engine"
)

func rawEvent(t *testing.T, index int, ts time.Time) engine.Timestamped[json.RawMessage] {
	t.Helper()
	return engine.Timestamped[json.RawMessage]{
		Timestamp:               ts,
		WithinDeviceEventsIndex: index,
		Event:                   json.RawMessage(`{"User":"hello"}`),
	}
}

func TestPushEventThenGetClockAndEvents(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "user.db"), "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := store.PushEvent(ctx, "journal", "phone", rawEvent(t, i, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("PushEvent(%d): %v", i, err)
		}
	}

	clock, err := store.GetClock(ctx, nil)
	if err != nil {
		t.Fatalf("GetClock: %v", err)
	}
	if got := clock["journal"]["phone"]; got != 3 {
		t.Fatalf("expected 3 events for phone, got %d", got)
	}

	events, err := store.GetAllStreamEvents(ctx, "journal")
	if err != nil {
		t.Fatalf("GetAllStreamEvents: %v", err)
	}
	if len(events["phone"]) != 3 {
		t.Fatalf("expected 3 events for phone, got %d", len(events["phone"]))
	}
	for i, e := range events["phone"] {
		if e.WithinDeviceEventsIndex != i {
			t.Fatalf("event %d has index %d", i, e.WithinDeviceEventsIndex)
		}
	}
}

func TestPushEventIsIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "user.db"), "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ev := rawEvent(t, 0, time.Now().UTC())
	if err := store.PushEvent(ctx, "journal", "phone", ev); err != nil {
		t.Fatalf("first PushEvent: %v", err)
	}
	if err := store.PushEvent(ctx, "journal", "phone", ev); err != nil {
		t.Fatalf("second PushEvent: %v", err)
	}

	clock, err := store.GetClock(ctx, nil)
	if err != nil {
		t.Fatalf("GetClock: %v", err)
	}
	if got := clock["journal"]["phone"]; got != 1 {
		t.Fatalf("expected idempotent push to leave count at 1, got %d", got)
	}
}

func TestGetClockReportsContiguityGap(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "user.db"), "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.PushEvent(ctx, "journal", "phone", rawEvent(t, 0, time.Now().UTC())); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	if err := store.PushEvent(ctx, "journal", "phone", rawEvent(t, 2, time.Now().UTC())); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	_, err = store.GetClock(ctx, nil)
	var gap *engine.ErrContiguityBroken
	if !errors.As(err, &gap) {
		t.Fatalf("expected *engine.ErrContiguityBroken, got %v", err)
	}
	if gap.Stream != "journal" || gap.Device != "phone" {
		t.Fatalf("expected gap for journal/phone, got stream=%v device=%v", gap.Stream, gap.Device)
	}
	if gap.Expected != 1 || gap.Found != 2 {
		t.Fatalf("expected expected=1 found=2, got expected=%d found=%d", gap.Expected, gap.Found)
	}
}

func TestStreamsListsDistinctStreamIDs(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "user.db"), "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.PushEvent(ctx, "journal", "phone", rawEvent(t, 0, time.Now().UTC())); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	if err := store.PushEvent(ctx, "reviews", "phone", rawEvent(t, 0, time.Now().UTC())); err != nil {
		t.Fatalf("PushEvent: %v", err)
	}

	streams, err := store.Streams(ctx)
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d: %v", len(streams), streams)
	}
}
