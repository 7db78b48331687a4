package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rubiojr/weapon/pkg/engine"
)

func TestGetClockAndEventsAndPushEvent(t *testing.T) {
	var pushed eventRow

	mux := http.NewServeMux()
	mux.HandleFunc("/clock", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"clock": map[string]map[string]int{"journal": {"phone": 2}},
		})
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"events": []eventRow{
					{UserID: "alice", StreamID: "journal", DeviceID: "phone", EventIndex: 0, Event: json.RawMessage(`{"User":"hi"}`), ServerInserted: time.Now().UTC()},
				},
			})
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&pushed); err != nil {
				t.Fatalf("decoding push body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		}
	})
	mux.HandleFunc("/streams", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"streams": []string{"journal"}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := New(Config{BaseURL: server.URL, AnonymousKey: "test-token", UserID: "alice"})
	ctx := context.Background()

	clock, err := store.GetClock(ctx, nil)
	if err != nil {
		t.Fatalf("GetClock: %v", err)
	}
	if clock["journal"]["phone"] != 2 {
		t.Fatalf("unexpected clock: %+v", clock)
	}

	events, err := store.GetAllStreamEvents(ctx, "journal")
	if err != nil {
		t.Fatalf("GetAllStreamEvents: %v", err)
	}
	if len(events["phone"]) != 1 {
		t.Fatalf("expected 1 event for phone, got %d", len(events["phone"]))
	}

	streams, err := store.Streams(ctx)
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(streams) != 1 || streams[0] != "journal" {
		t.Fatalf("unexpected streams: %v", streams)
	}

	err = store.PushEvent(ctx, "journal", "phone", engine.Timestamped[json.RawMessage]{
		WithinDeviceEventsIndex: 2,
		Event:                   json.RawMessage(`{"User":"bye"}`),
	})
	if err != nil {
		t.Fatalf("PushEvent: %v", err)
	}
	if pushed.DeviceID != "phone" || pushed.EventIndex != 2 {
		t.Fatalf("unexpected pushed row: %+v", pushed)
	}
}

func TestGetClockPropagatesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	store := New(Config{BaseURL: server.URL, AnonymousKey: "bad-token", UserID: "alice"})
	if _, err := store.GetClock(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}
