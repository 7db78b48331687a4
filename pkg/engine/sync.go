package engine

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SyncState records, per sync target, the engine's best estimate of what
// the target has and the outcome of the most recent sync attempt.
// Sync-in-progress is derived, not stored: LastSyncStarted.After(LastSyncFinished).
type SyncState[S comparable, D cmp.Ordered] struct {
	RemoteClock      Clock[S, D]
	LastSyncStarted  *time.Time
	LastSyncFinished *time.Time
	LastSyncError    *string
}

// InProgress reports whether a sync is currently running for this target.
func (s *SyncState[S, D]) InProgress() bool {
	if s.LastSyncStarted == nil {
		return false
	}
	if s.LastSyncFinished == nil {
		return true
	}
	return s.LastSyncStarted.After(*s.LastSyncFinished)
}

// SyncState returns (creating if absent) the state for target.
func (es *EventStore[S, D]) SyncState(target string) *SyncState[S, D] {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.syncStateLocked(target)
}

func (es *EventStore[S, D]) syncStateLocked(target string) *SyncState[S, D] {
	state, ok := es.syncStates[target]
	if !ok {
		state = &SyncState[S, D]{RemoteClock: make(Clock[S, D])}
		es.syncStates[target] = state
	}
	return state
}

// UpdateSyncClock joins newClock into target's recorded remote clock via
// element-wise max (the engine assumes remote clocks never decrease).
func (es *EventStore[S, D]) UpdateSyncClock(target string, newClock Clock[S, D]) {
	es.mu.Lock()
	defer es.mu.Unlock()
	state := es.syncStateLocked(target)
	state.RemoteClock = JoinClocks(state.RemoteClock, newClock)
}

// MarkSyncStarted timestamps the start of a sync attempt against target.
func (es *EventStore[S, D]) MarkSyncStarted(target string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	now := time.Now().UTC()
	es.syncStateLocked(target).LastSyncStarted = &now
}

// MarkSyncFinished timestamps the end of a sync attempt and records err (nil
// on success) as the target's last-sync-error.
func (es *EventStore[S, D]) MarkSyncFinished(target string, err error) {
	es.mu.Lock()
	defer es.mu.Unlock()
	now := time.Now().UTC()
	state := es.syncStateLocked(target)
	state.LastSyncFinished = &now
	if err != nil {
		msg := err.Error()
		state.LastSyncError = &msg
	} else {
		state.LastSyncError = nil
	}
}

// StreamEvents is the JSON-erased per-device event sequence a SyncTarget
// reports for one stream.
type StreamEvents[D cmp.Ordered] map[D][]Timestamped[json.RawMessage]

// SyncTarget is the capability a backend must implement to participate in
// the backend-neutral sync protocol. Both storage backends (remote HTTPS
// store, local persistent store) implement this same narrow surface; the
// engine never privileges one over another. The cross-tab channel is a
// signalling hub, not a SyncTarget.
type SyncTarget[S comparable, D cmp.Ordered] interface {
	// Name identifies this target for SyncState bookkeeping.
	Name() string
	// GetClock reports the target's per-(stream,device) event counts. If
	// onlyStream is non-nil, the target may (but need not) restrict its
	// answer to that stream.
	GetClock(ctx context.Context, onlyStream *S) (Clock[S, D], error)
	// GetAllStreamEvents returns every event the target holds for stream,
	// keyed by device, as raw EventType-enveloped JSON.
	GetAllStreamEvents(ctx context.Context, stream S) (StreamEvents[D], error)
	// PushEvent sends one event to the target.
	PushEvent(ctx context.Context, stream S, device D, event Timestamped[json.RawMessage]) error
	// Streams lists every stream id the caller should consider during a
	// full (non-single-stream) sync, at minimum the ones visible in the
	// target's clock.
	Streams(ctx context.Context) ([]S, error)
}

// OnPushed is invoked once a push to target succeeds, so the caller can
// emit a best-effort cross-tab signal. A failure to
// signal is the caller's concern, not the sync protocol's: Sync itself
// never fails because a signal could not be delivered.
type OnPushed[S comparable] func(stream S)

// Sync runs the five-step backend-neutral protocol against target for
// streamFilter. A nil streamFilter pulls every stream the target lists and
// pushes every stream present locally.
// It is idempotent and re-entrant: a second call with no intervening
// local mutation is a no-op beyond re-confirming clocks.
func Sync[S comparable, D cmp.Ordered](ctx context.Context, es *EventStore[S, D], target SyncTarget[S, D], streamFilter *S, onPushed OnPushed[S]) error {
	name := target.Name()
	es.MarkSyncStarted(name)

	err := syncInner(ctx, es, target, streamFilter, onPushed)
	es.MarkSyncFinished(name, err)
	return err
}

func syncInner[S comparable, D cmp.Ordered](ctx context.Context, es *EventStore[S, D], target SyncTarget[S, D], streamFilter *S, onPushed OnPushed[S]) error {
	name := target.Name()

	streams, err := streamsToSync(ctx, target, streamFilter)
	if err != nil {
		return &ErrBackendIO{Target: name, Err: fmt.Errorf("listing streams: %w", err)}
	}

	// 1. Pull.
	for _, stream := range streams {
		if err := pullStream(ctx, es, target, stream); err != nil {
			return err
		}
	}

	// 2. Push: every stream present locally (or only the filtered one).
	pushStreams := streams
	if streamFilter == nil {
		es.mu.Lock()
		pushStreams = make([]S, 0, len(es.streams))
		for stream := range es.streams {
			pushStreams = append(pushStreams, stream)
		}
		es.mu.Unlock()
	}
	for _, stream := range pushStreams {
		if err := pushStream(ctx, es, target, stream, onPushed); err != nil {
			return err
		}
	}

	// 3. Refresh clock.
	newClock, err := target.GetClock(ctx, streamFilter)
	if err != nil {
		return &ErrBackendIO{Target: name, Err: fmt.Errorf("refreshing clock: %w", err)}
	}
	es.UpdateSyncClock(name, newClock)
	return nil
}

func streamsToSync[S comparable, D cmp.Ordered](ctx context.Context, target SyncTarget[S, D], streamFilter *S) ([]S, error) {
	if streamFilter != nil {
		return []S{*streamFilter}, nil
	}
	return target.Streams(ctx)
}

// pullStream fetches target's events for stream and appends any the engine
// doesn't have yet, per device, sorted by index.
func pullStream[S comparable, D cmp.Ordered](ctx context.Context, es *EventStore[S, D], target SyncTarget[S, D], stream S) error {
	name := target.Name()
	remoteEvents, err := target.GetAllStreamEvents(ctx, stream)
	if err != nil {
		return &ErrBackendIO{Target: name, Err: fmt.Errorf("pulling stream %v: %w", stream, err)}
	}

	for device, events := range remoteEvents {
		local := es.lenDeviceErased(stream, device)
		fresh := make([]Timestamped[json.RawMessage], 0, len(events))
		for _, e := range events {
			if e.WithinDeviceEventsIndex >= local {
				fresh = append(fresh, e)
			}
		}
		sort.Slice(fresh, func(i, j int) bool {
			return fresh[i].WithinDeviceEventsIndex < fresh[j].WithinDeviceEventsIndex
		})
		if len(fresh) == 0 {
			continue
		}
		if _, err := es.AddDeviceEventJSONs(stream, device, fresh, 0, false); err != nil {
			return fmt.Errorf("applying pulled events for stream %v device %v: %w", stream, device, err)
		}
	}
	return nil
}

// pushStream pushes every local event the target doesn't have yet, per
// device, one event per backend call, and fires onPushed once if anything
// was pushed.
func pushStream[S comparable, D cmp.Ordered](ctx context.Context, es *EventStore[S, D], target SyncTarget[S, D], stream S, onPushed OnPushed[S]) error {
	name := target.Name()
	targetClock, err := target.GetClock(ctx, &stream)
	if err != nil {
		return &ErrBackendIO{Target: name, Err: fmt.Errorf("reading target clock for stream %v: %w", stream, err)}
	}
	targetCounts := targetClock[stream]

	es.mu.Lock()
	tracker, ok := es.streams[stream]
	es.mu.Unlock()
	if !ok {
		return nil
	}
	localCounts := tracker.Store().NumEventsPerDevice()

	pushedAny := false
	for device, localCount := range localCounts {
		targetCount := targetCounts[device]
		if localCount <= targetCount {
			continue
		}
		events, err := eventsFromIndex(tracker.Store(), device, targetCount)
		if err != nil {
			return fmt.Errorf("reading local events to push for stream %v device %v: %w", stream, device, err)
		}
		for _, event := range events {
			if err := target.PushEvent(ctx, stream, device, event); err != nil {
				return &ErrBackendIO{Target: name, Err: fmt.Errorf("pushing event for stream %v device %v: %w", stream, device, err)}
			}
			pushedAny = true
		}
	}

	if pushedAny && onPushed != nil {
		onPushed(stream)
	}
	return nil
}

// erasedEventsAfter is implemented by EventStreamStore to let the sync
// protocol read raw JSON for pushing without knowing E.
type erasedEventsAfter[D cmp.Ordered] interface {
	EventsAfterJSON(device D, from int) ([]Timestamped[json.RawMessage], error)
}

func eventsFromIndex[D cmp.Ordered](store StreamStore[D], device D, from int) ([]Timestamped[json.RawMessage], error) {
	erased, ok := store.(erasedEventsAfter[D])
	if !ok {
		return nil, fmt.Errorf("stream store does not support erased event export")
	}
	return erased.EventsAfterJSON(device, from)
}

func (es *EventStore[S, D]) lenDeviceErased(stream S, device D) int {
	es.mu.Lock()
	tracker, ok := es.streams[stream]
	es.mu.Unlock()
	if !ok {
		return 0
	}
	return tracker.Store().NumEventsPerDevice()[device]
}
