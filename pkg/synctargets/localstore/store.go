// Package localstore is the local persistent sync target: a per-user
// SQLite database holding every event the engine has ever seen for that
// user, one row per event, with a unique compound index on
// (user_id, stream_id, device_id, event_index).
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rubiojr/weapon/pkg/elog"
	"github.com/rubiojr/weapon/pkg/engine"
)

var log = elog.ForComponent("sync/localstore")

// Store is a per-user local persistent sync target backed by SQLite.
// *Store wraps a *sql.DB, which is already safe for concurrent use; share
// the *Store rather than copying the struct.
type Store struct {
	db     *sql.DB
	userID string
}

// Open opens (creating if absent) the SQLite database at path, applies
// performance pragmas, runs pending migrations, and scopes every operation
// to userID.
func Open(path, userID string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = memory",
		"PRAGMA mmap_size = 268435456",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if err := applyPendingMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return &Store{db: db, userID: userID}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Name implements engine.SyncTarget.
func (s *Store) Name() string { return "localstore:" + s.userID }

// Streams implements engine.SyncTarget: every distinct stream id this user
// has ever written to.
func (s *Store) Streams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT stream_id FROM events WHERE user_id = ?", s.userID)
	if err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}
	defer rows.Close()

	var streams []string
	for rows.Next() {
		var stream string
		if err := rows.Scan(&stream); err != nil {
			return nil, fmt.Errorf("scanning stream id: %w", err)
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

// GetClock implements engine.SyncTarget: per-(stream,device) event counts,
// verifying contiguity of stored indices. A gap means rows were deleted or
// corrupted outside the engine's append path; reported as an
// *engine.ErrContiguityBroken rather than a bogus count.
func (s *Store) GetClock(ctx context.Context, onlyStream *string) (engine.Clock[string, string], error) {
	query := "SELECT stream_id, device_id, event_index FROM events WHERE user_id = ?"
	args := []any{s.userID}
	if onlyStream != nil {
		query += " AND stream_id = ?"
		args = append(args, *onlyStream)
	}
	query += " ORDER BY stream_id, device_id, event_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying clock: %w", err)
	}
	defer rows.Close()

	indices := make(map[string]map[string][]int)
	for rows.Next() {
		var stream, device string
		var index int
		if err := rows.Scan(&stream, &device, &index); err != nil {
			return nil, fmt.Errorf("scanning clock row: %w", err)
		}
		if indices[stream] == nil {
			indices[stream] = make(map[string][]int)
		}
		indices[stream][device] = append(indices[stream][device], index)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	clock := make(engine.Clock[string, string], len(indices))
	for stream, byDevice := range indices {
		counts := make(map[string]int, len(byDevice))
		for device, idxs := range byDevice {
			sort.Ints(idxs)
			for i, idx := range idxs {
				if idx != i {
					log.Errorf("contiguity broken: user=%s stream=%s device=%s expected index %d, found %d", s.userID, stream, device, i, idx)
					return nil, &engine.ErrContiguityBroken{Stream: stream, Device: device, Expected: i, Found: idx}
				}
			}
			counts[device] = len(idxs)
		}
		clock[stream] = counts
	}
	return clock, nil
}

// GetAllStreamEvents implements engine.SyncTarget: every stored event for
// stream, grouped by device, as raw EventType-enveloped JSON.
func (s *Store) GetAllStreamEvents(ctx context.Context, stream string) (engine.StreamEvents[string], error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, event_index, event_json, inserted_at
		FROM events WHERE user_id = ? AND stream_id = ?
		ORDER BY device_id, event_index`, s.userID, stream)
	if err != nil {
		return nil, fmt.Errorf("querying stream events: %w", err)
	}
	defer rows.Close()

	out := make(engine.StreamEvents[string])
	for rows.Next() {
		var device string
		var index int
		var eventJSON string
		var insertedAt sql.NullTime
		if err := rows.Scan(&device, &index, &eventJSON, &insertedAt); err != nil {
			return nil, fmt.Errorf("scanning stream event row: %w", err)
		}

		var timestamped engine.Timestamped[json.RawMessage]
		if err := json.Unmarshal([]byte(eventJSON), &timestamped); err != nil {
			return nil, fmt.Errorf("decoding stored event for stream %s device %s index %d: %w", stream, device, index, err)
		}
		out[device] = append(out[device], timestamped)
	}
	return out, rows.Err()
}

// PushEvent implements engine.SyncTarget: insert one event row. Idempotent
// under the unique compound index — a second push of the same
// (stream, device, index) is a no-op rather than an error, so a dropped
// and retried sync never double-inserts.
func (s *Store) PushEvent(ctx context.Context, stream, device string, event engine.Timestamped[json.RawMessage]) error {
	eventJSON, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding event for storage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (user_id, stream_id, device_id, event_index, event_json)
		VALUES (?, ?, ?, ?, ?)`,
		s.userID, stream, device, event.WithinDeviceEventsIndex, string(eventJSON))
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

var _ engine.SyncTarget[string, string] = (*Store)(nil)
