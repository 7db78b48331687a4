// Package remote is the remote authoritative sync target: an HTTPS client
// against a Postgres-like row store, bearer-token authenticated,
// implementing the same engine.SyncTarget capability the local store
// implements.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/rubiojr/weapon/pkg/elog"
	"github.com/rubiojr/weapon/pkg/engine"
)

var log = elog.ForComponent("sync/remote")

// Config carries the remote store's connection environment: a base URL
// and a bearer/anonymous key.
type Config struct {
	BaseURL      string
	AnonymousKey string
	UserID       string
	// HTTPTimeout bounds each individual request; defaults to 30s.
	HTTPTimeout time.Duration
}

// Store is the remote authoritative sync target.
type Store struct {
	baseURL string
	userID  string
	client  *http.Client
}

// New builds a Store from cfg, wiring an oauth2 static bearer token
// client.
func New(cfg Config) *Store {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AnonymousKey})
	client := oauth2.NewClient(context.Background(), ts)
	client.Timeout = timeout

	return &Store{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		userID:  cfg.UserID,
		client:  client,
	}
}

// Name implements engine.SyncTarget.
func (s *Store) Name() string { return "remote:" + s.userID }

// eventRow is the remote store's wire shape: the persistent-store row
// fields plus a server-assigned insertion time.
type eventRow struct {
	UserID         string          `json:"user_id"`
	StreamID       string          `json:"stream_id"`
	DeviceID       string          `json:"device_id"`
	EventIndex     int             `json:"event_index"`
	Event          json.RawMessage `json:"event"`
	ServerInserted time.Time       `json:"server_inserted_at"`
}

// Streams implements engine.SyncTarget via GET /streams?user_id=....
func (s *Store) Streams(ctx context.Context) ([]string, error) {
	var out struct {
		Streams []string `json:"streams"`
	}
	if err := s.getJSON(ctx, "/streams", url.Values{"user_id": {s.userID}}, &out); err != nil {
		return nil, err
	}
	return out.Streams, nil
}

// GetClock implements engine.SyncTarget via GET /clock, a materialised
// per-(stream,device) value that is used as-is as the event count.
func (s *Store) GetClock(ctx context.Context, onlyStream *string) (engine.Clock[string, string], error) {
	params := url.Values{"user_id": {s.userID}}
	if onlyStream != nil {
		params.Set("stream_id", *onlyStream)
	}

	var out struct {
		Clock map[string]map[string]int `json:"clock"`
	}
	if err := s.getJSON(ctx, "/clock", params, &out); err != nil {
		return nil, err
	}
	return engine.Clock[string, string](out.Clock), nil
}

// GetAllStreamEvents implements engine.SyncTarget via GET /events.
func (s *Store) GetAllStreamEvents(ctx context.Context, stream string) (engine.StreamEvents[string], error) {
	var out struct {
		Events []eventRow `json:"events"`
	}
	params := url.Values{"user_id": {s.userID}, "stream_id": {stream}}
	if err := s.getJSON(ctx, "/events", params, &out); err != nil {
		return nil, err
	}

	result := make(engine.StreamEvents[string])
	for _, row := range out.Events {
		result[row.DeviceID] = append(result[row.DeviceID], engine.Timestamped[json.RawMessage]{
			Timestamp:               row.ServerInserted,
			WithinDeviceEventsIndex: row.EventIndex,
			Event:                   row.Event,
		})
	}
	return result, nil
}

// PushEvent implements engine.SyncTarget via POST /events, one row per
// call.
func (s *Store) PushEvent(ctx context.Context, stream, device string, event engine.Timestamped[json.RawMessage]) error {
	body := eventRow{
		UserID:     s.userID,
		StreamID:   stream,
		DeviceID:   device,
		EventIndex: event.WithinDeviceEventsIndex,
		Event:      event.Event,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding event row: %w", err)
	}
	return s.postJSON(ctx, "/events", payload)
}

func (s *Store) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

func (s *Store) postJSON(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	log.Debugf("pushed event to %s", path)
	return nil
}

var _ engine.SyncTarget[string, string] = (*Store)(nil)
