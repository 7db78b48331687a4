package main

import (
	"encoding/json"
	"strings"

	"github.com/rubiojr/weapon/pkg/engine"
)

// JournalEntry is the demo CLI's only event type: a single line of free
// text appended to a named journal stream. It exists purely to exercise
// the engine's Event/Value contract end-to-end (create/append/sync/fold).
type JournalEntry struct {
	Text string `json:"text"`
}

// ToJSON implements engine.Event.
func (j JournalEntry) ToJSON() (json.RawMessage, error) {
	return json.Marshal(j)
}

// Compare implements engine.Value's total order, used only to satisfy
// container ordering requirements — never to decide the merged stream
// order (engine.EventStreamStore.Iter uses timestamp/device/index).
func (j JournalEntry) Compare(other JournalEntry) int {
	return strings.Compare(j.Text, other.Text)
}

var _ engine.Value[JournalEntry] = JournalEntry{}

// decodeJournalEntry is the engine.Decoder bound to every journal stream.
func decodeJournalEntry(raw json.RawMessage) (JournalEntry, error) {
	var j JournalEntry
	if err := json.Unmarshal(raw, &j); err != nil {
		return JournalEntry{}, err
	}
	return j, nil
}

// journalState is the example reducer's folded view: every entry in
// merged order, demonstrating the fold contract against a real event type
// (pkg/engine/examples_test.go exercises the same contract with a
// synthetic counter type).
type journalState struct {
	Lines []string
}

func applyJournalEvent(state journalState, event engine.Timestamped[engine.EventType[JournalEntry]]) journalState {
	entry, ok := event.Event.User()
	if !ok {
		return state // meta events carry no content to fold today
	}
	state.Lines = append(state.Lines, entry.Text)
	return state
}
