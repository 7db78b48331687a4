// Package engine implements the local-first, per-user, multi-device
// event-sourced state engine: per-stream device logs, dirty tracking,
// the vector-clock sync protocol, and the reducer contract.
package engine

import "encoding/json"

// Event is the contract an application payload must satisfy to be stored in
// a stream. Implementations must round-trip losslessly through JSON:
// decoding the bytes produced by ToJSON must reproduce an equal value.
type Event interface {
	ToJSON() (json.RawMessage, error)
}

// Value is the full contract for an application-defined event payload: JSON
// round-trip via Event, plus a total order. Merge ties are broken by device
// and then within-device index, never by this order (see
// EventStreamStore.Iter).
type Value[E any] interface {
	Event
	// Compare returns <0, 0, or >0 as the receiver is less than, equal to,
	// or greater than other. Only used to satisfy container ordering
	// requirements; it never drives the merged stream order (see §4.2).
	Compare(other E) int
}

// Decoder reconstructs an E from its JSON encoding. The engine cannot call a
// static "from_json" the way the original Rust trait does, so decoders are
// supplied explicitly wherever a stream is first created or accessed
// type-erased (mirrors core.Block's Factory pattern: reconstruction is a
// value the caller provides, not a method the engine invents on the type).
type Decoder[E any] func(json.RawMessage) (E, error)
