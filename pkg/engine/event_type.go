package engine

import (
	"encoding/json"
	"fmt"
)

// MetaEvent is the engine-reserved meta-event payload. It is currently
// uninhabited in practice (the engine never constructs one); it exists so a
// future engine version can introduce device-naming or intra-engine
// metadata without changing the wire shape of EventType. A MetaEvent
// received from a peer is accepted and stored, never interpreted.
type MetaEvent struct{}

// ToJSON implements Event for MetaEvent.
func (MetaEvent) ToJSON() (json.RawMessage, error) {
	return json.RawMessage("{}"), nil
}

// eventKind discriminates the two EventType cases on the wire.
type eventKind string

const (
	kindUser eventKind = "User"
	kindMeta eventKind = "Meta"
)

// EventType discriminates a user-defined event from an engine-reserved meta
// event. Its JSON shape is exactly {"User": <E>} or {"Meta": <MetaEvent>}.
type EventType[E any] struct {
	kind eventKind
	user E
	meta MetaEvent
}

// NewUserEvent wraps an application payload.
func NewUserEvent[E any](e E) EventType[E] {
	return EventType[E]{kind: kindUser, user: e}
}

// NewMetaEvent wraps the (currently empty) meta payload.
func NewMetaEvent[E any]() EventType[E] {
	return EventType[E]{kind: kindMeta}
}

// IsUser reports whether this envelope carries a user event.
func (e EventType[E]) IsUser() bool { return e.kind == kindUser }

// User returns the wrapped user payload and true, or the zero value and
// false if this envelope carries a meta event.
func (e EventType[E]) User() (E, bool) {
	return e.user, e.kind == kindUser
}

// ToJSON implements Event for EventType by delegating to the wrapped value.
func (e EventType[E]) ToJSON() (json.RawMessage, error) {
	switch e.kind {
	case kindUser:
		inner, err := toJSONValue(e.user)
		if err != nil {
			return nil, fmt.Errorf("encoding user event: %w", err)
		}
		return json.Marshal(map[string]json.RawMessage{"User": inner})
	case kindMeta:
		inner, err := e.meta.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("encoding meta event: %w", err)
		}
		return json.Marshal(map[string]json.RawMessage{"Meta": inner})
	default:
		return nil, fmt.Errorf("event_type: unknown kind %q", e.kind)
	}
}

// toJSONValue encodes a value as JSON, preferring its Event.ToJSON method if
// present so that nested Event types keep their own wire shape.
func toJSONValue(v any) (json.RawMessage, error) {
	if ev, ok := v.(Event); ok {
		return ev.ToJSON()
	}
	return json.Marshal(v)
}

// DecodeEventType decodes the {"User": ...} | {"Meta": ...} envelope shape,
// using decode to reconstruct the user payload.
func DecodeEventType[E any](raw json.RawMessage, decode Decoder[E]) (EventType[E], error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return EventType[E]{}, fmt.Errorf("decoding event envelope: %w", err)
	}
	if userRaw, ok := envelope["User"]; ok {
		u, err := decode(userRaw)
		if err != nil {
			return EventType[E]{}, fmt.Errorf("decoding user event: %w", err)
		}
		return NewUserEvent(u), nil
	}
	if _, ok := envelope["Meta"]; ok {
		return NewMetaEvent[E](), nil
	}
	return EventType[E]{}, fmt.Errorf("event_type: envelope has neither User nor Meta key")
}
