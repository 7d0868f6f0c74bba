package protocol

import "encoding/json"

// Session and room ids are caller-chosen opaque strings. Validation only
// guards against empty keys and unbounded map keys, not format.
const maxIDLength = 128

// IsValidID checks a caller-supplied session/room/user id.
func IsValidID(id string) bool {
	return len(id) >= 1 && len(id) <= maxIDLength
}

// Validate checks that an inbound envelope names a known event and carries
// a syntactically valid payload. Payload field semantics are checked by the
// routers; malformed frames never reach them.
func (e *Envelope) Validate() error {
	if e.Event == "" {
		return ErrInvalidEnvelope
	}
	if !IsInboundEvent(e.Event) {
		return ErrUnknownEvent
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return ErrInvalidPayload
	}
	return nil
}

// Decode unmarshals the envelope payload into an event-specific struct.
func (e *Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}
