package protocol

import "errors"

var (
	ErrInvalidEnvelope = errors.New("envelope must carry an event name")
	ErrUnknownEvent    = errors.New("unknown inbound event")
	ErrInvalidPayload  = errors.New("payload is not valid JSON")
	ErrInvalidID       = errors.New("id must be 1-128 characters")
)
