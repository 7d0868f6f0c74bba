package chat

import "errors"

// Chat router errors, internal-only: the wire stays silent on drops.
var (
	ErrUnknownRoom = errors.New("room not found")
	ErrNotInRoom   = errors.New("sender is not a participant of the room")
)
