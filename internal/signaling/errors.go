package signaling

import "errors"

// Router errors name the reason an inbound frame was dropped. The wire
// protocol has no error channel, so these never reach clients; the hub logs
// and counts them, and tests assert on them.
var (
	ErrUnknownSession = errors.New("session not found")
	ErrNotInstructor  = errors.New("sender is not the session's instructor")
	ErrUnknownTarget  = errors.New("relay target is not connected")
)
