package interfaces

// Connection is the transport-level identity of one client. The routers only
// ever see this interface; the gorilla-backed implementation lives in
// internal/websocket and tests substitute in-memory fakes.
type Connection interface {
	// ID returns the server-assigned connection id, the only identity the
	// relay vouches for. All other ids on the wire are caller-asserted.
	ID() string

	// WriteJSON queues an outbound frame. Implementations must serialize
	// writes internally; sends are fire-and-forget and never block the
	// caller beyond the queueing step.
	WriteJSON(v any) error

	// Close tears the connection down and releases its resources.
	Close() error
}
