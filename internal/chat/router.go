package chat

import (
	"time"

	"github.com/rs/zerolog"

	"liverelay/pkg/interfaces"
	"liverelay/pkg/protocol"
)

// Registry is the connection lookup the router needs, defined locally so
// tests can register fakes.
type Registry interface {
	Get(connID string) (interfaces.Connection, bool)
}

// Router implements room-scoped fan-out chat, independent of signaling
// sessions: a room id need not match a session id, callers just tend to
// align them. No history is kept; late joiners get no backlog.
type Router struct {
	store    *Store
	registry Registry
	log      zerolog.Logger
}

// NewRouter creates a chat router over the given store and registry.
func NewRouter(store *Store, registry Registry, log zerolog.Logger) *Router {
	return &Router{
		store:    store,
		registry: registry,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// HandleJoin records the sender in the room, creating it if absent, and
// tells the other participants. The joiner gets no echo.
func (r *Router) HandleJoin(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.ChatJoin
	if err := env.Decode(&p); err != nil {
		return err
	}
	if !protocol.IsValidID(p.RoomID) {
		return protocol.ErrInvalidID
	}

	others := r.store.Join(p.RoomID, conn.ID(), Participant{
		UserID:   p.UserID,
		UserName: p.UserName,
		UserRole: p.UserRole,
		JoinedAt: time.Now(),
	})

	for _, connID := range others {
		r.send(connID, protocol.EventUserJoinedChat, protocol.UserJoinedChat{
			UserID:   p.UserID,
			UserName: p.UserName,
			UserRole: p.UserRole,
		})
	}

	r.log.Info().Str("room", p.RoomID).Str("conn", conn.ID()).Str("user", p.UserID).
		Msg("joined chat room")
	return nil
}

// HandleMessage fans a message out to every participant of the room,
// including the sender: the echo is the sender's delivery confirmation. The
// message body is relayed byte-identical.
func (r *Router) HandleMessage(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.ChatMessage
	if err := env.Decode(&p); err != nil {
		return err
	}

	members, ok := r.store.Members(p.RoomID, conn.ID())
	if !ok {
		return ErrNotInRoom
	}

	for _, connID := range members {
		r.send(connID, protocol.EventNewMessage, protocol.NewMessage{
			Message: p.Message,
			RoomID:  p.RoomID,
		})
	}
	return nil
}

// HandleTyping relays a typing indicator to the other participants. The
// server enforces no debounce or timeout; the client is responsible for
// eventually sending isTyping:false.
func (r *Router) HandleTyping(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.ChatTyping
	if err := env.Decode(&p); err != nil {
		return err
	}

	others, ok := r.store.Others(p.RoomID, conn.ID())
	if !ok {
		return ErrNotInRoom
	}

	for _, connID := range others {
		r.send(connID, protocol.EventUserTyping, protocol.UserTyping{
			UserID:   p.UserID,
			UserName: p.UserName,
			IsTyping: p.IsTyping,
		})
	}
	return nil
}

// HandleLeave removes the sender from the room, tells the remaining
// participants, and deletes the room if it is now empty.
func (r *Router) HandleLeave(conn interfaces.Connection, env *protocol.Envelope) error {
	var p protocol.ChatLeave
	if err := env.Decode(&p); err != nil {
		return err
	}

	_, remaining, ok := r.store.Leave(p.RoomID, conn.ID())
	if !ok {
		return ErrNotInRoom
	}

	for _, connID := range remaining {
		r.send(connID, protocol.EventUserLeftChat, protocol.UserLeftChat{UserID: p.UserID})
	}

	r.log.Info().Str("room", p.RoomID).Str("conn", conn.ID()).Msg("left chat room")
	return nil
}

// HandleDisconnect performs the chat-side cleanup for a lost connection:
// the connection is removed from every room it joined, each room's remaining
// participants are notified with the stored userId, and emptied rooms are
// deleted.
func (r *Router) HandleDisconnect(conn interfaces.Connection) {
	for _, dep := range r.store.RemoveConn(conn.ID()) {
		for _, connID := range dep.Remaining {
			r.send(connID, protocol.EventUserLeftChat,
				protocol.UserLeftChat{UserID: dep.Participant.UserID})
		}
	}
}

// send delivers an event to a connection id; sends to departed connections
// are no-ops.
func (r *Router) send(connID, event string, payload any) {
	conn, ok := r.registry.Get(connID)
	if !ok {
		return
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		r.log.Debug().Err(err).Str("event", event).Str("conn", connID).
			Msg("outbound send dropped")
	}
}
