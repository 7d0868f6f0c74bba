package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"liverelay/pkg/interfaces"
	"liverelay/pkg/protocol"
)

// Hub is where decoded inbound traffic goes. Defined locally so the
// websocket package does not depend on the hub implementation.
type Hub interface {
	// Submit queues an inbound envelope for serialized processing.
	Submit(conn interfaces.Connection, env *protocol.Envelope) error
	// Disconnect queues the cleanup for a lost connection.
	Disconnect(conn interfaces.Connection)
}

// Options carries the transport tuning knobs from the config layer.
type Options struct {
	AllowedOrigin  string // "*" disables the origin check
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

// Handler upgrades HTTP requests to WebSocket connections, assigns each a
// connection id, and pumps inbound frames into the hub. Clients carry no
// credentials; identity inside payloads is caller-asserted and the
// connection id is the only identity the relay vouches for.
type Handler struct {
	registry *Registry
	hub      Hub
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, hub Hub, opts Options, log zerolog.Logger) *Handler {
	h := &Handler{
		registry: registry,
		hub:      hub,
		opts:     opts,
		log:      log.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == h.opts.AllowedOrigin
}

// HandleWebSocket upgrades the request and starts the connection's read
// pump. The connection id is assigned here and lives until the socket drops.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(wsConn, uuid.NewString(), h.opts.SendBuffer, h.opts.WriteTimeout)
	if err := h.registry.Register(conn); err != nil {
		h.log.Error().Err(err).Msg("failed to register connection")
		_ = conn.Close()
		return
	}

	h.log.Info().Str("conn", conn.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")
	go h.readPump(conn)
}

// readPump owns the connection lifecycle: heartbeat, inbound decoding, and
// the symmetric cleanup when the socket drops. One goroutine per connection.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		h.hub.Disconnect(conn)
		_ = conn.Close()
		h.log.Info().Str("conn", conn.ID()).Msg("connection closed")
	}()

	conn.conn.SetReadLimit(h.opts.MaxMessageSize)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.opts.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("conn", conn.ID()).Msg("read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.log.Debug().Str("conn", conn.ID()).Msg("dropped unparseable frame")
			continue
		}
		if err := env.Validate(); err != nil {
			h.log.Debug().Err(err).Str("conn", conn.ID()).Str("event", env.Event).
				Msg("dropped invalid frame")
			continue
		}

		if err := h.hub.Submit(conn, &env); err != nil {
			h.log.Warn().Err(err).Str("conn", conn.ID()).Str("event", env.Event).
				Msg("inbound frame dropped")
		}
	}
}
