package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liverelay/internal/chat"
	"liverelay/internal/monitoring"
	"liverelay/internal/signaling"
	"liverelay/pkg/interfaces"
	"liverelay/pkg/protocol"
)

// Hub serializes all inbound traffic onto a single goroutine: every handler
// runs to completion before the next message is dispatched, which is the
// concurrency contract both routers are written against. It is also the
// disconnect coordinator — a transport-level drop triggers the same cleanup
// in both the session and chat stores, exactly once each.
type Hub struct {
	inbound     chan *inboundFrame
	disconnects chan interfaces.Connection
	shutdown    chan struct{}

	signaling *signaling.Router
	chat      *chat.Router
	limiter   *RateLimiter
	metrics   *monitoring.Metrics

	running bool
	mu      sync.RWMutex
	log     zerolog.Logger
}

type inboundFrame struct {
	conn interfaces.Connection
	env  *protocol.Envelope
}

// New creates a hub over the two routers. rateLimit is the per-connection
// messages-per-minute cap, 0 to disable.
func New(sig *signaling.Router, chatRouter *chat.Router, metrics *monitoring.Metrics, rateLimit int, log zerolog.Logger) *Hub {
	return &Hub{
		inbound:     make(chan *inboundFrame, 1024),
		disconnects: make(chan interfaces.Connection, 256),
		shutdown:    make(chan struct{}),
		signaling:   sig,
		chat:        chatRouter,
		limiter:     NewRateLimiter(rateLimit),
		metrics:     metrics,
		log:         log.With().Str("component", "hub").Logger(),
	}
}

// Start launches the dispatch loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	go h.run(ctx)
	h.log.Info().Msg("hub started")
	return nil
}

// Stop terminates the dispatch loop. Queued frames are abandoned; clients
// re-join from scratch after a restart anyway.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

// Submit queues an inbound envelope for dispatch. Over-cap and overflow
// frames are dropped here, before they cost anything.
func (h *Hub) Submit(conn interfaces.Connection, env *protocol.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	if !h.limiter.Allow(conn.ID()) {
		h.metrics.DroppedEvents.WithLabelValues("rate-limited").Inc()
		return ErrRateLimited
	}

	select {
	case h.inbound <- &inboundFrame{conn: conn, env: env}:
		return nil
	default:
		h.metrics.DroppedEvents.WithLabelValues("overflow").Inc()
		return ErrInboundChannelFull
	}
}

// Disconnect queues the cleanup for a lost connection. Unlike Submit this
// blocks rather than drops: losing a disconnect would leak store state.
func (h *Hub) Disconnect(conn interfaces.Connection) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.disconnects <- conn:
	case <-h.shutdown:
	}
}

func (h *Hub) run(ctx context.Context) {
	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case frame := <-h.inbound:
			h.dispatch(frame.conn, frame.env)
		case conn := <-h.disconnects:
			h.handleDisconnect(conn)
		case <-cleanup.C:
			h.limiter.Cleanup()
		case <-h.shutdown:
			h.log.Info().Msg("hub stopped")
			return
		case <-ctx.Done():
			h.log.Info().Msg("hub context cancelled")
			return
		}
	}
}

// dispatch routes one envelope to its handler belt and records the outcome.
// The wire protocol has no error channel: a failed handler means the frame
// is dropped silently, observable only here.
func (h *Hub) dispatch(conn interfaces.Connection, env *protocol.Envelope) {
	h.metrics.InboundEvents.WithLabelValues(env.Event).Inc()

	var err error
	switch env.Event {
	case protocol.EventInstructorJoin:
		err = h.signaling.HandleInstructorJoin(conn, env)
	case protocol.EventStudentJoin:
		err = h.signaling.HandleStudentJoin(conn, env)
	case protocol.EventBroadcastStarted:
		err = h.signaling.HandleBroadcastState(conn, env, true)
	case protocol.EventBroadcastStopped:
		err = h.signaling.HandleBroadcastState(conn, env, false)
	case protocol.EventOffer:
		err = h.signaling.HandleOffer(conn, env)
	case protocol.EventAnswer:
		err = h.signaling.HandleAnswer(conn, env)
	case protocol.EventICECandidate:
		err = h.signaling.HandleICECandidate(conn, env)
	case protocol.EventChatJoin:
		err = h.chat.HandleJoin(conn, env)
	case protocol.EventChatMessage:
		err = h.chat.HandleMessage(conn, env)
	case protocol.EventChatTyping:
		err = h.chat.HandleTyping(conn, env)
	case protocol.EventChatLeave:
		err = h.chat.HandleLeave(conn, env)
	default:
		err = protocol.ErrUnknownEvent
	}

	if err != nil {
		reason := dropReason(err)
		h.metrics.DroppedEvents.WithLabelValues(reason).Inc()
		h.log.Debug().Str("conn", conn.ID()).Str("event", env.Event).
			Str("reason", reason).Msg("frame dropped")
	}
}

// handleDisconnect runs both cleanup paths for a lost connection. Ordering
// between the two is unspecified by the protocol; each runs exactly once.
func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	h.signaling.HandleDisconnect(conn)
	h.chat.HandleDisconnect(conn)
	h.limiter.Forget(conn.ID())
}

// dropReason maps a handler error to a stable metrics label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, signaling.ErrNotInstructor):
		return "not-instructor"
	case errors.Is(err, signaling.ErrUnknownTarget):
		return "unknown-target"
	case errors.Is(err, signaling.ErrUnknownSession):
		return "unknown-session"
	case errors.Is(err, chat.ErrNotInRoom):
		return "not-in-room"
	case errors.Is(err, chat.ErrUnknownRoom):
		return "unknown-room"
	case errors.Is(err, protocol.ErrInvalidPayload), errors.Is(err, protocol.ErrInvalidID):
		return "bad-payload"
	case errors.Is(err, protocol.ErrUnknownEvent):
		return "unknown-event"
	default:
		return "error"
	}
}
