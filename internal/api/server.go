package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"liverelay/internal/chat"
	"liverelay/internal/monitoring"
	"liverelay/internal/signaling"
)

// Registry is the slice of the connection registry the ops surface needs.
type Registry interface {
	Stats() map[string]int
}

// Server is the read-only ops surface: health, stats, and prometheus
// metrics. The wire protocol is the only way to mutate relay state, so there
// are no session- or room-mutating endpoints here.
type Server struct {
	sessions *signaling.Store
	rooms    *chat.Store
	registry Registry
	metrics  *monitoring.Metrics
	router   *http.ServeMux
	started  time.Time
	log      zerolog.Logger
}

// NewServer creates the ops HTTP server.
func NewServer(sessions *signaling.Store, rooms *chat.Store, registry Registry, metrics *monitoring.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		sessions: sessions,
		rooms:    rooms,
		registry: registry,
		metrics:  metrics,
		router:   http.NewServeMux(),
		started:  time.Now(),
		log:      log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.jsonMiddleware(http.HandlerFunc(s.handleHealth)))
	s.router.Handle("/api/stats", s.jsonMiddleware(http.HandlerFunc(s.handleStats)))
	s.router.Handle("/metrics", s.metrics.Handler())
}

// ServeHTTP implements http.Handler for mounting under the main server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"connections":    s.registry.Stats()["open_connections"],
		"sessions":       s.sessions.Count(),
		"rooms":          s.rooms.Count(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"registry": s.registry.Stats(),
		"sessions": s.sessions.Stats(),
		"rooms":    s.rooms.Stats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
