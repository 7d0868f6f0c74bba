package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"liverelay/internal/api"
	"liverelay/internal/chat"
	"liverelay/internal/config"
	"liverelay/internal/hub"
	"liverelay/internal/monitoring"
	"liverelay/internal/signaling"
	"liverelay/internal/websocket"
)

// Application wires the relay together and owns its lifecycle. Component
// initialization follows dependency order:
// Registry → Stores → Metrics → Routers → Hub → Reaper → Handlers → HTTP.
type Application struct {
	config     *config.Config
	registry   *websocket.Registry
	sessions   *signaling.Store
	rooms      *chat.Store
	messageHub *hub.Hub
	reaper     *signaling.Reaper
	httpServer *http.Server
	log        zerolog.Logger
}

// NewApplication builds the full component graph from a validated config.
func NewApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := websocket.NewRegistry()
	sessions := signaling.NewStore(log)
	rooms := chat.NewStore(log)

	metrics := monitoring.New(
		func() float64 { return float64(registry.Count()) },
		func() float64 { return float64(sessions.Count()) },
		func() float64 { return float64(rooms.Count()) },
	)

	signalingRouter := signaling.NewRouter(sessions, registry, log)
	chatRouter := chat.NewRouter(rooms, registry, log)
	messageHub := hub.New(signalingRouter, chatRouter, metrics, cfg.Relay.RateLimitPerMinute, log)
	reaper := signaling.NewReaper(sessions, cfg.Relay.SessionTTL, cfg.Relay.SweepInterval, log)

	wsHandler := websocket.NewHandler(registry, messageHub, websocket.Options{
		AllowedOrigin:  cfg.HTTP.AllowedOrigin,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, log)

	apiServer := api.NewServer(sessions, rooms, registry, metrics, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/health", apiServer)
	mux.Handle("/api/", apiServer)
	mux.Handle("/metrics", apiServer)

	httpServer := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     mux,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// No WriteTimeout: it would not apply to hijacked WebSocket
		// connections and would cut long scrapes short.
	}

	return &Application{
		config:     cfg,
		registry:   registry,
		sessions:   sessions,
		rooms:      rooms,
		messageHub: messageHub,
		reaper:     reaper,
		httpServer: httpServer,
		log:        log.With().Str("component", "app").Logger(),
	}, nil
}

// Start brings the relay up: hub first so it can route, then the reaper,
// then the HTTP listener.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info().Str("addr", app.httpServer.Addr).Msg("starting relay")

	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	app.reaper.Start()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.reaper.Stop()
		_ = app.messageHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info().Msg("relay started")
		return nil
	case <-ctx.Done():
		app.reaper.Stop()
		_ = app.messageHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the relay down in reverse order: HTTP → reaper → hub. All
// session and room state is in memory by design; clients re-join on restart.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info().Msg("shutting down relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warn().Err(err).Msg("http shutdown error")
	}
	app.reaper.Stop()
	if err := app.messageHub.Stop(); err != nil {
		app.log.Warn().Err(err).Msg("hub shutdown error")
	}

	app.log.Info().Msg("relay shutdown complete")
	return nil
}

// Addr returns the address the HTTP server binds.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
