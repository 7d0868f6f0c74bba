package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

// EnvPrefix is prepended to environment overrides, e.g. LIVERELAY_HTTP_PORT.
const EnvPrefix = "LIVERELAY"

// Config is the full runtime configuration. Values come from defaults, an
// optional YAML file, and LIVERELAY_-prefixed environment variables, in
// ascending precedence.
type Config struct {
	HTTP      HTTP      `fig:"http"`
	WebSocket WebSocket `fig:"websocket"`
	Relay     Relay     `fig:"relay"`
	Log       Log       `fig:"log"`
}

type HTTP struct {
	Host         string        `fig:"host" default:"0.0.0.0"`
	Port         int           `fig:"port" default:"8090"`
	ReadTimeout  time.Duration `fig:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `fig:"write_timeout" default:"30s"`
	// AllowedOrigin is the one cross-origin caller accepted during the
	// WebSocket handshake; "*" accepts any origin.
	AllowedOrigin string `fig:"allowed_origin" default:"*"`
}

type WebSocket struct {
	PingInterval   time.Duration `fig:"ping_interval" default:"30s"`
	PongWait       time.Duration `fig:"pong_wait" default:"60s"`
	WriteTimeout   time.Duration `fig:"write_timeout" default:"10s"`
	SendBuffer     int           `fig:"send_buffer" default:"256"`
	MaxMessageSize int64         `fig:"max_message_size" default:"65536"`
}

type Relay struct {
	// RateLimitPerMinute caps inbound messages per connection; 0 disables.
	RateLimitPerMinute int `fig:"rate_limit_per_minute" default:"300"`
	// SessionTTL is how long an instructorless, student-free placeholder
	// session survives before the reaper deletes it; 0 disables the reaper.
	SessionTTL    time.Duration `fig:"session_ttl" default:"10m"`
	SweepInterval time.Duration `fig:"sweep_interval" default:"1m"`
}

type Log struct {
	Debug  bool `fig:"debug"`
	Pretty bool `fig:"pretty"`
}

// Load builds the configuration. A .env file is applied to the process
// environment first when present, then fig layers defaults, the optional
// config file, and environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path == "" {
		opts = append(opts, fig.IgnoreFile())
	} else {
		dir, file := filepath.Split(path)
		if dir == "" {
			dir = "."
		}
		opts = append(opts, fig.File(file), fig.Dirs(dir))
	}

	if err := fig.Load(&cfg, opts...); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http write timeout must be positive")
	}
	if c.HTTP.AllowedOrigin == "" {
		return fmt.Errorf("allowed origin cannot be empty, use \"*\" to allow any")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket pong wait must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max message size must be positive")
	}
	if c.Relay.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Relay.SessionTTL < 0 {
		return fmt.Errorf("session ttl cannot be negative")
	}
	if c.Relay.SessionTTL > 0 && c.Relay.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive when session ttl is set")
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
