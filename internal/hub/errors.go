package hub

import "errors"

var (
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrInboundChannelFull = errors.New("inbound channel is full")
	ErrRateLimited        = errors.New("connection exceeded message rate cap")
)
