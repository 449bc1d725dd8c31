package ws

import "errors"

var (
	// ErrHandshakeTimeout indicates the websocket handshake exceeded the configured timeout.
	ErrHandshakeTimeout = errors.New("websocket handshake timed out")
	// ErrSessionShutdown is the close cause when the server shuts a session down.
	ErrSessionShutdown = errors.New("websocket session shutdown")
	// ErrSlowObserver closes a session whose send queue stayed full.
	ErrSlowObserver = errors.New("websocket observer too slow")
)
