package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voice3d-server/internal/platform/observability"
	"voice3d-server/internal/utils"
)

// Router upgrades HTTP requests into observer sessions.
type Router struct {
	hub    *Hub
	logger *utils.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	sendQueue        int
	baseCtx          context.Context
}

type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	// SendQueue bounds undelivered messages per observer.
	SendQueue int
}

func NewRouter(ctx context.Context, hub *Hub, logger *utils.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin:     opts.CheckOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
		sendQueue:        opts.SendQueue,
		baseCtx:          ctx,
	}
}

// Handle upgrades the connection and registers a session with the hub.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	_, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "upgrade")

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanEnd(err)
		r.logger.ErrorTag("WebSocket", "handshake failed: %v", err)
		return
	}
	spanEnd(nil)
	conn.SetReadLimit(maxInboundMessage)

	// the client id is only a label; two tabs may send the same one
	session := NewSession(r.baseCtx, NewConnection(uuid.NewString(), conn), r.logger, r.sendQueue)
	session.clientID = resolveClientID(req)
	r.hub.Register(session)
	r.logger.InfoTag("WebSocket", "observer %s (%s) connected from %s", session.ID(), session.ClientID(), req.RemoteAddr)

	go session.Run(func(runErr error) {
		r.hub.Unregister(session)
		if runErr != nil {
			r.logger.WarnTag("WebSocket", "observer %s (%s) ended: %v", session.ID(), session.ClientID(), runErr)
			return
		}
		r.logger.InfoTag("WebSocket", "observer %s (%s) disconnected", session.ID(), session.ClientID())
	})
}

func resolveClientID(req *http.Request) string {
	clientID := req.Header.Get("Client-Id")
	if clientID == "" {
		clientID = req.URL.Query().Get("client-id")
	}
	if clientID == "" {
		clientID = "anonymous"
	}
	return clientID
}
