package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voice3d-server/internal/utils"
)

const (
	defaultSendQueue    = 16
	defaultWriteTimeout = 5 * time.Second
	defaultPingInterval = 30 * time.Second
	maxInboundMessage   = 4096
)

// Session is one connected observer. Outbound messages go through a bounded
// queue drained by a single writer goroutine.
type Session struct {
	id       string
	clientID string
	conn     *Connection
	logger   *utils.Logger
	send     chan []byte

	writeTimeout time.Duration
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed atomic.Bool
}

func NewSession(parent context.Context, conn *Connection, logger *utils.Logger, queue int) *Session {
	if queue <= 0 {
		queue = defaultSendQueue
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:           conn.ID(),
		conn:         conn,
		logger:       logger,
		send:         make(chan []byte, queue),
		writeTimeout: defaultWriteTimeout,
		pingInterval: defaultPingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (s *Session) ID() string {
	return s.id
}

// ClientID is the label the client sent with the handshake.
func (s *Session) ClientID() string {
	return s.clientID
}

func (s *Session) Context() context.Context {
	return s.ctx
}

// Enqueue queues data without blocking. It reports false when the session
// is closed or its queue is full.
func (s *Session) Enqueue(data []byte) bool {
	if s.closed.Load() || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Run drives the session until the client leaves or Close is called.
// Inbound frames are read only to detect disconnects.
func (s *Session) Run(onDone func(error)) {
	go s.writeLoop()

	var runErr error
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed.Load() {
				runErr = err
			}
			break
		}
	}

	s.Close(runErr)
	if onDone != nil {
		onDone(runErr)
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg, s.writeTimeout); err != nil {
				s.logger.WarnTag("WebSocket", "session %s write failed: %v", s.id, err)
				s.Close(err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil, s.writeTimeout); err != nil {
				s.Close(err)
				return
			}
		}
	}
}

// Close cancels the session and closes the socket once.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)
	if err := s.conn.Close(); err != nil {
		s.logger.WarnTag("WebSocket", "session %s close failed: %v", s.id, err)
	}
}
