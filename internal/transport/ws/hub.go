package ws

import (
	"sync"

	"voice3d-server/internal/utils"
)

// Hub tracks the connected observers.
type Hub struct {
	logger   *utils.Logger
	sessions sync.Map // session id -> *Session
	onCount  func(int)
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// OnCountChange registers a callback for the observer count. Set it before
// the first Register.
func (h *Hub) OnCountChange(fn func(int)) {
	h.onCount = fn
}

func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	h.sessions.Store(session.ID(), session)
	h.countChanged()
}

// Unregister removes session only while it is still the one stored under
// its id.
func (h *Hub) Unregister(session *Session) {
	if session == nil {
		return
	}
	if h.sessions.CompareAndDelete(session.ID(), session) {
		h.countChanged()
	}
}

// CloseAll terminates every session.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}

	h.sessions.Range(func(key, value any) bool {
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		h.sessions.Delete(key)
		return true
	})
	h.countChanged()
}

// Count is the number of registered observers.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}

// Broadcast queues data on every session without blocking. Closed sessions
// and sessions with a full queue are skipped.
func (h *Hub) Broadcast(data []byte) (delivered, skipped int) {
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok {
			return true
		}
		if session.Enqueue(data) {
			delivered++
		} else {
			skipped++
			h.logger.DebugTag("WebSocket", "skipped observer %s", session.ID())
		}
		return true
	})
	return delivered, skipped
}

func (h *Hub) countChanged() {
	if h.onCount != nil {
		h.onCount(h.Count())
	}
}
