package eventbus

import (
	"voice3d-server/internal/utils"
)

// LogHandler writes lifecycle events to the tagged logger.
type LogHandler struct {
	logger *utils.Logger
}

// NewLogHandler creates a handler that logs through logger.
func NewLogHandler(logger *utils.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Attach subscribes the handler to the lifecycle topics on bus.
func (h *LogHandler) Attach(bus *AsyncEventBus) error {
	if err := bus.Subscribe(EventStageChanged, h.handleStage); err != nil {
		return err
	}
	if err := bus.Subscribe(EventPipelineFailed, h.handleFailure); err != nil {
		return err
	}
	if err := bus.Subscribe(EventFlushTimeout, h.handleFlushTimeout); err != nil {
		return err
	}
	return bus.Subscribe(EventModelReady, h.handleModelReady)
}

func (h *LogHandler) handleStage(evt StageEvent) {
	h.logger.DebugTag("Session", "session %s: %s -> %s", evt.SessionID, evt.From, evt.To)
}

func (h *LogHandler) handleFailure(evt FailureEvent) {
	h.logger.ErrorTag("Pipeline", "session %s failed at %s (%s): %s", evt.SessionID, evt.Stage, evt.Kind, evt.Message)
}

func (h *LogHandler) handleFlushTimeout(evt FlushTimeoutEvent) {
	h.logger.WarnTag("Capture", "session %s: no write-complete within %s, continuing with %d bytes", evt.SessionID, evt.Grace, evt.Bytes)
}

func (h *LogHandler) handleModelReady(evt ModelReadyEvent) {
	h.logger.InfoTag("Notify", "model ready for session %s at %s (version %s)", evt.SessionID, evt.URL, evt.Version)
}
