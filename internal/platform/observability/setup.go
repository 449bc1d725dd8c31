package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultStageComponents are the span components whose outcomes reach the
// StageRecorder when Config.StageComponents is empty.
var DefaultStageComponents = []string{"pipeline", "session"}

// Config captures observability toggles.
type Config struct {
	Enabled bool
	// StageComponents limits which span components are recorded as stages.
	StageComponents []string
}

func (c Config) records(component string) bool {
	components := c.StageComponents
	if len(components) == 0 {
		components = DefaultStageComponents
	}
	for _, name := range components {
		if name == component {
			return true
		}
	}
	return false
}

// StageRecorder receives span outcomes. *metrics.Metrics satisfies it.
type StageRecorder interface {
	RecordStage(stage string, duration time.Duration, kind string)
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

var (
	stateMu  sync.RWMutex
	spanLog  *slog.Logger
	recorder StageRecorder
	state    Config
)

func current() (*slog.Logger, StageRecorder, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return spanLog, recorder, state
}

// Setup installs the span logger and the stage recorder.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger, rec StageRecorder) (ShutdownFunc, error) {
	stateMu.Lock()
	spanLog = logger
	recorder = rec
	state = cfg
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] span logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBSERVABILITY][SETUP] disabled")
		}
	}
	return func(context.Context) error {
		stateMu.Lock()
		spanLog = nil
		recorder = nil
		state = Config{}
		stateMu.Unlock()
		return nil
	}, nil
}
