package logging

import (
	"fmt"
	"log/slog"

	"voice3d-server/internal/utils"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
}

// Logger provides access to both slog and the tagged logger used across the server.
type Logger struct {
	legacy *utils.Logger
}

// New creates a Logger backed by the tagged utils logger.
func New(cfg Config) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "data/logs"
	}
	if cfg.Filename == "" {
		cfg.Filename = "server.log"
	}
	legacy, err := utils.NewLogger(&utils.LogCfg{
		LogLevel: cfg.Level,
		LogDir:   cfg.Dir,
		LogFile:  cfg.Filename,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return &Logger{legacy: legacy}, nil
}

// Legacy exposes the tagged logger.
func (l *Logger) Legacy() *utils.Logger {
	return l.legacy
}

// Slog exposes the structured logger for new integrations.
func (l *Logger) Slog() *slog.Logger {
	return l.legacy.Slog()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	return l.legacy.Close()
}
