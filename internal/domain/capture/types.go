package capture

import (
	"time"
)

// Status is the lifecycle of one recording session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
	StatusFlushed   Status = "flushed"
	StatusFailed    Status = "failed"
)

// Format describes the PCM stream requested from the device.
// Samples are always signed 16-bit little endian.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond is the raw PCM data rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Session is a snapshot of a recording. Recorder hands out copies only.
type Session struct {
	ID        string
	RawPath   string
	Status    Status
	StartedAt time.Time
	StoppedAt time.Time
	// Bytes is the size of the raw file after the flush.
	Bytes int64
	// Truncated is set when the write-complete signal missed the grace period.
	Truncated bool
	// DroppedFrames counts device frames lost to a full write queue.
	DroppedFrames int64
}

// Duration is the wall-clock capture length.
func (s Session) Duration() time.Duration {
	if s.StoppedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.StoppedAt.Sub(s.StartedAt)
}
