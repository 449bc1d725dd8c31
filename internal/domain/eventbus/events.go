package eventbus

import "time"

const (
	// EventModelReady is the only event pushed to browser observers.
	EventModelReady = "modelReady"

	EventStageChanged   = "session:stage"
	EventPipelineFailed = "pipeline:failed"
	EventFlushTimeout   = "capture:flush_timeout"
)

// ModelReadyEvent announces a published model.
type ModelReadyEvent struct {
	SessionID    string    `json:"session_id"`
	URL          string    `json:"url"`
	RemotePath   string    `json:"remote_path"`
	Version      string    `json:"version"`
	PriorVersion string    `json:"prior_version,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
}

// StageEvent records a controller state transition.
type StageEvent struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// FailureEvent carries a stage failure surfaced to the command caller.
type FailureEvent struct {
	SessionID string `json:"session_id"`
	Stage     string `json:"stage"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// FlushTimeoutEvent reports a capture that missed its write-complete signal.
type FlushTimeoutEvent struct {
	SessionID string        `json:"session_id"`
	Grace     time.Duration `json:"grace"`
	Bytes     int64         `json:"bytes"`
}
