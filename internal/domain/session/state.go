package session

import "fmt"

// State is the controller's position in the record-to-publish chain.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateStopping     State = "stopping"
	StateFlushed      State = "flushed"
	StateNormalizing  State = "normalizing"
	StateTranscribing State = "transcribing"
	StateGenerating   State = "generating"
	StatePublishing   State = "publishing"
	StateFailed       State = "failed"
)

var transitions = map[State][]State{
	StateIdle:         {StateRecording, StateFlushed},
	StateRecording:    {StateStopping},
	StateStopping:     {StateFlushed},
	StateFlushed:      {StateNormalizing},
	StateNormalizing:  {StateTranscribing},
	StateTranscribing: {StateGenerating},
	StateGenerating:   {StatePublishing},
	StatePublishing:   {StateIdle},
	StateFailed:       {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge.
// Failed is reachable from every state.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.from, e.to)
}
