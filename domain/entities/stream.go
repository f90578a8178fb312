package entities

// StreamState is the terminal-state machine of one streaming chat request.
//
//	idle -> streaming -> draining -> completed
//	              \-> failed | aborted
//
// Draining is the bounded window after conversation.chat.completed during
// which trailing audio deltas for the same turn may still arrive.
type StreamState string

const (
	StreamIdle      StreamState = "idle"
	StreamStreaming StreamState = "streaming"
	StreamDraining  StreamState = "draining"
	StreamCompleted StreamState = "completed"
	StreamFailed    StreamState = "failed"
	StreamAborted   StreamState = "aborted"
)

var streamTransitions = map[StreamState][]StreamState{
	StreamIdle:      {StreamStreaming},
	StreamStreaming: {StreamDraining, StreamCompleted, StreamFailed, StreamAborted},
	StreamDraining:  {StreamCompleted, StreamFailed, StreamAborted},
	StreamCompleted: {},
	StreamFailed:    {},
	StreamAborted:   {},
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s StreamState) CanTransition(next StreamState) bool {
	for _, allowed := range streamTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state machine has finished.
func (s StreamState) Terminal() bool {
	switch s {
	case StreamCompleted, StreamFailed, StreamAborted:
		return true
	}
	return false
}

// StreamOutcome is the tri-state result of a streaming attempt. Cancellation
// is an outcome, not an error: a user-initiated stop must never surface as a
// failure.
type StreamOutcome int

const (
	OutcomeCompleted StreamOutcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o StreamOutcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// StreamResult reports how a streaming attempt ended. Reason is only set for
// failed outcomes and is safe to show to an end user.
type StreamResult struct {
	Outcome        StreamOutcome
	Reason         string
	ConversationID string
}
