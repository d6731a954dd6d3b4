// Package gateway runs one inbound webhook delivery through the reply pipeline.
package gateway

// State is a step of the inbound pipeline.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateNormalized   State = "NORMALIZED"
	StateResolved     State = "RESOLVED"
	StatePersistedIn  State = "PERSISTED_IN"
	StateBotSkipped   State = "BOT_SKIPPED"
	StateAIProcessing State = "AI_PROCESSING"
	StateSent         State = "SENT"
	StatePersistedOut State = "PERSISTED_OUT"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the legal successors of each state. FAILED is reachable
// from every non-terminal state and is not listed.
var transitions = map[State][]State{
	StateReceived:     {StateNormalized},
	StateNormalized:   {StateResolved},
	StateResolved:     {StatePersistedIn},
	StatePersistedIn:  {StateBotSkipped, StateAIProcessing, StateDone},
	StateBotSkipped:   {StateDone},
	StateAIProcessing: {StateSent},
	StateSent:         {StatePersistedOut},
	StatePersistedOut: {StateDone},
}

// CanTransition reports whether the pipeline may move from one state to another.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
