// Package fsm implements the ConversationFSM: the transition table and
// gate queries (can_speak/can_interrupt) that every audio-emission and
// barge-in decision in callcore is keyed off.
package fsm

import (
	"sync"

	"github.com/callcore-ai/callcore/internal/logging"
	"github.com/callcore-ai/callcore/pkg/frame"
)

const historyLimit = 50

var transitions = map[frame.ConversationState]map[frame.ConversationState]bool{
	frame.StateIdle: {
		frame.StateListening: true,
		frame.StateSpeaking:  true,
		frame.StateEnding:    true,
	},
	frame.StateListening: {
		frame.StateProcessing: true,
		frame.StateIdle:       true,
	},
	frame.StateProcessing: {
		frame.StateSpeaking:      true,
		frame.StateListening:     true,
		frame.StateToolExecuting: true,
	},
	frame.StateSpeaking: {
		frame.StateInterrupted: true,
		frame.StateIdle:        true,
		frame.StateEnding:      true,
	},
	frame.StateInterrupted: {
		frame.StateListening:  true,
		frame.StateProcessing: true,
	},
	frame.StateToolExecuting: {
		frame.StateProcessing: true,
		frame.StateSpeaking:   true,
	},
	frame.StateEnding: {},
}

// Transition records one historical transition attempt for diagnostics.
type Transition struct {
	From, To frame.ConversationState
	Accepted bool
}

// FSM guards ConversationState and is safe for concurrent use. All
// transitions are atomic under a single lock.
type FSM struct {
	mu      sync.Mutex
	state   frame.ConversationState
	history []Transition
	log     logging.Logger
}

// New returns an FSM starting in Idle.
func New(log logging.Logger) *FSM {
	if log == nil {
		log = logging.NoOp{}
	}
	return &FSM{state: frame.StateIdle, log: log}
}

// State returns the current state.
func (f *FSM) State() frame.ConversationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transition attempts from the current state to `to`. Rejected
// transitions log at warn and leave the state unchanged; they never
// return an error to the caller because spec.md §7 treats an invalid
// transition as a no-op, not a failure worth propagating.
func (f *FSM) Transition(to frame.ConversationState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed := transitions[f.state][to]
	f.history = append(f.history, Transition{From: f.state, To: to, Accepted: allowed})
	if len(f.history) > historyLimit {
		f.history = f.history[len(f.history)-historyLimit:]
	}

	if !allowed {
		f.log.Warn("fsm: invalid transition", "from", f.state, "to", to)
		return false
	}
	f.state = to
	return true
}

// CanSpeak is true only in Idle or Processing — the gate for the TTS
// processor deciding whether to transition into Speaking.
func (f *FSM) CanSpeak() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == frame.StateIdle || f.state == frame.StateProcessing
}

// CanInterrupt is true only while Speaking.
func (f *FSM) CanInterrupt() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == frame.StateSpeaking
}

// History returns a copy of the last transitions (bounded to
// historyLimit) for diagnostics.
func (f *FSM) History() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Transition, len(f.history))
	copy(out, f.history)
	return out
}
