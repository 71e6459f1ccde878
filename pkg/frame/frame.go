// Package frame holds the immutable value types that flow through the
// pipeline and the conversation history.
package frame

import "time"

// Encoding identifies the sample encoding carried by an AudioFrame.
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16"
	EncodingMulaw    Encoding = "mulaw"
	EncodingAlaw     Encoding = "alaw"
)

// AudioFrame is an immutable chunk of audio samples. Callers must not
// mutate Data after construction — pass a copy if the source buffer is
// reused.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
	Encoding   Encoding
}

// Role identifies the speaker of a TextFrame or Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// TextFrame is an immutable piece of text attributed to a role.
type TextFrame struct {
	Text string
	Role Role
}

// TranscriptEvent is emitted by the STT processor for both partial and
// final recognitions.
type TranscriptEvent struct {
	Role      Role
	Text      string
	IsPartial bool
	TraceID   string
	Timestamp time.Time
}

// Message is one entry in conversation_history. The history is
// append-only; only the LLM processor writes to it.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
}

// ControlSignal is the sum type carried over the ControlChannel.
type ControlSignal struct {
	Kind   ControlKind
	Text   string // Interrupt: optional replacement text
	Reason string // Cancel / EmergencyStop: optional reason
}

type ControlKind string

const (
	ControlInterrupt      ControlKind = "INTERRUPT"
	ControlCancel         ControlKind = "CANCEL"
	ControlClear          ControlKind = "CLEAR"
	ControlEmergencyStop  ControlKind = "EMERGENCY_STOP"
	ControlPause          ControlKind = "PAUSE"
	ControlResume         ControlKind = "RESUME"
)

// ConversationState enumerates ConversationFSM states.
type ConversationState string

const (
	StateIdle          ConversationState = "IDLE"
	StateListening     ConversationState = "LISTENING"
	StateProcessing    ConversationState = "PROCESSING"
	StateSpeaking      ConversationState = "SPEAKING"
	StateInterrupted   ConversationState = "INTERRUPTED"
	StateToolExecuting ConversationState = "TOOL_EXECUTING"
	StateEnding        ConversationState = "ENDING"
)
