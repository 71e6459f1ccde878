// Package ports declares the explicit interfaces the core depends on for
// every external collaborator: STT/LLM/TTS providers, repositories, and
// tools. Per spec.md §9, the Orchestrator only ever sees ports —
// concrete providers (pkg/providers) are chosen at startup by name in
// cmd/callcore's buildSTT/buildLLM switches.
package ports

import (
	"context"
	"time"

	"github.com/callcore-ai/callcore/pkg/frame"
)

// STTPort streams inbound audio and yields partial/final transcripts.
type STTPort interface {
	Name() string
	// StreamTranscribe starts a streaming recognition session for lang.
	// onTranscript is called for every partial and final recognition.
	// The returned channel accepts raw audio chunks; closing ctx tears
	// the session down.
	StreamTranscribe(ctx context.Context, lang string, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
}

// LLMChunk is one item yielded by LLMPort.Stream — a sum type over text,
// a function call, and stream completion.
type LLMChunk struct {
	Text         string
	FunctionCall *FunctionCall
	FinishReason string // "", "stop", "tool_calls", "length"
}

// FunctionCall is a tool invocation requested by the model mid-stream.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// LLMPort drives text generation. Stream must be cancellable via ctx and
// cancellation must be idempotent and side-effect free beyond stopping
// generation.
type LLMPort interface {
	Name() string
	Stream(ctx context.Context, messages []frame.Message, tools []ToolSchema, onChunk func(LLMChunk) error) error
}

// ToolSchema is the shape an LLMPort needs to expose a tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// TTSPort synthesizes SSML into carrier-format audio bytes, streamed in
// chunks as they become available.
type TTSPort interface {
	Name() string
	StreamSynthesize(ctx context.Context, ssml string, voice string, lang string, onChunk func([]byte) error) error
	// Abort forcibly tears down any in-flight synthesis (e.g. a
	// persistent websocket connection) on barge-in, beyond what ctx
	// cancellation alone guarantees.
	Abort() error
}

// CallRecord is the persisted shape of one call.
type CallRecord struct {
	ID            string
	SessionID     string
	ClientType    string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	ExtractedData map[string]any
}

// CallRepository persists call lifecycle records.
type CallRepository interface {
	CreateCall(ctx context.Context, rec CallRecord) (string, error)
	EndCall(ctx context.Context, id string, status string, extracted map[string]any) error
}

// TranscriptEntry is one persisted transcript line.
type TranscriptEntry struct {
	CallID    string
	Role      frame.Role
	Content   string
	Timestamp time.Time
}

// TranscriptRepository persists the per-call transcript log.
type TranscriptRepository interface {
	Append(ctx context.Context, entry TranscriptEntry) error
}

// CRMContext is the best-effort prior-notes lookup keyed by phone number.
type CRMContext struct {
	PhoneNumber string
	Notes       string
	Found       bool
}

// CRMRepository is a best-effort, non-fatal-on-failure lookup.
type CRMRepository interface {
	Lookup(ctx context.Context, phoneNumber string) (CRMContext, error)
	UpdateStatus(ctx context.Context, phoneNumber string, status string) error
}

// ConfigRepository loads the persisted AgentConfig DTO by agent ID.
type ConfigRepository interface {
	Get(ctx context.Context, agentID string) ([]byte, error) // raw YAML/JSON bytes
}
