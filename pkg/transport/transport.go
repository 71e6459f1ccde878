// Package transport implements the AudioTransport interface (spec.md
// §4.2) over a server-side WebSocket connection, in telephony and
// browser variants sharing the same carrier-agnostic surface.
package transport

import (
	"context"
)

// AudioTransport is the bidirectional binding to one carrier connection.
type AudioTransport interface {
	// SendAudio encodes and frames raw audio bytes per the carrier's
	// envelope and writes it to the connection.
	SendAudio(ctx context.Context, audio []byte) error
	// SendJSON writes an arbitrary control/event object as the carrier's
	// native JSON message.
	SendJSON(ctx context.Context, obj any) error
	// SetStreamID attaches the carrier-assigned stream identifier (known
	// only after the carrier's "start" event); subsequent outbound
	// envelopes include it. Safe to call once; later calls are no-ops.
	SetStreamID(id string)
	StreamID() string
	Close() error
	// Inbound returns the channel of decoded InboundFrame values. The
	// channel is closed when the underlying connection closes.
	Inbound() <-chan InboundFrame
}

// InboundFrameType distinguishes the carrier message types a transport
// surfaces to the pipeline.
type InboundFrameType string

const (
	InboundMedia InboundFrameType = "media"
	InboundStart InboundFrameType = "start"
	InboundStop  InboundFrameType = "stop"
	InboundClear InboundFrameType = "clear" // browser barge-in ack
	InboundError InboundFrameType = "error"
)

// InboundFrame is a decoded message from the carrier.
type InboundFrame struct {
	Type        InboundFrameType
	Audio       []byte // decoded (base64-decoded) audio payload, for InboundMedia
	StreamID    string // set on InboundStart
	ClientState []byte // opaque base64-decoded blob Telnyx round-trips, for InboundStart
	Err         error
}

// Conn is the minimal surface transport needs from a websocket
// connection, satisfied by *gorilla/websocket.Conn. TelephonyTransport and
// BrowserTransport take a *websocket.Conn directly, not this interface.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	Close() error
}
