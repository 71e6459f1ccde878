package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/callcore-ai/callcore/internal/logging"
)

type browserEnvelope struct {
	Type  string `json:"type,omitempty"`
	Event string `json:"event,omitempty"`
	Data  string `json:"data,omitempty"`
	Role  string `json:"role,omitempty"`
	Text  string `json:"text,omitempty"`
}

// BrowserTransport implements AudioTransport for a direct browser
// WebSocket: inbound audio is 16kHz linear PCM base64 {type:"audio",
// data:...}; outbound adds {event:"clear"} for barge-in and
// {type:"transcript", role, text} for UI display.
type BrowserTransport struct {
	conn     *websocket.Conn
	log      logging.Logger
	mu       sync.Mutex
	streamID string
	inbound  chan InboundFrame
}

func NewBrowserTransport(conn *websocket.Conn, log logging.Logger) *BrowserTransport {
	if log == nil {
		log = logging.NoOp{}
	}
	t := &BrowserTransport{conn: conn, log: log, inbound: make(chan InboundFrame, 64)}
	go t.readPump()
	return t
}

func (t *BrowserTransport) readPump() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.inbound <- InboundFrame{Type: InboundError, Err: err}
			return
		}

		var env browserEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("transport: malformed browser envelope", "error", err)
			continue
		}

		switch {
		case env.Type == "audio":
			audio, err := base64.StdEncoding.DecodeString(env.Data)
			if err != nil {
				continue
			}
			t.inbound <- InboundFrame{Type: InboundMedia, Audio: audio}
		case env.Event == "clear":
			t.inbound <- InboundFrame{Type: InboundClear}
		case env.Event == "stop":
			t.inbound <- InboundFrame{Type: InboundStop}
			return
		}
	}
}

// SendAudio base64-encodes linear PCM and wraps it in {type:"audio"}.
func (t *BrowserTransport) SendAudio(ctx context.Context, audio []byte) error {
	return t.writeJSON(browserEnvelope{Type: "audio", Data: base64.StdEncoding.EncodeToString(audio)})
}

// SendTranscript pushes a UI-facing transcript line.
func (t *BrowserTransport) SendTranscript(role, text string) error {
	return t.writeJSON(browserEnvelope{Type: "transcript", Role: role, Text: text})
}

// SendClear tells the browser to flush its own playback queue on barge-in.
func (t *BrowserTransport) SendClear() error {
	return t.writeJSON(browserEnvelope{Event: "clear"})
}

func (t *BrowserTransport) SendJSON(ctx context.Context, obj any) error {
	return t.writeJSON(obj)
}

func (t *BrowserTransport) writeJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *BrowserTransport) SetStreamID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamID == "" {
		t.streamID = id
	}
}

func (t *BrowserTransport) StreamID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamID
}

func (t *BrowserTransport) Close() error {
	return t.conn.Close()
}

func (t *BrowserTransport) Inbound() <-chan InboundFrame {
	return t.inbound
}
