package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/callcore-ai/callcore/internal/logging"
)

// TelephonyCarrier distinguishes the two supported telephony vendors,
// which differ in envelope field names and outbound track tagging.
type TelephonyCarrier string

const (
	CarrierTwilio TelephonyCarrier = "twilio"
	CarrierTelnyx TelephonyCarrier = "telnyx"
)

// twilioEnvelope models both Twilio and Telnyx Media Streams messages;
// Telnyx additionally uses stream_id/client_state where Twilio uses
// streamSid, so both are decoded defensively.
type twilioEnvelope struct {
	Event       string          `json:"event"`
	StreamSid   string          `json:"streamSid,omitempty"`
	StreamID    string          `json:"stream_id,omitempty"`
	ClientState string          `json:"client_state,omitempty"`
	Media       *mediaPayload   `json:"media,omitempty"`
	Start       json.RawMessage `json:"start,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
	Track   string `json:"track,omitempty"`
}

// TelephonyTransport implements AudioTransport for Twilio/Telnyx Media
// Streams, framing outbound audio as {event:"media", streamSid|stream_id,
// media:{payload:base64, track?}}.
type TelephonyTransport struct {
	conn     *websocket.Conn
	carrier  TelephonyCarrier
	log      logging.Logger
	mu       sync.Mutex
	streamID string
	inbound  chan InboundFrame
}

// NewTelephonyTransport wraps an upgraded websocket connection for the
// given carrier and starts its read pump.
func NewTelephonyTransport(conn *websocket.Conn, carrier TelephonyCarrier, log logging.Logger) *TelephonyTransport {
	if log == nil {
		log = logging.NoOp{}
	}
	t := &TelephonyTransport{
		conn:    conn,
		carrier: carrier,
		log:     log,
		inbound: make(chan InboundFrame, 64),
	}
	go t.readPump()
	return t
}

func (t *TelephonyTransport) readPump() {
	defer close(t.inbound)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.inbound <- InboundFrame{Type: InboundError, Err: err}
			return
		}

		var env twilioEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("transport: malformed telephony envelope", "error", err)
			continue
		}

		switch env.Event {
		case "start":
			id := env.StreamSid
			if id == "" {
				id = env.StreamID
			}
			t.SetStreamID(id)
			var clientState []byte
			if env.ClientState != "" {
				if decoded, err := base64.StdEncoding.DecodeString(env.ClientState); err == nil {
					clientState = decoded
				}
			}
			t.inbound <- InboundFrame{Type: InboundStart, StreamID: id, ClientState: clientState}
		case "media":
			if env.Media == nil {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(env.Media.Payload)
			if err != nil {
				continue // spec.md §7: codec/base64 decode failure drops the frame silently
			}
			t.inbound <- InboundFrame{Type: InboundMedia, Audio: audio}
		case "stop":
			t.inbound <- InboundFrame{Type: InboundStop}
			return
		}
	}
}

// SendAudio base64-encodes audio and wraps it in the carrier's media
// envelope. For Telnyx, outbound media is tagged track="inbound_track" so
// the caller hears it.
func (t *TelephonyTransport) SendAudio(ctx context.Context, audio []byte) error {
	media := &mediaPayload{Payload: base64.StdEncoding.EncodeToString(audio)}
	if t.carrier == CarrierTelnyx {
		media.Track = "inbound_track"
	}
	env := twilioEnvelope{Event: "media", Media: media}
	t.attachStreamID(&env)
	return t.writeJSON(env)
}

func (t *TelephonyTransport) SendJSON(ctx context.Context, obj any) error {
	return t.writeJSON(obj)
}

func (t *TelephonyTransport) writeJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *TelephonyTransport) attachStreamID(env *twilioEnvelope) {
	id := t.StreamID()
	if id == "" {
		return
	}
	if t.carrier == CarrierTelnyx {
		env.StreamID = id
	} else {
		env.StreamSid = id
	}
}

func (t *TelephonyTransport) SetStreamID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamID == "" {
		t.streamID = id
	}
}

func (t *TelephonyTransport) StreamID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streamID
}

func (t *TelephonyTransport) Close() error {
	return t.conn.Close()
}

func (t *TelephonyTransport) Inbound() <-chan InboundFrame {
	return t.inbound
}
