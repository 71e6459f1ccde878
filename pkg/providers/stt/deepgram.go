package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// DeepgramSTT implements ports.STTPort against Deepgram's realtime
// listen websocket, streaming raw audio out and partial/final
// transcripts back for the life of the call.
type DeepgramSTT struct {
	apiKey     string
	wsURL      string
	sampleRate int
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:     apiKey,
		wsURL:      "wss://api.deepgram.com/v1/listen",
		sampleRate: 16000,
	}
}

func (s *DeepgramSTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// StreamTranscribe dials Deepgram's listen endpoint and pumps audio
// chunks from the returned channel into the socket while a reader
// goroutine forwards every interim/final result to onTranscript.
func (s *DeepgramSTT) StreamTranscribe(ctx context.Context, lang string, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprintf("%d", s.sampleRate))
	q.Set("interim_results", "true")
	if lang != "" {
		q.Set("language", lang)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+s.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	audioIn := make(chan []byte, 32)

	go func() {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg deepgramMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type != "Results" || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := msg.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			if err := onTranscript(text, msg.IsFinal); err != nil {
				return
			}
		}
	}()

	go func() {
		keepalive := time.NewTicker(8 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
				conn.Close()
				return
			case chunk, ok := <-audioIn:
				if !ok {
					conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
					conn.Close()
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			case <-keepalive.C:
				conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			}
		}
	}()

	return audioIn, nil
}
