package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAISTTTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "transcribed text"})
	}))
	defer server.Close()

	s := &OpenAISTT{
		apiKey:     "test-key",
		url:        server.URL,
		model:      "whisper-1",
		sampleRate: 16000,
	}

	result, err := s.transcribe(context.Background(), []byte{0, 0, 0, 0}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "transcribed text" {
		t.Errorf("expected 'transcribed text', got '%s'", result)
	}
	if s.Name() != "openai-stt" {
		t.Errorf("expected openai-stt, got %s", s.Name())
	}
}
