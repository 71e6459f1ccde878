package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAssemblyAISTTTranscribePollsToCompletion(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://example.com/audio"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
	})
	mux.HandleFunc("/v2/transcript/abc123", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 2 {
			json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "completed", "text": "assembly transcription"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s := &AssemblyAISTT{apiKey: "test-key", baseURL: server.URL}

	text, err := s.transcribe(context.Background(), []byte{0}, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "assembly transcription" {
		t.Fatalf("expected 'assembly transcription', got %q", text)
	}
	if polls < 2 {
		t.Fatalf("expected the processing status to be polled before completion, got %d polls", polls)
	}
	if s.Name() != "assemblyai-stt" {
		t.Errorf("expected assemblyai-stt, got %q", s.Name())
	}
}
