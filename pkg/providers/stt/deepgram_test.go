package stt

import "testing"

func TestNewDeepgramSTTDefaults(t *testing.T) {
	s := NewDeepgramSTT("test-key")
	if s.Name() != "deepgram-stt" {
		t.Errorf("expected deepgram-stt, got %q", s.Name())
	}
	if s.sampleRate != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", s.sampleRate)
	}
	s.SetSampleRate(8000)
	if s.sampleRate != 8000 {
		t.Errorf("expected 8000, got %d", s.sampleRate)
	}
}

func TestDeepgramStreamTranscribeRejectsBadURL(t *testing.T) {
	s := NewDeepgramSTT("test-key")
	s.wsURL = "://not-a-url"
	if _, err := s.StreamTranscribe(nil, "en", nil); err == nil {
		t.Fatal("expected an error parsing a malformed websocket URL")
	}
}
