package audio

import (
	"bytes"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestExtractPCMRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	wav := NewWavBuffer(pcm, 8000)

	got, err := ExtractPCM(wav)
	if err != nil {
		t.Fatalf("ExtractPCM: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("ExtractPCM = %v, want %v", got, pcm)
	}
}

func TestExtractPCMNoDataChunk(t *testing.T) {
	if _, err := ExtractPCM([]byte("not a wav file")); err != ErrNoDataChunk {
		t.Errorf("expected ErrNoDataChunk, got %v", err)
	}
}
