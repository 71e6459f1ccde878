package stt

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStreamViaBatchingFlushesOnChannelClose(t *testing.T) {
	var mu sync.Mutex
	var gotPCM []byte
	var calls int

	transcribe := func(ctx context.Context, pcm []byte) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		gotPCM = pcm
		return "hello world", nil
	}

	var transcript string
	var isFinal bool
	done := make(chan struct{})
	onTranscript := func(text string, final bool) error {
		transcript = text
		isFinal = final
		close(done)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audioIn := streamViaBatching(ctx, transcribe, onTranscript)
	audioIn <- []byte{1, 2}
	audioIn <- []byte{3, 4}
	close(audioIn)

	<-done

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one transcribe call, got %d", calls)
	}
	if len(gotPCM) != 4 {
		t.Fatalf("expected buffered chunks to concatenate to 4 bytes, got %d", len(gotPCM))
	}
	if transcript != "hello world" || !isFinal {
		t.Fatalf("expected final transcript 'hello world', got %q final=%v", transcript, isFinal)
	}
}

func TestStreamViaBatchingFlushesOnContextCancel(t *testing.T) {
	calledCh := make(chan []byte, 1)
	transcribe := func(ctx context.Context, pcm []byte) (string, error) {
		calledCh <- pcm
		return "text", nil
	}
	onTranscript := func(text string, final bool) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	audioIn := streamViaBatching(ctx, transcribe, onTranscript)
	audioIn <- []byte{9}
	cancel()

	select {
	case pcm := <-calledCh:
		if len(pcm) != 1 {
			t.Fatalf("expected 1 buffered byte, got %d", len(pcm))
		}
	case <-time.After(time.Second):
		t.Fatal("expected transcribe to be called after context cancellation")
	}
}
