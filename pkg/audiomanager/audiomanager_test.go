package audiomanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/callcore-ai/callcore/pkg/codec"
	"github.com/callcore-ai/callcore/pkg/transport"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) SendAudio(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeTransport) SendJSON(ctx context.Context, obj any) error { return nil }
func (f *fakeTransport) SetStreamID(id string)                      {}
func (f *fakeTransport) StreamID() string                           { return "" }
func (f *fakeTransport) Close() error                               { return nil }
func (f *fakeTransport) Inbound() <-chan transport.InboundFrame      { return nil }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSendChunkedSplitsIntoTelephonyFrames(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, FormatMulawTelephony, nil)
	pcm := make([]int16, telephonyFrame*2+10)
	m.SendChunked(pcm)

	m.mu.Lock()
	got := len(m.queue)
	m.mu.Unlock()
	if got != 3 {
		t.Fatalf("expected 3 queued frames, got %d", got)
	}
	if !m.IsSpeaking() {
		t.Errorf("expected IsSpeaking true after enqueue")
	}
}

func TestClearQueueDropsPending(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, FormatMulawTelephony, nil)
	m.SendChunked(make([]int16, telephonyFrame))
	m.ClearQueue()

	m.mu.Lock()
	got := len(m.queue)
	m.mu.Unlock()
	if got != 0 {
		t.Fatalf("expected empty queue after clear, got %d", got)
	}
	if m.IsSpeaking() {
		t.Errorf("expected IsSpeaking false after clear")
	}
}

func TestStreamLoopSendsSilenceWhenIdle(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, FormatMulawTelephony, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(65 * time.Millisecond)
	cancel()
	m.Stop()

	if tr.count() < 2 {
		t.Fatalf("expected multiple paced sends, got %d", tr.count())
	}
}

func TestNextFrameMixesBackgroundAndTTS(t *testing.T) {
	tr := &fakeTransport{}
	m := New(tr, FormatMulawTelephony, nil)

	bg := make([]int16, telephonyFrame)
	for i := range bg {
		bg[i] = 1000
	}
	m.SetBackground(bg)
	m.SendChunked(make([]int16, telephonyFrame))

	frame := m.nextFrame()
	if len(frame) != telephonyFrame {
		t.Fatalf("expected %d byte frame, got %d", telephonyFrame, len(frame))
	}

	decoded := codec.UlawToLinear16(frame)
	if decoded[0] == 0 {
		t.Errorf("expected mixed background energy in frame, got silence")
	}
}
