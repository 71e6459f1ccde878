package ttsproc

import (
	"context"
	"strings"
	"testing"

	"github.com/callcore-ai/callcore/pkg/agentconfig"
	"github.com/callcore-ai/callcore/pkg/audiomanager"
	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/transport"
)

type fakeTransport struct{}

func (fakeTransport) SendAudio(ctx context.Context, audio []byte) error { return nil }
func (fakeTransport) SendJSON(ctx context.Context, obj any) error       { return nil }
func (fakeTransport) SetStreamID(id string)                             {}
func (fakeTransport) StreamID() string                                  { return "" }
func (fakeTransport) Close() error                                      { return nil }
func (fakeTransport) Inbound() <-chan transport.InboundFrame            { return nil }

type fakeTTS struct {
	lastSSML string
	chunks   [][]byte
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) StreamSynthesize(ctx context.Context, ssml, voice, lang string, onChunk func([]byte) error) error {
	f.lastSSML = ssml
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTTS) Abort() error { return nil }

func TestSpeakDropsWhenCannotSpeak(t *testing.T) {
	gate := fsm.New(nil)
	gate.Transition(frame.StateListening) // not Idle/Processing -> CanSpeak false
	tts := &fakeTTS{}
	am := audiomanager.New(fakeTransport{}, audiomanager.FormatMulawTelephony, nil)
	p := New(tts, gate, am, agentconfig.VoiceConfig{Name: "en-US-Jenny", Rate: 1.0, Volume: 80}, "en-US", audiomanager.FormatMulawTelephony, 0, nil)

	if err := p.Speak(context.Background(), frame.TextFrame{Text: "hi"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if tts.lastSSML != "" {
		t.Errorf("expected synthesis to be skipped when cannot speak")
	}
}

func TestSpeakBuildsSSMLAndTransitionsToSpeaking(t *testing.T) {
	gate := fsm.New(nil)
	tts := &fakeTTS{chunks: [][]byte{{0xFF, 0xFF}}}
	am := audiomanager.New(fakeTransport{}, audiomanager.FormatMulawTelephony, nil)
	voice := agentconfig.VoiceConfig{Name: "en-US-Jenny", Rate: 1.1, PitchHz: 10, Volume: 90, Style: "cheerful", StyleDegree: 1.5}
	p := New(tts, gate, am, voice, "en-US", audiomanager.FormatMulawTelephony, 0, nil)

	if err := p.Speak(context.Background(), frame.TextFrame{Text: "Hello & welcome"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if gate.State() != frame.StateSpeaking {
		t.Errorf("expected FSM to transition to Speaking, got %v", gate.State())
	}
	if !strings.Contains(tts.lastSSML, "mstts:express-as") {
		t.Errorf("expected style wrapper in SSML: %s", tts.lastSSML)
	}
	if !strings.Contains(tts.lastSSML, "Hello &amp; welcome") {
		t.Errorf("expected escaped text in SSML: %s", tts.lastSSML)
	}
}

func TestSpeakContinuesAcrossSentencesInOneTurn(t *testing.T) {
	gate := fsm.New(nil)
	tts := &fakeTTS{chunks: [][]byte{{0xFF, 0xFF}}}
	am := audiomanager.New(fakeTransport{}, audiomanager.FormatMulawTelephony, nil)
	p := New(tts, gate, am, agentconfig.VoiceConfig{Name: "en-US-Jenny", Rate: 1.0, Volume: 80}, "en-US", audiomanager.FormatMulawTelephony, 0, nil)

	if err := p.Speak(context.Background(), frame.TextFrame{Text: "First sentence."}); err != nil {
		t.Fatalf("Speak first sentence: %v", err)
	}
	if gate.State() != frame.StateSpeaking {
		t.Fatalf("expected Speaking after first sentence, got %v", gate.State())
	}

	// A second sentence of the same turn arrives while the FSM is still
	// Speaking (nothing transitions it back to Processing between
	// sentences); it must still be synthesized, not dropped.
	if err := p.Speak(context.Background(), frame.TextFrame{Text: "Second sentence."}); err != nil {
		t.Fatalf("Speak second sentence: %v", err)
	}
	if !strings.Contains(tts.lastSSML, "Second sentence.") {
		t.Errorf("expected second sentence to be synthesized, got SSML: %s", tts.lastSSML)
	}
}
