package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/callcore-ai/callcore/pkg/agentconfig"
	"github.com/callcore-ai/callcore/pkg/audiomanager"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
	"github.com/callcore-ai/callcore/pkg/repository"
	"github.com/callcore-ai/callcore/pkg/tools"
	"github.com/callcore-ai/callcore/pkg/transport"
)

type fakeTransport struct{}

func (fakeTransport) SendAudio(ctx context.Context, audio []byte) error { return nil }
func (fakeTransport) SendJSON(ctx context.Context, obj any) error       { return nil }
func (fakeTransport) SetStreamID(id string)                            {}
func (fakeTransport) StreamID() string                                 { return "" }
func (fakeTransport) Close() error                                     { return nil }
func (fakeTransport) Inbound() <-chan transport.InboundFrame           { return nil }

type fakeSTT struct {
	onTranscript func(string, bool) error
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) StreamTranscribe(ctx context.Context, lang string, onTranscript func(string, bool) error) (chan<- []byte, error) {
	f.onTranscript = onTranscript
	ch := make(chan []byte, 8)
	go func() {
		for range ch {
		}
	}()
	return ch, nil
}

type fakeLLM struct{}

func (fakeLLM) Name() string { return "fake-llm" }

func (fakeLLM) Stream(ctx context.Context, messages []frame.Message, toolSchemas []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	return onChunk(ports.LLMChunk{Text: "Okay.", FinishReason: "stop"})
}

type fakeTTS struct{}

func (fakeTTS) Name() string { return "fake-tts" }

func (fakeTTS) StreamSynthesize(ctx context.Context, ssml, voice, lang string, onChunk func([]byte) error) error {
	return onChunk([]byte{0x7F, 0x7F})
}

func (fakeTTS) Abort() error { return nil }

// blockingLLM emits one sentence, then blocks on ctx so a test can
// drive a barge-in mid-generation and observe the cancellation.
type blockingLLM struct {
	started chan struct{}
}

func (blockingLLM) Name() string { return "blocking-llm" }

func (b *blockingLLM) Stream(ctx context.Context, messages []frame.Message, toolSchemas []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	if err := onChunk(ports.LLMChunk{Text: "First sentence. "}); err != nil {
		return err
	}
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func testConfig() []byte {
	return []byte(`
agent_id: agent-1
system_prompt: "You are a helpful agent."
greeting_enabled: true
greeting_text: "Hello, thanks for calling."
context_window: 10
voice:
  name: en-US-Jenny
  rate: 1.0
  volume: 80
  style_degree: 1.0
language: en-US
initial_silence_timeout_ms: 3000
silence_timeout_ms: 3000
idle_timeout_seconds: 20
inactivity_max_retries: 2
max_duration_seconds: 600
interruption_threshold: 15
min_words_to_interrupt: 2
voice_pacing_ms: 0
rate_limit_telnyx: 1
`)
}

func newTestSession(t *testing.T) (*Session, *repository.InMemory, *fakeSTT) {
	t.Helper()
	repo := repository.NewInMemory()
	repo.SetConfig("agent-1", testConfig())

	stt := &fakeSTT{}
	sess := NewSession(Deps{
		STT:       stt,
		LLM:       fakeLLM{},
		TTS:       fakeTTS{},
		Tools:     tools.NewRegistry(),
		Transport: fakeTransport{},
		Format:    audiomanager.FormatMulawTelephony,

		ConfigRepo:     repo,
		CallRepo:       repo,
		TranscriptRepo: repo,
		CRMRepo:        repo,
	}, Params{
		SessionID:   "sess-1",
		AgentID:     "agent-1",
		Carrier:     agentconfig.CarrierTelnyx,
		PhoneNumber: "+15555550123",
	})
	return sess, repo, stt
}

func TestSessionStartRunsOrderedLifecycle(t *testing.T) {
	sess, repo, _ := newTestSession(t)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop("test_cleanup")

	if sess.callID == "" {
		t.Errorf("expected a call record to be created")
	}
	if len(repo.Transcripts()) == 0 {
		t.Errorf("expected the greeting or a turn to register, got no transcripts yet")
	}
}

func TestSessionStartFailsWithoutConfigRepo(t *testing.T) {
	sess := NewSession(Deps{
		STT:       &fakeSTT{},
		LLM:       fakeLLM{},
		TTS:       fakeTTS{},
		Tools:     tools.NewRegistry(),
		Transport: fakeTransport{},
		Format:    audiomanager.FormatMulawTelephony,
	}, Params{SessionID: "sess-2", AgentID: "agent-1"})

	if err := sess.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without a config repository")
	}
}

func TestSessionFinalTranscriptDrivesATurn(t *testing.T) {
	sess, repo, stt := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop("test_cleanup")

	if stt.onTranscript == nil {
		t.Fatal("expected stt.Start to have captured onTranscript callback")
	}
	if err := stt.onTranscript("hello there please help me", true); err != nil {
		t.Fatalf("onTranscript: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(repo.Transcripts()) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	transcripts := repo.Transcripts()
	if len(transcripts) < 3 {
		t.Fatalf("expected greeting + user turn + assistant reply to be transcribed, got %v", transcripts)
	}
}

func TestControlLoopInterruptCancelsInFlightGeneration(t *testing.T) {
	repo := repository.NewInMemory()
	repo.SetConfig("agent-1", testConfig())

	stt := &fakeSTT{}
	llm := &blockingLLM{started: make(chan struct{})}
	sess := NewSession(Deps{
		STT:       stt,
		LLM:       llm,
		TTS:       fakeTTS{},
		Tools:     tools.NewRegistry(),
		Transport: fakeTransport{},
		Format:    audiomanager.FormatMulawTelephony,

		ConfigRepo:     repo,
		CallRepo:       repo,
		TranscriptRepo: repo,
		CRMRepo:        repo,
	}, Params{
		SessionID:   "sess-interrupt",
		AgentID:     "agent-1",
		Carrier:     agentconfig.CarrierTelnyx,
		PhoneNumber: "+15555550123",
	})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop("test_cleanup")

	if err := stt.onTranscript("please help me with something", true); err != nil {
		t.Fatalf("onTranscript: %v", err)
	}

	select {
	case <-llm.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for generation to reach its blocking point")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sess.fsmGate.State() != frame.StateSpeaking {
		time.Sleep(5 * time.Millisecond)
	}
	if sess.fsmGate.State() != frame.StateSpeaking {
		t.Fatalf("expected Speaking after the first sentence, got %v", sess.fsmGate.State())
	}

	sess.cc.Send(frame.ControlSignal{Kind: frame.ControlInterrupt, Reason: "test_bargein"}, nil)

	var last frame.Message
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hist := sess.llm.History()
		if len(hist) > 0 && strings.HasPrefix(hist[len(hist)-1].Content, "[INTERRUPTED]") {
			last = hist[len(hist)-1]
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.HasPrefix(last.Content, "[INTERRUPTED]") {
		t.Fatalf("expected an [INTERRUPTED]-tagged assistant turn, got %+v", last)
	}
	if last.Role != frame.RoleAssistant {
		t.Errorf("expected assistant role, got %v", last.Role)
	}
}

func TestSessionStopIsIdempotentAndEmitsEnded(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.Stop("done")
	sess.Stop("done_again")

	var sawEnded bool
	for ev := range sess.Events() {
		if ev.Type == EventEnded {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Errorf("expected an ENDED event on the events channel")
	}
}

func TestConnectionManagerEvictsPriorSession(t *testing.T) {
	cm := NewConnectionManager()
	first, _, _ := newTestSession(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	cm.Register("client-1", first)

	second, _, _ := newTestSession(t)
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start second: %v", err)
	}
	cm.Register("client-1", second)

	got, ok := cm.Get("client-1")
	if !ok || got != second {
		t.Errorf("expected client-1 to resolve to the second session")
	}
	if cm.Len() != 1 {
		t.Errorf("expected exactly one registered session, got %d", cm.Len())
	}

	cm.StopAll("shutdown")
}
