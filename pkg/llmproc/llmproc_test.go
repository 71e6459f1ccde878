package llmproc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/callcore-ai/callcore/pkg/fsm"
	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
	"github.com/callcore-ai/callcore/pkg/tools"
)

type scriptedLLM struct {
	scripts [][]ports.LLMChunk
	calls   int
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Stream(ctx context.Context, messages []frame.Message, toolSchemas []ports.ToolSchema, onChunk func(ports.LLMChunk) error) error {
	script := s.scripts[s.calls]
	s.calls++
	for _, chunk := range script {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func TestGenerateSegmentsAndStripsTags(t *testing.T) {
	llm := &scriptedLLM{scripts: [][]ports.LLMChunk{
		{
			{Text: "Hello there. "},
			{Text: "Goodbye now.[END_CALL]"},
		},
	}}
	reg := tools.NewRegistry()
	gate := fsm.New(nil)
	p := New(llm, reg, gate, "You are helpful.", 10, nil, nil)

	var sentences []string
	outcome, err := p.Generate(context.Background(), func(f frame.TextFrame) {
		sentences = append(sentences, f.Text)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !outcome.ShouldHangup {
		t.Errorf("expected ShouldHangup true")
	}
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %v", sentences)
	}
	if sentences[0] != "Hello there." {
		t.Errorf("unexpected first sentence: %q", sentences[0])
	}
	if sentences[1] != "Goodbye now." {
		t.Errorf("unexpected second sentence: %q", sentences[1])
	}
}

func TestGenerateRunsToolCallLoop(t *testing.T) {
	llm := &scriptedLLM{scripts: [][]ports.LLMChunk{
		{{FunctionCall: &ports.FunctionCall{ID: "1", Name: "echo", Arguments: `{"msg":"hi"}`}}},
		{{Text: "Done."}},
	}}
	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Definition: tools.Definition{
			Name:          "echo",
			Parameters:    map[string]any{"type": "object"},
			MaxDurationMs: 1000,
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]any{"echoed": true}, nil
		},
	})
	gate := fsm.New(nil)
	p := New(llm, reg, gate, "sys", 10, nil, nil)

	var sentences []string
	_, err := p.Generate(context.Background(), func(f frame.TextFrame) {
		sentences = append(sentences, f.Text)
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(sentences) != 1 || sentences[0] != "Done." {
		t.Fatalf("unexpected sentences: %v", sentences)
	}
	if llm.calls != 2 {
		t.Errorf("expected 2 LLM invocations (initial + re-invoke), got %d", llm.calls)
	}

	hist := p.History()
	foundToolMsg := false
	for _, m := range hist {
		if m.Role == frame.RoleTool {
			foundToolMsg = true
		}
	}
	if !foundToolMsg {
		t.Errorf("expected a tool-role message in history")
	}
}

func TestGenerateCancellationMarksInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	llm := &scriptedLLM{scripts: [][]ports.LLMChunk{
		{{Text: "partial text"}},
	}}
	// Simulate cancellation occurring during the stream by cancelling
	// before Generate observes ctx.Err() in its post-stream check.
	cancel()

	reg := tools.NewRegistry()
	gate := fsm.New(nil)
	p := New(llm, reg, gate, "sys", 10, nil, nil)

	_, err := p.Generate(ctx, func(f frame.TextFrame) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	hist := p.History()
	last := hist[len(hist)-1]
	if last.Role != frame.RoleAssistant {
		t.Fatalf("expected assistant history entry, got %v", last)
	}
	if !strings.HasPrefix(last.Content, "[INTERRUPTED]") {
		t.Errorf("expected [INTERRUPTED]-tagged content, got %q", last.Content)
	}
}

func TestDynamicVariableSubstitution(t *testing.T) {
	llm := &scriptedLLM{scripts: [][]ports.LLMChunk{{{Text: "ok."}}}}
	reg := tools.NewRegistry()
	gate := fsm.New(nil)
	p := New(llm, reg, gate, "Hello {name}.", 10, map[string]string{"name": "Ada"}, nil)
	if p.systemPrompt != "Hello Ada." {
		t.Errorf("expected substituted prompt, got %q", p.systemPrompt)
	}
}
