package llm

import "testing"

func TestNewAnthropicLLMDefaultsModel(t *testing.T) {
	l := NewAnthropicLLM("test-key", "")
	if l.model != "claude-3-5-sonnet-20241022" {
		t.Errorf("expected default model, got %q", l.model)
	}
	if l.Name() != "anthropic-llm" {
		t.Errorf("expected anthropic-llm, got %q", l.Name())
	}
}

func TestNewAnthropicLLMKeepsExplicitModel(t *testing.T) {
	l := NewAnthropicLLM("test-key", "claude-3-opus-20240229")
	if l.model != "claude-3-opus-20240229" {
		t.Errorf("expected explicit model to be kept, got %q", l.model)
	}
}
