package llm

import "testing"

func TestNewOpenAILLMDefaultsModel(t *testing.T) {
	l := NewOpenAILLM("test-key", "")
	if l.model != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %q", l.model)
	}
	if l.Name() != "openai-llm" {
		t.Errorf("expected openai-llm, got %q", l.Name())
	}
}

func TestNewOpenAILLMKeepsExplicitModel(t *testing.T) {
	l := NewOpenAILLM("test-key", "gpt-4o-mini")
	if l.model != "gpt-4o-mini" {
		t.Errorf("expected explicit model to be kept, got %q", l.model)
	}
}
