package llm

import "testing"

func TestNewGoogleLLMDefaultsModel(t *testing.T) {
	l, err := NewGoogleLLM("test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.model != "gemini-1.5-flash" {
		t.Errorf("expected default model, got %q", l.model)
	}
	if l.Name() != "google-llm" {
		t.Errorf("expected google-llm, got %q", l.Name())
	}
}

func TestNewGoogleLLMKeepsExplicitModel(t *testing.T) {
	l, err := NewGoogleLLM("test-key", "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.model != "gemini-1.5-pro" {
		t.Errorf("expected explicit model to be kept, got %q", l.model)
	}
}
