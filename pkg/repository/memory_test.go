package repository

import (
	"context"
	"testing"

	"github.com/callcore-ai/callcore/pkg/frame"
	"github.com/callcore-ai/callcore/pkg/ports"
)

func TestInMemoryCallLifecycle(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	id, err := m.CreateCall(ctx, ports.CallRecord{SessionID: "s1", ClientType: "telnyx"})
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated ID")
	}

	if err := m.EndCall(ctx, id, "completed", map[string]any{"outcome": "booked"}); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	if err := m.EndCall(ctx, "missing", "completed", nil); err == nil {
		t.Errorf("expected error ending unknown call")
	}
}

func TestInMemoryTranscriptAppend(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	if err := m.Append(ctx, ports.TranscriptEntry{CallID: "c1", Role: frame.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := m.Transcripts()
	if len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("unexpected transcripts: %v", got)
	}
}

func TestInMemoryConfigRoundTrip(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()
	if _, err := m.Get(ctx, "agent-1"); err == nil {
		t.Errorf("expected error for missing config")
	}
	m.SetConfig("agent-1", []byte(`{"agent_id":"agent-1"}`))
	body, err := m.Get(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != `{"agent_id":"agent-1"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInMemoryCRMLookupAndStatus(t *testing.T) {
	m := NewInMemory()
	ctx := context.Background()

	got, err := m.Lookup(ctx, "+15551234")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Found {
		t.Errorf("expected Found false for unknown number")
	}

	if err := m.UpdateStatus(ctx, "+15551234", "booked"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if m.Status("+15551234") != "booked" {
		t.Errorf("expected status to round-trip")
	}
}
