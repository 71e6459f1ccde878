package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/callcore-ai/callcore/pkg/ports"
)

// InMemory implements every repository port over plain guarded maps, for
// unit tests that don't need a live Postgres instance.
type InMemory struct {
	mu          sync.Mutex
	calls       map[string]ports.CallRecord
	transcripts []ports.TranscriptEntry
	configs     map[string][]byte
	crm         map[string]ports.CRMContext
	crmStatus   map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		calls:     make(map[string]ports.CallRecord),
		configs:   make(map[string][]byte),
		crm:       make(map[string]ports.CRMContext),
		crmStatus: make(map[string]string),
	}
}

var (
	_ ports.CallRepository       = (*InMemory)(nil)
	_ ports.TranscriptRepository = (*InMemory)(nil)
	_ ports.ConfigRepository     = (*InMemory)(nil)
	_ ports.CRMRepository        = (*InMemory)(nil)
)

func (m *InMemory) CreateCall(ctx context.Context, rec ports.CallRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.calls[rec.ID] = rec
	return rec.ID, nil
}

func (m *InMemory) EndCall(ctx context.Context, id string, status string, extracted map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("repository: call %q not found", id)
	}
	rec.Status = status
	rec.ExtractedData = extracted
	m.calls[id] = rec
	return nil
}

func (m *InMemory) Append(ctx context.Context, entry ports.TranscriptEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, entry)
	return nil
}

func (m *InMemory) Transcripts() []ports.TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.TranscriptEntry, len(m.transcripts))
	copy(out, m.transcripts)
	return out
}

func (m *InMemory) SetConfig(agentID string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[agentID] = body
}

func (m *InMemory) Get(ctx context.Context, agentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.configs[agentID]
	if !ok {
		return nil, fmt.Errorf("repository: no config for agent %q", agentID)
	}
	return body, nil
}

func (m *InMemory) Lookup(ctx context.Context, phoneNumber string) (ports.CRMContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctxVal, ok := m.crm[phoneNumber]
	if !ok {
		return ports.CRMContext{PhoneNumber: phoneNumber, Found: false}, nil
	}
	return ctxVal, nil
}

func (m *InMemory) UpdateStatus(ctx context.Context, phoneNumber, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.crm[phoneNumber]
	c.PhoneNumber = phoneNumber
	c.Found = true
	m.crm[phoneNumber] = c
	m.crmStatus[phoneNumber] = status
	return nil
}

// Status returns the last status recorded via UpdateStatus, for test
// assertions.
func (m *InMemory) Status(phoneNumber string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crmStatus[phoneNumber]
}
