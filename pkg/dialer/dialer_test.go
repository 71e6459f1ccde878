package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func newTestClient(t *testing.T) (*TelnyxClient, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"call_control_id": "cc-1", "call_leg_id": "leg-1"},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewTelnyxClient("test-key", "conn-1", nil)
	client.baseURL = srv.URL
	return client, srv
}

func TestTelnyxClientDial(t *testing.T) {
	client, _ := newTestClient(t)
	result, err := client.Dial(context.Background(), "+15550001", "+15559999", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if result.CallControlID != "cc-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestWorkerInvokesOnAnswerPerJob(t *testing.T) {
	client, _ := newTestClient(t)

	var mu sync.Mutex
	var seen []string

	w := NewWorker(client, 0, func(job Job, result DialResult, err error) {
		mu.Lock()
		seen = append(seen, job.To)
		mu.Unlock()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	w.Enqueue(ctx, Job{To: "+15550001", From: "+15559999"})
	w.Enqueue(ctx, Job{To: "+15550002", From: "+15559999"})

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 onAnswer invocations, got %v", seen)
	}
}
