package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPipelineFIFOOrdering(t *testing.T) {
	var mu sync.Mutex
	var got []int

	collect := NewStage("collect", func(ctx context.Context, f any, emit func(any)) error {
		mu.Lock()
		got = append(got, f.(int))
		mu.Unlock()
		return nil
	}, nil)

	double := NewStage("double", func(ctx context.Context, f any, emit func(any)) error {
		emit(f.(int) * 2)
		return nil
	}, nil)

	p := New(double, collect)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() {
		cancel()
		p.Stop()
	}()

	for i := 1; i <= 5; i++ {
		p.Push(ctx, i)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 5 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []int{2, 4, 6, 8, 10}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStageClearDropsOnlyItsQueue(t *testing.T) {
	blocked := make(chan struct{})
	var processed int
	var mu sync.Mutex

	slow := NewStage("slow", func(ctx context.Context, f any, emit func(any)) error {
		<-blocked
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p := New(slow)
	p.Start(ctx)
	defer func() {
		close(blocked)
		cancel()
		p.Stop()
	}()

	p.Push(ctx, 1) // consumed immediately, blocks in handler
	time.Sleep(10 * time.Millisecond)
	p.Push(ctx, 2)
	p.Push(ctx, 3)

	p.Stage("slow").Clear()

	mu.Lock()
	got := len(slow.in)
	mu.Unlock()
	if got != 0 {
		t.Errorf("expected cleared queue, got %d pending", got)
	}
}
