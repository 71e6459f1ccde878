// Package pipeline implements the ordered, back-pressured processor
// chain of spec.md §4.7: VAD -> STT -> LLM -> TTS -> Output. Each stage
// runs as its own goroutine reading a bounded input queue, matching the
// one-task-per-processor concurrency model of §5 and the teacher's
// goroutine+channel idiom throughout managed_stream.go.
package pipeline

import (
	"context"
	"sync"

	"github.com/callcore-ai/callcore/internal/logging"
)

// DefaultQueueCapacity is the bounded input queue size per processor
// (spec.md §5: "typically 64 frames"). Producers block when full.
const DefaultQueueCapacity = 64

// Handler processes one frame and optionally emits output frames
// downstream via emit. Handlers run on the stage's own goroutine, so
// they may block on port I/O without stalling sibling stages.
type Handler func(ctx context.Context, f any, emit func(any)) error

// Stage is one named link in the chain: a bounded queue plus the
// goroutine draining it.
type Stage struct {
	name    string
	handler Handler
	log     logging.Logger

	in      chan any
	clearMu sync.Mutex
	next    *Stage
}

// NewStage constructs a stage with the default queue capacity.
func NewStage(name string, handler Handler, log logging.Logger) *Stage {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Stage{
		name:    name,
		handler: handler,
		log:     log,
		in:      make(chan any, DefaultQueueCapacity),
	}
}

// Push enqueues a frame, blocking if the stage's queue is full (the
// back-pressure policy of spec.md §5). It returns without enqueuing if
// ctx ends while it waits. After the stage's run loop has exited, frames
// still enter the queue but are never processed.
func (s *Stage) Push(ctx context.Context, f any) {
	select {
	case s.in <- f:
	case <-ctx.Done():
	}
}

// Clear drops every frame currently queued for this stage without
// affecting downstream stages (spec.md §4.7: "a clear on a processor
// drops only that processor's queued output").
func (s *Stage) Clear() {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()
	for {
		select {
		case <-s.in:
		default:
			return
		}
	}
}

func (s *Stage) run(ctx context.Context) {
	emit := func(f any) {
		if s.next != nil {
			s.next.Push(ctx, f)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.in:
			if err := s.handler(ctx, f, emit); err != nil {
				s.log.Warn("pipeline: stage handler error", "stage", s.name, "error", err)
			}
		}
	}
}

// Pipeline chains stages in submission order and runs each on its own
// goroutine for the lifetime of the call.
type Pipeline struct {
	stages []*Stage
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New links stages in the given order (the first stage is the pipeline's
// entry point) and returns the assembled Pipeline, unstarted.
func New(stages ...*Stage) *Pipeline {
	for i := 0; i < len(stages)-1; i++ {
		stages[i].next = stages[i+1]
	}
	return &Pipeline{stages: stages}
}

// Start launches every stage's run loop.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, s := range p.stages {
		p.wg.Add(1)
		go func(s *Stage) {
			defer p.wg.Done()
			s.run(runCtx)
		}(s)
	}
}

// Stop cancels every stage's run loop and waits for them to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Push enqueues a frame at the pipeline's entry stage.
func (p *Pipeline) Push(ctx context.Context, f any) {
	if len(p.stages) == 0 {
		return
	}
	p.stages[0].Push(ctx, f)
}

// ClearAll drops every stage's pending queue. Used on CANCEL/CLEAR and
// as part of INTERRUPT handling (spec.md §4.11's control loop).
func (p *Pipeline) ClearAll() {
	for _, s := range p.stages {
		s.Clear()
	}
}

// Stage returns the named stage, or nil if none matches. Useful for a
// caller that needs to push directly into a specific hop (e.g. the STT
// processor feeding the LLM stage after filtering).
func (p *Pipeline) Stage(name string) *Stage {
	for _, s := range p.stages {
		if s.name == name {
			return s
		}
	}
	return nil
}
