package dialer

import (
	"context"
	"time"

	"github.com/callcore-ai/callcore/internal/logging"
)

// Job is one pending outbound dial request.
type Job struct {
	To          string
	From        string
	ClientState []byte
}

// OnAnswer is invoked when a dial completes (success or failure); the
// Orchestrator registers calls by CallControlID out of this package's
// scope, via the webhook surface spec.md excludes.
type OnAnswer func(job Job, result DialResult, err error)

// Worker drains a queue of dial Jobs at a configurable pace
// (rate_limit_telnyx calls/second, read from the call-local AgentConfig
// at campaign start), invoking the Telnyx client for each.
type Worker struct {
	client   *TelnyxClient
	ratePerS float64
	onAnswer OnAnswer
	log      logging.Logger

	jobs chan Job
	done chan struct{}
}

// NewWorker builds a dial worker. ratePerS <= 0 disables pacing (dials
// as fast as jobs arrive).
func NewWorker(client *TelnyxClient, ratePerS float64, onAnswer OnAnswer, log logging.Logger) *Worker {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Worker{
		client:   client,
		ratePerS: ratePerS,
		onAnswer: onAnswer,
		log:      log,
		jobs:     make(chan Job, 256),
		done:     make(chan struct{}),
	}
}

// Enqueue adds a job to the dial queue, blocking if it is full.
func (w *Worker) Enqueue(ctx context.Context, job Job) {
	select {
	case w.jobs <- job:
	case <-ctx.Done():
	}
}

// Start launches the pacing loop as a goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop closes the job queue and waits for the loop to drain and exit.
func (w *Worker) Stop() {
	close(w.jobs)
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	var interval time.Duration
	if w.ratePerS > 0 {
		interval = time.Duration(float64(time.Second) / w.ratePerS)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			result, err := w.client.Dial(ctx, job.To, job.From, job.ClientState)
			if err != nil {
				w.log.Warn("dialer: dial failed", "to", job.To, "error", err)
			}
			if w.onAnswer != nil {
				w.onAnswer(job, result, err)
			}
			if interval > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
