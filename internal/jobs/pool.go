package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/queue"
)

// Runner executes one job. *Service satisfies it.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Pool runs a fixed number of workers that take job ids off a queue.
type Pool struct {
	queue   queue.Queue
	runner  Runner
	workers int

	stopDequeue context.CancelFunc
	cancelRuns  context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once
}

// NewPool creates a Pool with the given number of workers (minimum 1).
func NewPool(q queue.Queue, runner Runner, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{queue: q, runner: runner, workers: workers}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		dequeueCtx, stopDequeue := context.WithCancel(ctx)
		runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
		p.stopDequeue = stopDequeue
		p.cancelRuns = cancelRuns

		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work(dequeueCtx, runCtx, i)
		}
		slog.Info("job workers started", "workers", p.workers)
	})
}

func (p *Pool) work(dequeueCtx, runCtx context.Context, worker int) {
	defer p.wg.Done()

	for {
		id, err := p.queue.Dequeue(dequeueCtx)
		if err != nil {
			if dequeueCtx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			slog.Error("dequeue failed", "worker", worker, "error", err)
			select {
			case <-dequeueCtx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.runner.Run(runCtx, id); err != nil {
			slog.Error("job run failed", "worker", worker, "job_id", id, "error", err)
		}
	}
}

// Shutdown stops taking new jobs and waits for running ones. When ctx
// expires first, running jobs are cancelled and ctx.Err() is returned once
// the workers have exited.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.stopDequeue == nil {
		return nil
	}
	p.stopDequeue()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelRuns()
		return nil
	case <-ctx.Done():
		slog.Warn("shutdown deadline reached, cancelling running jobs")
		p.cancelRuns()
		<-done
		return ctx.Err()
	}
}
