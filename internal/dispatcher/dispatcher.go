// Package dispatcher fans async crawl runs out to the worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/telemetry"
	"github.com/JakeFAU/hubspot-onboarding/internal/worker"
)

type lengther interface {
	Len() int
}

// Dispatcher owns the queue side of async crawls and the workers draining it.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool builds size workers over queue, all executing runs with runner.
func NewPool(queue crawler.Queue, runner worker.Runner, size int, opts ...Option) *Dispatcher {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	workers := make([]*worker.Worker, 0, size)
	for i := 1; i <= size; i++ {
		workers = append(workers, worker.New(i, queue, runner, o.logger))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until every worker has returned, which
// happens when ctx ends or the queue is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue and publishes its depth.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if l, ok := d.queue.(lengther); ok {
		telemetry.SetQueueDepth(l.Len())
	}
	return nil
}

// Size reports how many workers the dispatcher runs.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
