// Package worker executes queued async crawl runs.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hubspot-onboarding/internal/crawler"
	"github.com/JakeFAU/hubspot-onboarding/internal/queue/memory"
)

// Runner executes one queued crawl run.
type Runner interface {
	Execute(ctx context.Context, item crawler.QueueItem) error
}

// Worker consumes queue items and hands each to the Runner.
type Worker struct {
	id     int
	queue  crawler.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		logger: logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued crawl",
			zap.String("project_id", item.ProjectID),
			zap.String("website_id", item.WebsiteID),
		)
		if err := w.process(ctx, item); err != nil {
			w.logger.Error("crawl run failed", zap.String("website_id", item.WebsiteID), zap.Error(err))
		}
	}
}

// process runs one item. A panicking run is reported as an error so the
// worker survives it.
func (w *Worker) process(ctx context.Context, item crawler.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl run panicked: %v", r)
		}
	}()
	if w.runner == nil {
		return errors.New("no crawl runner configured")
	}
	return w.runner.Execute(ctx, item)
}
