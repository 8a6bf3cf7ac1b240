// Package worker defines worker contracts for asynchronous outcome processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/hireloop/caliber/internal/domain/learning"
	"github.com/hireloop/caliber/internal/domain/model"
	"github.com/hireloop/caliber/pkg/logger"
	"github.com/hireloop/caliber/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Outcome abstracts what workers read off the queue.
// Using the model.OutcomeRecord type for consistency.
type Outcome = model.OutcomeRecord

// Processor turns one resolved outcome into a learning event.
type Processor interface {
	ProcessOutcome(ctx context.Context, rec model.OutcomeRecord) (model.LearningEvent, error)
}

// Queue defines how workers receive outcomes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Outcome
}

// Worker processes outcomes using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining outcomes before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing outcome records.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker", // default name
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"), // will be updated by options
	}

	// Apply all options
	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	outcomeChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case rec, ok := <-outcomeChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processOutcome(ctx, rec); err != nil {
				w.logger.Error(ctx, "error processing outcome", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	// Signal shutdown
	close(w.shutdown)

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processOutcome handles a single outcome record.
func (w *InMemoryWorker) processOutcome(ctx context.Context, rec Outcome) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ev, err := w.processor.ProcessOutcome(ctx, rec)
	if err != nil {
		// Outcomes that reference no known decision are operator input errors,
		// not worker failures; log and drop so the queue keeps draining.
		if errors.Is(err, learning.ErrNoDecision) {
			metrics.RecordErrorByComponent("worker", "no_decision")
			w.logger.Warn(ctx, "outcome references no decision",
				logger.String("outcome_id", rec.OutcomeID),
				logger.String("candidate_id", rec.CandidateID),
			)
			return nil
		}
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "learning_error")
		metrics.RecordErrorByType("learning_error", "high")
		w.logger.Error(ctx, "learning loop failed for outcome",
			logger.String("outcome_id", rec.OutcomeID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to process outcome %s: %w", rec.OutcomeID, err)
	}

	metrics.RecordOutcomeProcessed()
	metrics.RecordLearningEvent(eventClass(ev))

	return nil
}

// eventClass buckets a learning event for metrics.
func eventClass(ev model.LearningEvent) string {
	switch {
	case ev.FalsePositive:
		return "false_positive"
	case ev.FalseNegative:
		return "false_negative"
	default:
		return "accurate"
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processor Processor

	// Shutdown control
	shutdown chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, processor Processor) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     queue,
		processor: processor,
		shutdown:  make(chan struct{}),
		logger:    logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			processor,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new outcomes
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	close(p.shutdown)

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
