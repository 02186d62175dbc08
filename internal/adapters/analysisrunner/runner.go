// Package analysisrunner consumes the analysis queue and drives claimed jobs
// through the pipeline with a pool of workers.
package analysisrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight/portfolio-analyst/internal/core"
	"github.com/finsight/portfolio-analyst/internal/data"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
	"github.com/finsight/portfolio-analyst/internal/observability/metrics"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
)

// Processor runs one claimed job to a terminal status. *service.Pipeline
// satisfies it.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// DepthReporter exposes queue depth readings for gauges. The Redis queue
// repo satisfies it; the field is optional.
type DepthReporter interface {
	Depths(ctx context.Context) (queued, processing int64, err error)
}

// RunnerOptions configures the analysis runner adapter.
type RunnerOptions struct {
	Queue     core.AnalysisQueue // Required: job queue
	Processor Processor          // Required: job pipeline
	Logger    *slog.Logger       // Optional: structured logger

	Concurrency   int           // worker goroutines; defaults to 1
	ClaimTimeout  time.Duration // per-claim block duration; defaults to 5s
	DepthInterval time.Duration // queue depth gauge interval; defaults to 30s

	Metrics statsd.Sink   // Optional: metrics sink
	Depths  DepthReporter // Optional: queue depth gauges
}

// Runner pulls queue messages and executes them through the pipeline.
type Runner struct {
	queue         core.AnalysisQueue
	processor     Processor
	logger        *slog.Logger
	workers       int
	claimTimeout  time.Duration
	depthInterval time.Duration
	metrics       statsd.Sink
	depths        DepthReporter
}

// NewRunner constructs an analysis runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("analysis queue is required")
	}
	if opts.Processor == nil {
		return nil, errors.New("processor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	claimTimeout := opts.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Second
	}
	depthInterval := opts.DepthInterval
	if depthInterval <= 0 {
		depthInterval = 30 * time.Second
	}

	return &Runner{
		queue:         opts.Queue,
		processor:     opts.Processor,
		logger:        logger.With("component", "analysis_runner"),
		workers:       workers,
		claimTimeout:  claimTimeout,
		depthInterval: depthInterval,
		metrics:       opts.Metrics,
		depths:        opts.Depths,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is
// cancelled. The first fatal worker error cancels all workers.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting analysis runner",
		"workers", r.workers, "claim_timeout", r.claimTimeout.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	if r.depths != nil && r.metrics != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.depthLoop(ctx)
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		msg, err := r.queue.ClaimBlocking(ctx, r.claimTimeout)
		switch {
		case err == nil:
			r.processMessage(ctx, msg)
		case errors.Is(err, model.ErrNoJobsAvailable):
			continue
		case errors.Is(err, data.ErrMalformedMessage):
			// Already dropped from the processing list at claim time.
			r.logger.WarnContext(ctx, "dropped malformed queue message", "error", err)
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("claim next job: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) processMessage(ctx context.Context, msg model.QueueMessage) {
	err := r.processor.Process(ctx, msg.JobID)
	switch {
	case err == nil:
		r.ack(ctx, msg)
	case errors.Is(err, data.ErrJobNotFound):
		// A record that does not exist can never be finalized; requeueing
		// would poison-loop, so drop the message.
		r.logger.ErrorContext(ctx, "dropping message for unknown job",
			"job_id", msg.JobID, "error", err)
		r.ack(ctx, msg)
	default:
		// Leave the claim on the processing list; the reaper requeues it
		// once the worker's claim goes stale.
		r.logger.ErrorContext(ctx, "job processing error; leaving claim for requeue",
			"job_id", msg.JobID, "error", err)
	}
}

func (r *Runner) ack(ctx context.Context, msg model.QueueMessage) {
	if err := r.queue.Ack(ctx, msg); err != nil {
		r.logger.ErrorContext(ctx, "ack queue message", "job_id", msg.JobID, "error", err)
	}
}

func (r *Runner) depthLoop(ctx context.Context) {
	ticker := time.NewTicker(r.depthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queued, processing, err := r.depths.Depths(ctx)
			if err != nil {
				r.logger.WarnContext(ctx, "read queue depths", "error", err)
				continue
			}
			metrics.EmitQueueDepths(r.metrics, queued, processing)
		}
	}
}
