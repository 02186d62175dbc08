// Package reaper periodically fails running jobs whose worker died and
// requeues orphaned queue claims, so no job stays running forever.
package reaper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsight/portfolio-analyst/internal/core"
	obserrors "github.com/finsight/portfolio-analyst/internal/observability/errors"
	"github.com/finsight/portfolio-analyst/internal/observability/metrics"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
)

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs  core.JobRepository // Required: job record store
	Queue core.AnalysisQueue // Required: analysis queue

	Interval      time.Duration // sweep interval; defaults to 1m
	RunningMaxAge time.Duration // running-job lease; defaults to 10m
	BatchSize     int           // rows per sweep batch; defaults to 100
	RequeueLimit  int64         // orphaned claims requeued per sweep; defaults to 100

	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
}

// Runner runs the periodic reaper sweep.
type Runner struct {
	jobs          core.JobRepository
	queue         core.AnalysisQueue
	interval      time.Duration
	runningMaxAge time.Duration
	batchSize     int
	requeueLimit  int64
	logger        *slog.Logger
	metrics       statsd.Sink
}

// NewRunner creates a reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("AnalysisQueue is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	runningMaxAge := opts.RunningMaxAge
	if runningMaxAge <= 0 {
		runningMaxAge = 10 * time.Minute
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	requeueLimit := opts.RequeueLimit
	if requeueLimit <= 0 {
		requeueLimit = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		jobs:          opts.Jobs,
		queue:         opts.Queue,
		interval:      interval,
		runningMaxAge: runningMaxAge,
		batchSize:     batchSize,
		requeueLimit:  requeueLimit,
		logger:        logger.With("component", "reaper"),
		metrics:       opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper",
		"interval", r.interval.String(),
		"running_max_age", r.runningMaxAge.String(),
	)

	// Jitter prevents a thundering herd when multiple instances start
	// together.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// waitWithJitter delays up to 10% of the interval.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep runs one reaper pass: fail stale running jobs in batches, then move
// orphaned processing-list claims back onto the queue. Errors are logged and
// counted; the loop keeps running.
func (r *Runner) Sweep(ctx context.Context) (failed, requeued int64, err error) {
	failed, failErr := r.failStaleRunning(ctx)
	requeued, requeueErr := r.requeueOrphanedClaims(ctx)
	return failed, requeued, errors.Join(failErr, requeueErr)
}

func (r *Runner) sweep(ctx context.Context) {
	start := time.Now()
	failed, requeued, err := r.Sweep(ctx)
	r.emitSweepMetrics(failed, requeued, time.Since(start), err)

	if err != nil && !isContextCancellation(err) {
		r.logger.ErrorContext(ctx, "reaper sweep error", "error", err)
	}
}

// failStaleRunning loops until a batch comes back empty so large backlogs
// drain in bounded chunks.
func (r *Runner) failStaleRunning(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := r.jobs.FailStaleRunning(ctx, r.runningMaxAge, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("fail stale running jobs: %w", err)
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		r.logger.InfoContext(ctx, "failed stale running jobs",
			"count", total, "max_age", r.runningMaxAge.String())
	}
	return total, nil
}

func (r *Runner) requeueOrphanedClaims(ctx context.Context) (int64, error) {
	count, err := r.queue.RequeueStale(ctx, r.requeueLimit)
	if err != nil {
		return count, fmt.Errorf("requeue stale claims: %w", err)
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "requeued orphaned claims", "count", count)
	}
	return count, nil
}

func (r *Runner) emitSweepMetrics(failed, requeued int64, elapsed time.Duration, err error) {
	if r.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil && !isContextCancellation(err) {
		result = metrics.ResultError
	} else if failed == 0 && requeued == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if result == metrics.ResultError {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("reaper.sweep", 1, tags)
	if elapsed > 0 {
		r.metrics.Timing("reaper.sweep_duration", elapsed, metrics.CloneTags(tags))
	}
	if failed > 0 {
		r.metrics.Count("reaper.jobs_failed", failed, nil)
	}
	if requeued > 0 {
		r.metrics.Count("reaper.claims_requeued", requeued, nil)
	}
	if result != metrics.ResultError {
		r.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
