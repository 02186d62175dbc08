package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsight/portfolio-analyst/internal/core"
	"github.com/finsight/portfolio-analyst/internal/domain/classify"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
	obserrors "github.com/finsight/portfolio-analyst/internal/observability/errors"
	"github.com/finsight/portfolio-analyst/internal/observability/metrics"
	"github.com/finsight/portfolio-analyst/internal/observability/notify"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
	"github.com/finsight/portfolio-analyst/internal/service/failurenotifier"
)

// PipelineOptions groups dependencies for the job pipeline.
type PipelineOptions struct {
	Jobs         core.JobRepository       // Required: job record store
	Portfolios   core.PortfolioRepository // Required: snapshot loader
	Gate         *classify.Gate           // Required: classification gate
	Orchestrator *Orchestrator            // Required: capability orchestrator
	Summary      *SummaryExtractor        // Optional: reporter summary extraction
	Metrics      statsd.Sink              // Optional: lifecycle metrics
	Notifier     *failurenotifier.Service // Optional: failure fan-out
	Logger       *slog.Logger             // Optional: structured logger
}

// Pipeline drives one job from claim to terminal status. Processing is
// idempotent under at-least-once delivery: a redelivered job that already
// reached a terminal status is a no-op.
type Pipeline struct {
	jobs         core.JobRepository
	portfolios   core.PortfolioRepository
	gate         *classify.Gate
	orchestrator *Orchestrator
	summary      *SummaryExtractor
	metrics      statsd.Sink
	notifier     *failurenotifier.Service
	logger       *slog.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Portfolios == nil {
		return nil, errors.New("PortfolioRepository is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("classification gate is required")
	}
	if opts.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	summary := opts.Summary
	if summary == nil {
		var err error
		summary, err = NewSummaryExtractor(DefaultSummaryExpression, nil)
		if err != nil {
			return nil, fmt.Errorf("default summary extractor: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		jobs:         opts.Jobs,
		portfolios:   opts.Portfolios,
		gate:         opts.Gate,
		orchestrator: opts.Orchestrator,
		summary:      summary,
		metrics:      opts.Metrics,
		notifier:     opts.Notifier,
		logger:       logger.With("component", "pipeline"),
	}, nil
}

// Process runs one job end to end. The returned error is non-nil only when
// the job could not be finalized at all (unknown id, store unreachable);
// agent-level failures finalize the job and return nil.
func (p *Pipeline) Process(ctx context.Context, jobID string) (err error) {
	start := time.Now()

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if job.Status.Terminal() {
		p.logger.InfoContext(ctx, "job already terminal; skipping",
			"job_id", job.ID, "status", job.Status)
		metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
			Transition: "claim",
			Result:     metrics.ResultNoop,
		})
		return nil
	}

	claimed, err := p.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", job.ID, err)
	}
	if !claimed {
		// Lost the race to another worker, or the job moved on already.
		p.logger.InfoContext(ctx, "job not pending; skipping", "job_id", job.ID)
		metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
			Transition: "claim",
			Result:     metrics.ResultNoop,
		})
		return nil
	}

	// From here the job is running and must reach a terminal status, even
	// when the analysis itself panics.
	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic during analysis: %v", r)
			p.logger.ErrorContext(ctx, "recovered panic in pipeline",
				"job_id", job.ID, "panic", fmt.Sprint(r))
			p.finalizeFailed(ctx, job, panicErr, time.Since(start))
			err = nil
		}
	}()

	snapshot, loadErr := p.portfolios.GetUserPortfolio(ctx, job.UserID)
	if loadErr != nil {
		p.finalizeFailed(ctx, job, fmt.Errorf("load portfolio: %w", loadErr), time.Since(start))
		return nil
	}

	snapshot, gateErr := p.gate.EnsureClassified(ctx, snapshot)
	if gateErr != nil {
		// Only context cancellation escapes the gate.
		p.finalizeFailed(ctx, job, fmt.Errorf("classification gate: %w", gateErr), time.Since(start))
		return nil
	}

	results := p.orchestrator.Run(ctx, job, snapshot)

	payloads, agentErrors := p.collectPayloads(results)
	if writeErr := p.jobs.SetResults(ctx, job.ID, payloads); writeErr != nil {
		p.finalizeFailed(ctx, job, fmt.Errorf("write results: %w", writeErr), time.Since(start))
		return nil
	}

	done, completeErr := p.jobs.Complete(ctx, job.ID)
	if completeErr != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, completeErr)
	}
	if !done {
		p.logger.WarnContext(ctx, "job left running state before completion", "job_id", job.ID)
		return nil
	}

	duration := time.Since(start)
	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Transition: "complete",
		Result:     metrics.ResultSuccess,
		Duration:   duration,
	})
	p.logger.InfoContext(ctx, "job completed",
		"job_id", job.ID,
		"duration", duration.String(),
		"agent_errors", len(agentErrors),
	)
	return nil
}

// collectPayloads splits orchestrator results into the partial-update fields
// and the per-agent error log. Only successful payloads land on the record;
// a failed specialist contributes an error entry and nothing else.
func (p *Pipeline) collectPayloads(
	results map[string]model.AgentResult,
) (model.AgentResultPayloads, map[string]string) {
	var payloads model.AgentResultPayloads
	agentErrors := make(map[string]string)

	for capability, res := range results {
		if !res.Succeeded {
			msg := res.Err
			if msg == "" {
				msg = "capability failed without detail"
			}
			agentErrors[capability] = msg
			continue
		}
		switch capability {
		case model.AgentReporter:
			payloads.Report = res.Payload
			payloads.Summary = p.summary.Extract(res.Payload)
		case model.AgentCharter:
			payloads.Charts = res.Payload
		case model.AgentRetirement:
			payloads.Retirement = res.Payload
		}
	}

	if len(agentErrors) > 0 {
		payloads.AgentErrors = agentErrors
	}
	return payloads, agentErrors
}

// finalizeFailed moves a running job to failed and emits the failure
// lifecycle signals. Finalization errors are logged, not returned: the
// reaper will eventually fail a job this path could not reach.
func (p *Pipeline) finalizeFailed(
	ctx context.Context,
	job *model.AnalysisJob,
	cause error,
	duration time.Duration,
) {
	failed, err := p.jobs.Fail(ctx, job.ID, cause.Error())
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to finalize job",
			"job_id", job.ID, "cause", cause, "error", err)
		return
	}
	if !failed {
		p.logger.WarnContext(ctx, "job not running at failure finalization", "job_id", job.ID)
		return
	}

	metrics.EmitJobLifecycle(p.metrics, metrics.JobMetric{
		Transition: "fail",
		Result:     metrics.ResultError,
		Duration:   duration,
		Err:        cause,
	})
	p.logger.ErrorContext(ctx, "job failed", "job_id", job.ID, "error", cause)

	if p.notifier.Enabled() {
		p.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
			JobID:      job.ID,
			UserID:     job.UserID,
			Error:      cause.Error(),
			ErrorClass: obserrors.Classify(cause),
			OccurredAt: time.Now().UTC(),
		})
	}
}
