package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finsight/portfolio-analyst/internal/agents"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
	"github.com/finsight/portfolio-analyst/internal/domain/retirement"
	"github.com/finsight/portfolio-analyst/internal/observability/metrics"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
)

// Orchestrator concurrency limit: at most this many capabilities run at
// once for a single job.
const maxConcurrentAgents = 3

// OrchestratorOptions groups dependencies for the Orchestrator.
type OrchestratorOptions struct {
	Invoker      agents.Invoker
	Projector    *retirement.Projector
	AgentTimeout time.Duration // per-invocation timeout, default 60s
	JobTimeout   time.Duration // whole-job budget, default 5m
	Metrics      statsd.Sink
	Logger       *slog.Logger
}

// Orchestrator selects the specialist capabilities a job needs and invokes
// them with bounded concurrency. Capability failures are isolated: each
// produces a failed AgentResult and never affects its siblings.
type Orchestrator struct {
	invoker      agents.Invoker
	projector    *retirement.Projector
	agentTimeout time.Duration
	jobTimeout   time.Duration
	metrics      statsd.Sink
	logger       *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if opts.Projector == nil {
		return nil, errors.New("projector is required")
	}

	agentTimeout := opts.AgentTimeout
	if agentTimeout <= 0 {
		agentTimeout = 60 * time.Second
	}
	jobTimeout := opts.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	if agentTimeout >= jobTimeout {
		return nil, fmt.Errorf("agent timeout %s must be shorter than job timeout %s",
			agentTimeout, jobTimeout)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		invoker:      opts.Invoker,
		projector:    opts.Projector,
		agentTimeout: agentTimeout,
		jobTimeout:   jobTimeout,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "orchestrator"),
	}, nil
}

// SelectCapabilities applies the deterministic selection table to the
// snapshot. The same snapshot always yields the same set, in stable order.
func SelectCapabilities(snapshot *model.PortfolioSnapshot) []string {
	var selected []string
	positions := snapshot.PositionCount()
	if positions > 0 {
		selected = append(selected, model.AgentReporter)
	}
	if positions >= 2 {
		selected = append(selected, model.AgentCharter)
	}
	if snapshot.RetirementGoal.Set() {
		selected = append(selected, model.AgentRetirement)
	}
	return selected
}

// Run invokes every selected capability for the job and returns the results
// keyed by capability. It always returns a result per selected capability:
// when the job budget expires mid-flight, results already collected are
// kept and unfinished capabilities report the context error.
func (o *Orchestrator) Run(
	ctx context.Context,
	job *model.AnalysisJob,
	snapshot *model.PortfolioSnapshot,
) map[string]model.AgentResult {
	selected := SelectCapabilities(snapshot)
	results := make(map[string]model.AgentResult, len(selected))
	if len(selected) == 0 {
		o.logger.InfoContext(ctx, "no capabilities selected", "job_id", job.ID)
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, o.jobTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentAgents)

	for _, capability := range selected {
		g.Go(func() error {
			result := o.runCapability(gctx, capability, job, snapshot)
			mu.Lock()
			results[capability] = result
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; failures are isolated per capability.
	_ = g.Wait()

	return results
}

func (o *Orchestrator) runCapability(
	ctx context.Context,
	capability string,
	job *model.AnalysisJob,
	snapshot *model.PortfolioSnapshot,
) model.AgentResult {
	start := time.Now()

	var result model.AgentResult
	var cause error
	if capability == model.AgentRetirement {
		result, cause = o.runRetirement(ctx, snapshot)
	} else {
		result, cause = o.invokeRemote(ctx, capability, job, snapshot)
	}

	duration := time.Since(start)
	if result.Succeeded {
		metrics.EmitAgentInvocation(o.metrics, metrics.AgentMetric{
			Capability: capability,
			Result:     metrics.ResultSuccess,
			Duration:   duration,
		})
		o.logger.InfoContext(ctx, "capability succeeded",
			"job_id", job.ID, "capability", capability, "duration", duration.String())
		return result
	}

	metrics.EmitAgentInvocation(o.metrics, metrics.AgentMetric{
		Capability: capability,
		Result:     metrics.ResultError,
		Duration:   duration,
		Err:        cause,
	})
	o.logger.WarnContext(ctx, "capability failed",
		"job_id", job.ID, "capability", capability, "error", result.Err)
	return result
}

// invokeRemote calls an HTTP capability and decodes its reply envelope.
func (o *Orchestrator) invokeRemote(
	ctx context.Context,
	capability string,
	job *model.AnalysisJob,
	snapshot *model.PortfolioSnapshot,
) (model.AgentResult, error) {
	payload, err := o.invoker.Invoke(ctx, capability, o.agentTimeout, model.AgentRequest{
		JobID:       job.ID,
		Portfolio:   snapshot,
		Preferences: job.Request,
	})
	if err != nil {
		return model.Failure(capability, err), err
	}

	data, err := agents.DecodeAgentReply(capability, payload)
	if err != nil {
		return model.Failure(capability, err), err
	}
	return model.Success(capability, data), nil
}

// runRetirement executes the Monte Carlo projection in-process.
func (o *Orchestrator) runRetirement(
	ctx context.Context,
	snapshot *model.PortfolioSnapshot,
) (model.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return model.Failure(model.AgentRetirement, err), err
	}

	goal := snapshot.RetirementGoal
	outcome, err := o.projector.Project(retirement.Input{
		CurrentValue:         snapshot.TotalValue(),
		YearsUntilRetirement: goal.YearsUntilRetirement,
		TargetAnnualIncome:   goal.TargetAnnualIncome,
		Allocation:           snapshot.AssetAllocation(),
		CurrentAge:           goal.CurrentAge,
	})
	if err != nil {
		return model.Failure(model.AgentRetirement, err), err
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		err = fmt.Errorf("encode projection: %w", err)
		return model.Failure(model.AgentRetirement, err), err
	}
	return model.Success(model.AgentRetirement, payload), nil
}
