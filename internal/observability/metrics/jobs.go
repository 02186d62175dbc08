// Package metrics emits standardised metrics for the analysis pipeline.
package metrics

import (
	"time"

	obserrors "github.com/finsight/portfolio-analyst/internal/observability/errors"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric
// emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits one job.transition count, tagged with the error
// class on failure, and a job.duration timing when a duration is known.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// AgentMetric captures one specialist agent invocation.
type AgentMetric struct {
	Capability string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitAgentInvocation emits per-capability invocation counts and timings.
func EmitAgentInvocation(sink statsd.Sink, in AgentMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"capability": in.Capability,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("agent.invocation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("agent.duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueueDepths records the queue and processing list depth gauges.
func EmitQueueDepths(sink statsd.Sink, queued, processing int64) {
	if sink == nil {
		return
	}
	sink.Gauge("queue.depth", float64(queued), nil)
	sink.Gauge("queue.processing", float64(processing), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k != "" {
			out[k] = v
		}
	}
	return out
}
