package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the analysis queue worker.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the stale-job reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all service names are valid and
// returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains analysis worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"2"`

	// ClaimTimeout is how long one blocking queue claim waits.
	ClaimTimeout time.Duration `env:"WORKER_CLAIM_TIMEOUT" envDefault:"5s"`

	// JobTimeout bounds one job's analysis end to end.
	JobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"5m"`

	// Simulations is the Monte Carlo run count for retirement projections.
	Simulations int `env:"WORKER_SIMULATIONS" envDefault:"1000"`

	// SummaryExpression is the JMESPath expression selecting the job summary
	// from the reporter payload.
	SummaryExpression string `env:"WORKER_SUMMARY_EXPRESSION" envDefault:"summary"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.ClaimTimeout < time.Second {
		w.ClaimTimeout = time.Second
	}
	if w.JobTimeout < 30*time.Second {
		w.JobTimeout = 30 * time.Second
	}
	if w.Simulations < 1 {
		w.Simulations = 1000
	}
	w.SummaryExpression = strings.TrimSpace(w.SummaryExpression)
}

// ReaperConfig contains stale-job reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// RunningMaxAge is the maximum age for running jobs before they are
	// marked as failed. Must exceed the worker's job timeout with slack so
	// the reaper never races a live worker.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"10m"`

	// BatchSize is the maximum number of rows to process per sweep batch.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`

	// RequeueLimit is the maximum number of orphaned queue claims to move
	// back per sweep.
	RequeueLimit int64 `env:"REAPER_REQUEUE_LIMIT" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.RunningMaxAge < time.Minute {
		r.RunningMaxAge = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
	if r.RequeueLimit < 1 {
		r.RequeueLimit = 1
	}
}
