package config

import (
	"strings"
	"time"
)

// AgentsConfig contains the endpoints and timeouts for the remote specialist
// capabilities. The retirement projector runs in-process and needs no
// endpoint.
type AgentsConfig struct {
	ReporterURL   string `env:"AGENT_REPORTER_URL"   envDefault:"http://localhost:8091/analyze"`
	CharterURL    string `env:"AGENT_CHARTER_URL"    envDefault:"http://localhost:8092/analyze"`
	ClassifierURL string `env:"AGENT_CLASSIFIER_URL" envDefault:"http://localhost:8093/classify"`

	// InvokeTimeout bounds a single capability invocation.
	InvokeTimeout time.Duration `env:"AGENT_INVOKE_TIMEOUT" envDefault:"60s"`

	// HTTPTimeout bounds the underlying HTTP client, including connection
	// setup. It should exceed InvokeTimeout slightly.
	HTTPTimeout time.Duration `env:"AGENT_HTTP_TIMEOUT" envDefault:"65s"`

	// Classifier retry policy: the classification model behind the
	// classifier endpoint cold-starts, so its one call retries transient
	// failures.
	ClassifierRetryAttempts int           `env:"AGENT_CLASSIFIER_RETRY_ATTEMPTS" envDefault:"3"`
	ClassifierRetryBase     time.Duration `env:"AGENT_CLASSIFIER_RETRY_BASE"     envDefault:"2s"`
	ClassifierRetryMax      time.Duration `env:"AGENT_CLASSIFIER_RETRY_MAX"      envDefault:"10s"`

	// ClassifierDedupeTTL is the lifetime of the cross-worker classification
	// dedupe key in Redis.
	ClassifierDedupeTTL time.Duration `env:"AGENT_CLASSIFIER_DEDUPE_TTL" envDefault:"2m"`
}

// Sanitize applies guardrails to agent configuration values.
func (a *AgentsConfig) Sanitize() {
	a.ReporterURL = strings.TrimSpace(a.ReporterURL)
	a.CharterURL = strings.TrimSpace(a.CharterURL)
	a.ClassifierURL = strings.TrimSpace(a.ClassifierURL)

	if a.InvokeTimeout <= 0 {
		a.InvokeTimeout = 60 * time.Second
	}
	if a.HTTPTimeout <= a.InvokeTimeout {
		a.HTTPTimeout = a.InvokeTimeout + 5*time.Second
	}
	if a.ClassifierRetryAttempts < 1 {
		a.ClassifierRetryAttempts = 1
	}
	if a.ClassifierRetryBase <= 0 {
		a.ClassifierRetryBase = 2 * time.Second
	}
	if a.ClassifierRetryMax < a.ClassifierRetryBase {
		a.ClassifierRetryMax = a.ClassifierRetryBase
	}
	if a.ClassifierDedupeTTL <= 0 {
		a.ClassifierDedupeTTL = 2 * time.Minute
	}
}
