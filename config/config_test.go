package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
		},
		{
			name:  "both services",
			input: "worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "services with spaces",
			input: " worker , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "worker,http",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "worker" {
		t.Errorf("expected default services %q, got %q", "worker", cfg.Services)
	}
	if !cfg.IsWorkerEnabled() {
		t.Error("expected worker enabled by default")
	}
	if cfg.IsReaperEnabled() {
		t.Error("expected reaper disabled by default")
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("expected default db port 5432, got %d", cfg.Postgres.Port)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Worker.JobTimeout != 5*time.Minute {
		t.Errorf("expected default job timeout 5m, got %s", cfg.Worker.JobTimeout)
	}
	if cfg.Agents.InvokeTimeout >= cfg.Worker.JobTimeout {
		t.Error("agent invoke timeout must be below the job timeout")
	}
}

func TestAppConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVICES", "worker,reaper")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("AGENT_REPORTER_URL", "http://reporter:9000/analyze")
	t.Setenv("OBSERVABILITY_METRICS_ENABLED", "true")
	t.Setenv("OBSERVABILITY_METRICS_STATSD_ADDRESS", "statsd:8125")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsWorkerEnabled() || !cfg.IsReaperEnabled() {
		t.Error("expected both services enabled")
	}
	if cfg.Worker.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Postgres.Host != "pg.internal" {
		t.Errorf("expected db host override, got %q", cfg.Postgres.Host)
	}
	if cfg.Agents.ReporterURL != "http://reporter:9000/analyze" {
		t.Errorf("expected reporter url override, got %q", cfg.Agents.ReporterURL)
	}
	if !cfg.Observability.Metrics.IsEnabled() {
		t.Error("expected metrics enabled")
	}
}

func TestWorkerConfigSanitize(t *testing.T) {
	w := WorkerConfig{
		Concurrency:       0,
		ClaimTimeout:      time.Millisecond,
		JobTimeout:        time.Second,
		Simulations:       -5,
		SummaryExpression: "  summary  ",
	}
	w.Sanitize()

	if w.Concurrency != 1 {
		t.Errorf("expected concurrency floor 1, got %d", w.Concurrency)
	}
	if w.ClaimTimeout != time.Second {
		t.Errorf("expected claim timeout floor 1s, got %s", w.ClaimTimeout)
	}
	if w.JobTimeout != 30*time.Second {
		t.Errorf("expected job timeout floor 30s, got %s", w.JobTimeout)
	}
	if w.Simulations != 1000 {
		t.Errorf("expected simulations default 1000, got %d", w.Simulations)
	}
	if w.SummaryExpression != "summary" {
		t.Errorf("expected trimmed expression, got %q", w.SummaryExpression)
	}
}

func TestReaperConfigSanitize(t *testing.T) {
	r := ReaperConfig{
		Interval:      time.Second,
		RunningMaxAge: time.Second,
		BatchSize:     100000,
		RequeueLimit:  0,
	}
	r.Sanitize()

	if r.Interval != 10*time.Second {
		t.Errorf("expected interval floor 10s, got %s", r.Interval)
	}
	if r.RunningMaxAge != time.Minute {
		t.Errorf("expected running max age floor 1m, got %s", r.RunningMaxAge)
	}
	if r.BatchSize != 10000 {
		t.Errorf("expected batch size cap 10000, got %d", r.BatchSize)
	}
	if r.RequeueLimit != 1 {
		t.Errorf("expected requeue limit floor 1, got %d", r.RequeueLimit)
	}
}

func TestAgentsConfigSanitize(t *testing.T) {
	a := AgentsConfig{
		InvokeTimeout: 30 * time.Second,
		HTTPTimeout:   10 * time.Second,
	}
	a.Sanitize()

	if a.HTTPTimeout <= a.InvokeTimeout {
		t.Errorf("expected http timeout above invoke timeout, got %s <= %s",
			a.HTTPTimeout, a.InvokeTimeout)
	}
	if a.ClassifierRetryAttempts < 1 {
		t.Errorf("expected at least one classifier attempt, got %d", a.ClassifierRetryAttempts)
	}
}

func TestNotificationsSanitizeDisablesSlackWithoutWebhook(t *testing.T) {
	n := ObservabilityNotificationsConfig{
		Enabled: true,
		Slack:   SlackNotificationConfig{Enabled: true, WebhookURL: "   "},
	}
	n.Sanitize()

	if n.Slack.Enabled {
		t.Error("expected slack disabled without a webhook url")
	}
}
