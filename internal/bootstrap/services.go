package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight/portfolio-analyst/config"
	"github.com/finsight/portfolio-analyst/internal/adapters/analysisrunner"
	"github.com/finsight/portfolio-analyst/internal/adapters/reaper"
	"github.com/finsight/portfolio-analyst/internal/agents"
	"github.com/finsight/portfolio-analyst/internal/data"
	"github.com/finsight/portfolio-analyst/internal/domain/classify"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
	"github.com/finsight/portfolio-analyst/internal/domain/retirement"
	"github.com/finsight/portfolio-analyst/internal/observability/notify/slack"
	"github.com/finsight/portfolio-analyst/internal/observability/statsd"
	"github.com/finsight/portfolio-analyst/internal/service"
	"github.com/finsight/portfolio-analyst/internal/service/failurenotifier"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all wired application services.
type ServiceContainer struct {
	Jobs     *service.JobService
	Pipeline *service.Pipeline
	Worker   *analysisrunner.Runner
	Reaper   *reaper.Runner

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     statsd.Sink
	MetricsClient   *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	DB     *sql.DB
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// buildObservability configures metrics and notification adapters. A
// disabled metrics client still satisfies the sink interface and swallows
// writes, so downstream code never branches on metrics being configured.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) (ObservabilityContainer, error) {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  "portfolio_analyst",
		Logger:  logger,
	})
	if err != nil {
		return ObservabilityContainer{}, fmt.Errorf("build statsd client: %w", err)
	}

	return ObservabilityContainer{
		MetricsSink:     client,
		MetricsClient:   client,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
	}, nil
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
) *failurenotifier.Service {
	var sinks []failurenotifier.SinkRegistration

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Warn("slack notifier disabled", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
	})
}

// NewServices wires repositories and services from connected dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	if deps.Redis == nil {
		return ServiceContainer{}, errors.New("redis connection is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability, err := buildObservability(logger, cfg.Observability)
	if err != nil {
		return ServiceContainer{}, err
	}

	jobRepo := data.NewJobRepo(deps.DB, data.JobRepoConfig{Logger: logger})
	portfolioRepo := data.NewPortfolioRepo(deps.DB)
	instrumentRepo := data.NewInstrumentRepo(deps.DB)
	cacheRepo := data.NewRedisCacheRepo(deps.Redis)
	queueRepo := data.NewRedisQueueRepo(deps.Redis)

	invoker, err := agents.NewInvoker(agents.InvokerOptions{
		HTTPClient: &http.Client{Timeout: cfg.Agents.HTTPTimeout},
		Logger:     logger,
		Endpoints: map[string]agents.Endpoint{
			model.AgentReporter:   {URL: cfg.Agents.ReporterURL, Timeout: cfg.Agents.InvokeTimeout},
			model.AgentCharter:    {URL: cfg.Agents.CharterURL, Timeout: cfg.Agents.InvokeTimeout},
			model.AgentClassifier: {URL: cfg.Agents.ClassifierURL, Timeout: cfg.Agents.InvokeTimeout},
		},
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build agent invoker: %w", err)
	}

	gate, err := classify.NewGate(classify.GateOptions{
		Invoker:     invoker,
		Instruments: instrumentRepo,
		Cache:       cacheRepo,
		Retry: agents.RetryPolicy{
			MaxAttempts: cfg.Agents.ClassifierRetryAttempts,
			BaseDelay:   cfg.Agents.ClassifierRetryBase,
			Multiplier:  1,
			MaxDelay:    cfg.Agents.ClassifierRetryMax,
		},
		Timeout:   cfg.Agents.InvokeTimeout,
		DedupeTTL: cfg.Agents.ClassifierDedupeTTL,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build classification gate: %w", err)
	}

	projector, err := retirement.NewProjector(retirement.Options{
		Simulations: cfg.Worker.Simulations,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulation sampling, not security
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build retirement projector: %w", err)
	}

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Invoker:      invoker,
		Projector:    projector,
		AgentTimeout: cfg.Agents.InvokeTimeout,
		JobTimeout:   cfg.Worker.JobTimeout,
		Metrics:      observability.MetricsSink,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build orchestrator: %w", err)
	}

	summary, err := service.NewSummaryExtractor(cfg.Worker.SummaryExpression, nil)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build summary extractor: %w", err)
	}

	pipeline, err := service.NewPipeline(service.PipelineOptions{
		Jobs:         jobRepo,
		Portfolios:   portfolioRepo,
		Gate:         gate,
		Orchestrator: orchestrator,
		Summary:      summary,
		Metrics:      observability.MetricsSink,
		Notifier:     observability.FailureNotifier,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build pipeline: %w", err)
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Repo:   jobRepo,
		Queue:  queueRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	worker, err := analysisrunner.NewRunner(analysisrunner.RunnerOptions{
		Queue:        queueRepo,
		Processor:    pipeline,
		Logger:       logger,
		Concurrency:  cfg.Worker.Concurrency,
		ClaimTimeout: cfg.Worker.ClaimTimeout,
		Metrics:      observability.MetricsSink,
		Depths:       queueRepo,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build analysis runner: %w", err)
	}

	reaperRunner, err := reaper.NewRunner(reaper.RunnerOptions{
		Jobs:          jobRepo,
		Queue:         queueRepo,
		Interval:      cfg.Reaper.Interval,
		RunningMaxAge: cfg.Reaper.RunningMaxAge,
		BatchSize:     cfg.Reaper.BatchSize,
		RequeueLimit:  cfg.Reaper.RequeueLimit,
		Logger:        logger,
		Metrics:       observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build reaper: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobService,
		Pipeline:      pipeline,
		Worker:        worker,
		Reaper:        reaperRunner,
		Observability: observability,
	}, nil
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown
// needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. This function blocks until a shutdown signal is received or a
// service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	descriptors := []backgroundService{
		{
			mode:  config.ServiceModeWorker,
			name:  "analysis worker",
			start: cfg.Services.Worker.Run,
		},
		{
			mode:  config.ServiceModeReaper,
			name:  "reaper",
			start: cfg.Services.Reaper.Run,
		},
	}

	errCh := make(chan error, len(descriptors)+1)
	var handles []backgroundServiceHandle

	for _, descriptor := range descriptors {
		if !enabled[descriptor.mode] {
			continue
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			if runErr := descriptor.start(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				select {
				case errCh <- fmt.Errorf("%s failed: %w", descriptor.name, runErr):
				default:
					logger.Warn("dropping background service error",
						"service", descriptor.name, "error", runErr)
				}
			}
		}()
		logger.InfoContext(ctx, "background service started", "service", descriptor.name)
		handles = append(handles, backgroundServiceHandle{name: descriptor.name, done: done})
	}

	err = waitForShutdown(ctx, cancel, errCh, logger)

	for _, handle := range handles {
		waitForService(handle.done, handle.name, logger)
	}

	if metricsClient := cfg.Services.Observability.MetricsClient; metricsClient != nil {
		if closeErr := metricsClient.Close(); closeErr != nil {
			logger.Warn("close metrics client", "error", closeErr)
		}
	}

	return err
}

// waitForShutdown waits for a shutdown signal or service error.
func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	errCh <-chan error,
	logger *slog.Logger,
) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down services...")
		cancel()
		return nil
	case err := <-errCh:
		logger.ErrorContext(ctx, "service error", "error", err)
		cancel()
		return err
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
