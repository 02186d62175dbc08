package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finsight/portfolio-analyst/internal/core"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Queue  core.AnalysisQueue // Required: analysis queue
	Logger *slog.Logger       // Optional: structured logger
}

// JobService is the submission-side API for analysis jobs: it creates job
// records and enqueues them for the workers.
type JobService struct {
	repo   core.JobRepository
	queue  core.AnalysisQueue
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("AnalysisQueue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		repo:   opts.Repo,
		queue:  opts.Queue,
		logger: logger.With("component", "job_service"),
	}, nil
}

// Enqueue creates a pending job record and pushes it onto the analysis
// queue. The record is the source of truth: if the queue push fails after
// the row is created, the job stays pending and the reaper's stale scan
// will never touch it, so callers may safely retry the enqueue.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.AnalysisJob, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, model.QueueMessage{JobID: job.ID}); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	s.logger.InfoContext(ctx, "job enqueued", "job_id", job.ID, "user_id", job.UserID)
	return job, nil
}

// GetByID returns the job record, including any result payloads written so
// far.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Stats returns per-status job counts.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}
