// Package mocks provides mock implementations for testing the analysis job
// system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// our repository interfaces. The mocks are generated using go:generate
// directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, MarkRunning, SetResults, Complete, Fail, Stats, FailStaleRunning
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/finsight/portfolio-analyst/internal/core JobRepository

// Generate mock for AnalysisQueue interface from internal/core package.
// This creates MockAnalysisQueue with methods for all AnalysisQueue interface methods:
// Enqueue, ClaimBlocking, Ack, RequeueStale
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=analysis_queue_mock.go github.com/finsight/portfolio-analyst/internal/core AnalysisQueue

// Generate mock for the capability Invoker interface from internal/agents.
// This creates MockInvoker with the Invoke method.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=invoker_mock.go github.com/finsight/portfolio-analyst/internal/agents Invoker
