package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// stubJobRepo scripts FailStaleRunning batch results.
type stubJobRepo struct {
	mu      sync.Mutex
	batches []int64
	calls   int
	err     error
}

func (s *stubJobRepo) FailStaleRunning(_ context.Context, _ time.Duration, _ int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.calls >= len(s.batches) {
		s.calls++
		return 0, nil
	}
	count := s.batches[s.calls]
	s.calls++
	return count, nil
}

func (s *stubJobRepo) Create(context.Context, *model.CreateJobRequest) (*model.AnalysisJob, error) {
	return nil, errors.New("not implemented")
}

func (s *stubJobRepo) GetByID(context.Context, string) (*model.AnalysisJob, error) {
	return nil, errors.New("not implemented")
}

func (s *stubJobRepo) MarkRunning(context.Context, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *stubJobRepo) SetResults(context.Context, string, model.AgentResultPayloads) error {
	return errors.New("not implemented")
}

func (s *stubJobRepo) Complete(context.Context, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *stubJobRepo) Fail(context.Context, string, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (s *stubJobRepo) Stats(context.Context) (*model.JobStats, error) {
	return nil, errors.New("not implemented")
}

// stubQueue scripts RequeueStale.
type stubQueue struct {
	requeued int64
	err      error
	calls    int
}

func (s *stubQueue) Enqueue(context.Context, model.QueueMessage) error { return nil }

func (s *stubQueue) ClaimBlocking(context.Context, time.Duration) (model.QueueMessage, error) {
	return model.QueueMessage{}, model.ErrNoJobsAvailable
}

func (s *stubQueue) Ack(context.Context, model.QueueMessage) error { return nil }

func (s *stubQueue) RequeueStale(context.Context, int64) (int64, error) {
	s.calls++
	return s.requeued, s.err
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Queue: &stubQueue{}})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: &stubJobRepo{}})
	require.Error(t, err)
}

func TestSweepDrainsStaleBatchesAndRequeues(t *testing.T) {
	jobs := &stubJobRepo{batches: []int64{100, 100, 37}}
	queue := &stubQueue{requeued: 4}

	runner, err := NewRunner(RunnerOptions{Jobs: jobs, Queue: queue})
	require.NoError(t, err)

	failed, requeued, err := runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(237), failed)
	assert.Equal(t, int64(4), requeued)
	// Batch loop runs until an empty batch comes back.
	assert.Equal(t, 4, jobs.calls)
	assert.Equal(t, 1, queue.calls)
}

func TestSweepContinuesPastJobStoreError(t *testing.T) {
	jobs := &stubJobRepo{err: errors.New("db down")}
	queue := &stubQueue{requeued: 2}

	runner, err := NewRunner(RunnerOptions{Jobs: jobs, Queue: queue})
	require.NoError(t, err)

	failed, requeued, err := runner.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, int64(0), failed)
	// The queue step still runs when the job step fails.
	assert.Equal(t, int64(2), requeued)
}

func TestRunStopsOnCancel(t *testing.T) {
	runner, err := NewRunner(RunnerOptions{
		Jobs:     &stubJobRepo{},
		Queue:    &stubQueue{},
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
