package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
	"github.com/finsight/portfolio-analyst/internal/mocks"
)

const testJobID = "0d4ffcb0-8f3e-4f21-a4e5-4d5db6e5b8d0"

func TestJobService_Enqueue_CreatesRecordThenPushes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockRepo := mocks.NewMockJobRepository(ctrl)
	mockQueue := mocks.NewMockAnalysisQueue(ctrl)

	req := &model.CreateJobRequest{
		UserID:  "user-1",
		Request: json.RawMessage(`{"focus":"retirement"}`),
	}
	created := &model.AnalysisJob{
		ID:      testJobID,
		UserID:  req.UserID,
		Status:  model.JobStatusPending,
		Request: req.Request,
	}

	mockRepo.EXPECT().Create(ctx, req).Return(created, nil)
	mockQueue.EXPECT().Enqueue(ctx, model.QueueMessage{JobID: testJobID}).Return(nil)

	svc, err := NewJobService(JobServiceOptions{Repo: mockRepo, Queue: mockQueue})
	require.NoError(t, err)

	got, err := svc.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestJobService_Enqueue_QueueFailureLeavesRecordPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockRepo := mocks.NewMockJobRepository(ctrl)
	mockQueue := mocks.NewMockAnalysisQueue(ctrl)

	created := &model.AnalysisJob{ID: testJobID, UserID: "user-1", Status: model.JobStatusPending}
	mockRepo.EXPECT().
		Create(ctx, gomock.AssignableToTypeOf(&model.CreateJobRequest{})).
		Return(created, nil)
	mockQueue.EXPECT().
		Enqueue(ctx, model.QueueMessage{JobID: testJobID}).
		Return(errors.New("redis unavailable"))

	svc, err := NewJobService(JobServiceOptions{Repo: mockRepo, Queue: mockQueue})
	require.NoError(t, err)

	got, err := svc.Enqueue(ctx, &model.CreateJobRequest{UserID: "user-1"})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), testJobID)
}

func TestJobService_Enqueue_CreateFailureSkipsQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockRepo := mocks.NewMockJobRepository(ctrl)
	mockQueue := mocks.NewMockAnalysisQueue(ctrl)

	mockRepo.EXPECT().
		Create(ctx, gomock.Any()).
		Return(nil, errors.New("constraint violation"))
	mockQueue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Times(0)

	svc, err := NewJobService(JobServiceOptions{Repo: mockRepo, Queue: mockQueue})
	require.NoError(t, err)

	_, err = svc.Enqueue(ctx, &model.CreateJobRequest{UserID: "user-1"})
	require.Error(t, err)
}

func TestJobService_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockRepo := mocks.NewMockJobRepository(ctrl)
	mockQueue := mocks.NewMockAnalysisQueue(ctrl)

	want := &model.JobStats{Pending: 2, Running: 1, Completed: 10, Failed: 3}
	mockRepo.EXPECT().Stats(ctx).Return(want, nil)

	svc, err := NewJobService(JobServiceOptions{Repo: mockRepo, Queue: mockQueue})
	require.NoError(t, err)

	got, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewJobService_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := NewJobService(JobServiceOptions{Queue: mocks.NewMockAnalysisQueue(ctrl)})
	require.Error(t, err)

	_, err = NewJobService(JobServiceOptions{Repo: mocks.NewMockJobRepository(ctrl)})
	require.Error(t, err)
}
