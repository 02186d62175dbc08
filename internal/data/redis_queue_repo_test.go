package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
	"github.com/finsight/portfolio-analyst/internal/testutil"
)

func TestRedisQueueEnqueueClaimAck(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	repo := NewRedisQueueRepo(client)
	ctx := context.Background()

	msg := model.QueueMessage{JobID: uuid.NewString()}
	require.NoError(t, repo.Enqueue(ctx, msg))

	claimed, err := repo.ClaimBlocking(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.JobID, claimed.JobID)

	// Claimed message sits on the processing list until acked.
	queued, processing, err := repo.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queued)
	assert.Equal(t, int64(1), processing)

	require.NoError(t, repo.Ack(ctx, claimed))
	_, processing, err = repo.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)
}

func TestRedisQueueClaimTimesOutEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	repo := NewRedisQueueRepo(client)

	_, err := repo.ClaimBlocking(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestRedisQueueEnqueueRejectsInvalidMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	repo := NewRedisQueueRepo(client)

	err := repo.Enqueue(context.Background(), model.QueueMessage{JobID: "not-a-uuid"})
	require.Error(t, err)
}

func TestRedisQueueDropsMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	repo := NewRedisQueueRepo(client)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, analysisQueueKey, "not json").Err())

	_, err := repo.ClaimBlocking(ctx, time.Second)
	require.ErrorIs(t, err, ErrMalformedMessage)

	// The poison message must not linger on either list.
	queued, processing, err := repo.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), queued)
	assert.Equal(t, int64(0), processing)
}

func TestRedisQueueRequeueStale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := testutil.SetupTestRedis(t)
	repo := NewRedisQueueRepo(client)
	ctx := context.Background()

	first := model.QueueMessage{JobID: uuid.NewString()}
	second := model.QueueMessage{JobID: uuid.NewString()}
	require.NoError(t, repo.Enqueue(ctx, first))
	require.NoError(t, repo.Enqueue(ctx, second))

	// Claim both without acking, simulating a dead worker.
	_, err := repo.ClaimBlocking(ctx, time.Second)
	require.NoError(t, err)
	_, err = repo.ClaimBlocking(ctx, time.Second)
	require.NoError(t, err)

	moved, err := repo.RequeueStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	queued, processing, err := repo.Depths(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), queued)
	assert.Equal(t, int64(0), processing)
}
