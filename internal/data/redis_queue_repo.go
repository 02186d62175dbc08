package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// Redis list keys for the analysis job queue.
const (
	analysisQueueKey      = "analysis:jobs"
	analysisProcessingKey = "analysis:jobs:processing"
)

// ErrMalformedMessage is returned by ClaimBlocking when a queued payload is
// not a valid queue message. The payload has already been dropped.
var ErrMalformedMessage = errors.New("malformed queue message")

// RedisQueueRepo implements the AnalysisQueue interface on a pair of Redis
// lists. BRPOPLPUSH moves each claimed message onto a processing list, so a
// worker crash never loses a message: the reaper pushes orphaned entries
// back onto the queue. Delivery is therefore at-least-once and consumers
// must tolerate redelivery.
type RedisQueueRepo struct {
	client redis.UniversalClient
}

// NewRedisQueueRepo creates a RedisQueueRepo with the given Redis client.
func NewRedisQueueRepo(client redis.UniversalClient) *RedisQueueRepo {
	return &RedisQueueRepo{client: client}
}

// Enqueue pushes a message onto the analysis queue.
func (r *RedisQueueRepo) Enqueue(ctx context.Context, msg model.QueueMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	if err := r.client.LPush(ctx, analysisQueueKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", msg.JobID, err)
	}
	return nil
}

// ClaimBlocking blocks up to timeout for the next message, atomically moving
// it onto the processing list. Returns model.ErrNoJobsAvailable when the
// wait elapses empty. A payload that fails to decode or validate is dropped
// from the processing list and reported as ErrMalformedMessage so a poison
// message cannot wedge the queue.
func (r *RedisQueueRepo) ClaimBlocking(
	ctx context.Context,
	timeout time.Duration,
) (model.QueueMessage, error) {
	var msg model.QueueMessage

	raw, err := r.client.BRPopLPush(ctx, analysisQueueKey, analysisProcessingKey, timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return msg, model.ErrNoJobsAvailable
		}
		return msg, fmt.Errorf("claim queue message: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.dropProcessing(ctx, raw)
		return model.QueueMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := msg.Validate(); err != nil {
		r.dropProcessing(ctx, raw)
		return model.QueueMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Ack removes a claimed message from the processing list.
func (r *RedisQueueRepo) Ack(ctx context.Context, msg model.QueueMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	if err := r.client.LRem(ctx, analysisProcessingKey, 1, raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", msg.JobID, err)
	}
	return nil
}

// RequeueStale moves up to limit processing-list entries back onto the
// queue and returns how many were moved. Entries still being worked on get
// redelivered too; that is safe because terminal and running jobs refuse
// the pending -> running transition.
func (r *RedisQueueRepo) RequeueStale(ctx context.Context, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, errors.New("limit must be positive")
	}

	var moved int64
	for moved < limit {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		err := r.client.RPopLPush(ctx, analysisProcessingKey, analysisQueueKey).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue stale message: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Depths reports the current queue and processing list lengths, used for
// gauge metrics.
func (r *RedisQueueRepo) Depths(ctx context.Context) (queued, processing int64, err error) {
	queued, err = r.client.LLen(ctx, analysisQueueKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	processing, err = r.client.LLen(ctx, analysisProcessingKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("processing depth: %w", err)
	}
	return queued, processing, nil
}

func (r *RedisQueueRepo) dropProcessing(ctx context.Context, raw string) {
	_ = r.client.LRem(ctx, analysisProcessingKey, 1, raw).Err()
}
