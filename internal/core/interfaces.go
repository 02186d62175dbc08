// Package core defines the repository interfaces (ports) between the service
// layer and the data layer. Services depend on these contracts, never on
// concrete implementations, so every external store can be swapped for a
// test double.
package core

import (
	"context"
	"time"

	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// JobRepository defines job record operations. Status updates are guarded so
// the pending -> running -> {completed, failed} machine stays monotonic: an
// update whose guard does not match reports false instead of overwriting a
// later state.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.AnalysisJob, error)
	GetByID(ctx context.Context, id string) (*model.AnalysisJob, error)

	// MarkRunning transitions pending -> running and sets started_at.
	// Returns false when the job is not pending.
	MarkRunning(ctx context.Context, id string) (bool, error)

	// SetResults writes per-agent payload fields in one partial update.
	// Nil fields are untouched, so concurrent writers to different fields
	// cannot lose updates.
	SetResults(ctx context.Context, id string, payloads model.AgentResultPayloads) error

	// Complete transitions running -> completed. Returns false when the job
	// is not running.
	Complete(ctx context.Context, id string) (bool, error)

	// Fail transitions running -> failed with an error message. Returns
	// false when the job is not running.
	Fail(ctx context.Context, id, errMsg string) (bool, error)

	Stats(ctx context.Context) (*model.JobStats, error)

	// FailStaleRunning fails running jobs whose lease on forward progress
	// has expired (worker died mid-job). Processes up to batchSize rows.
	FailStaleRunning(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// PortfolioRepository loads user portfolio snapshots with instruments
// resolved onto positions.
type PortfolioRepository interface {
	GetUserPortfolio(ctx context.Context, userID string) (*model.PortfolioSnapshot, error)
}

// InstrumentRepository defines instrument reference-data operations.
// Concurrent upserts of the same symbol are last-write-wins; instrument rows
// are never locked across an RPC.
type InstrumentRepository interface {
	GetBySymbol(ctx context.Context, symbol string) (*model.Instrument, error)
	GetBySymbols(ctx context.Context, symbols []string) (map[string]*model.Instrument, error)
	Upsert(ctx context.Context, inst *model.Instrument) error
}

// CacheRepository defines cache operations used for cross-worker dedupe.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// AnalysisQueue is the at-least-once job queue. Claimed messages stay on a
// processing list until acked so a dead worker's claims can be requeued.
type AnalysisQueue interface {
	Enqueue(ctx context.Context, msg model.QueueMessage) error

	// ClaimBlocking blocks up to timeout for the next message. Returns
	// model.ErrNoJobsAvailable when the wait elapses empty.
	ClaimBlocking(ctx context.Context, timeout time.Duration) (model.QueueMessage, error)

	Ack(ctx context.Context, msg model.QueueMessage) error

	// RequeueStale moves orphaned processing-list entries back onto the
	// queue and returns how many were moved.
	RequeueStale(ctx context.Context, limit int64) (int64, error)
}
