package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finsight/portfolio-analyst/internal/data/pgxutil"
	"github.com/finsight/portfolio-analyst/internal/domain/model"
)

// JobRepoConfig holds configuration options for the job repository.
type JobRepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for analysis job records. Status
// updates carry a WHERE guard on the current status so the pending ->
// running -> {completed, failed} machine stays monotonic under concurrent
// writers and redelivered queue messages.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a JobRepo backed by the given database handle.
func NewJobRepo(db *sql.DB, cfg JobRepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  user_id,
  status,
  request,
  report_payload,
  charts_payload,
  retirement_payload,
  summary,
  agent_errors,
  error_message,
  created_at,
  started_at,
  completed_at
`

// Create inserts a new pending job and returns the stored record.
func (r *JobRepo) Create(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.AnalysisJob, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	request := req.Request
	if len(request) == 0 {
		request = json.RawMessage(`{}`)
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO analysis_jobs (user_id, status, request, created_at)
      VALUES ($1, 'pending', $2, $3)
      RETURNING `+jobColumns,
		req.UserID, []byte(request), r.timeProvider.Now().UTC())

	job, err := scanJobFromRow(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrJobAlreadyExists
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT `+jobColumns+`
			FROM analysis_jobs
			WHERE id = $1
		`, id)
		var scanErr error
		job, scanErr = scanJobFromRow(row)
		return scanErr
	})

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// MarkRunning transitions a pending job to running and stamps started_at.
// Returns false when the job is not pending, which covers both redelivered
// messages for terminal jobs and races between workers claiming the same id.
func (r *JobRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'running',
		    started_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark running rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// SetResults writes per-agent payload fields in one partial update. Nil
// fields keep their stored value and agent_errors entries are merged, so
// writers touching different fields never lose each other's updates.
func (r *JobRepo) SetResults(
	ctx context.Context,
	id string,
	payloads model.AgentResultPayloads,
) error {
	var agentErrors []byte
	if len(payloads.AgentErrors) > 0 {
		raw, err := json.Marshal(payloads.AgentErrors)
		if err != nil {
			return fmt.Errorf("marshal agent errors: %w", err)
		}
		agentErrors = raw
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET report_payload     = COALESCE($2, report_payload),
		    charts_payload     = COALESCE($3, charts_payload),
		    retirement_payload = COALESCE($4, retirement_payload),
		    summary            = COALESCE($5, summary),
		    agent_errors       = CASE WHEN $6::jsonb IS NULL THEN agent_errors
		                              ELSE COALESCE(agent_errors, '{}'::jsonb) || $6::jsonb END,
		    updated_at         = $7
		WHERE id = $1
	`, id,
		nullableJSON(payloads.Report),
		nullableJSON(payloads.Charts),
		nullableJSON(payloads.Retirement),
		payloads.Summary,
		agentErrors,
		r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set job results: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set results rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Complete transitions a running job to completed. Returns false when the
// job is not running.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $2
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Fail transitions a running job to failed with an error message. Returns
// false when the job is not running.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = 'failed',
		    error_message = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, errMsg, now)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Stats returns counts of jobs in each lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM analysis_jobs
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// Advisory lock namespace for reaper operations so concurrent reaper
// instances do not double-process the same rows.
const (
	advisoryLockReaperMajor       = 2000
	advisoryLockReaperFailRunning = 1
)

// FailStaleRunning fails running jobs whose started_at is older than maxAge,
// covering workers that died mid-job. Processes up to batchSize rows per
// call and returns the number of jobs failed.
func (r *JobRepo) FailStaleRunning(
	ctx context.Context,
	maxAge time.Duration,
	batchSize int,
) (int64, error) {
	if maxAge <= 0 {
		return 0, errors.New("maxAge must be positive")
	}
	if batchSize <= 0 {
		return 0, errors.New("batchSize must be positive")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, func(tx *sql.Tx) error {
		var locked bool
		if err := tx.QueryRowContext(ctx,
			"SELECT pg_try_advisory_xact_lock($1, $2)",
			advisoryLockReaperMajor, advisoryLockReaperFailRunning,
		).Scan(&locked); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !locked {
			rowsAffected = 0
			return nil
		}

		now := r.timeProvider.Now().UTC()
		cutoff := now.Add(-maxAge)
		res, err := tx.ExecContext(ctx, `
          UPDATE analysis_jobs
          SET status = 'failed',
              error_message = 'job exceeded maximum running time',
              completed_at = $1,
              updated_at = $1
          WHERE id IN (
            SELECT id FROM analysis_jobs
            WHERE status = 'running' AND started_at < $2
            ORDER BY started_at ASC
            LIMIT $3
            FOR UPDATE SKIP LOCKED
          )
        `, now, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("fail stale running: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 && r.logger != nil {
		r.logger.WarnContext(ctx, "failed stale running jobs",
			"count", rowsAffected,
			"max_age", maxAge.String(),
		)
	}
	return rowsAffected, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	request, report, charts, retirement, agentErrors []byte
	summary, errorMessage                            sql.NullString
	startedAt, completedAt                           sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.AnalysisJob) error {
	return scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.Status,
		&d.request,
		&d.report,
		&d.charts,
		&d.retirement,
		&d.summary,
		&d.agentErrors,
		&d.errorMessage,
		&job.CreatedAt,
		&d.startedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.AnalysisJob) error {
	job.Request = cloneJSON(d.request)
	job.Report = cloneNullableJSON(d.report)
	job.Charts = cloneNullableJSON(d.charts)
	job.Retirement = cloneNullableJSON(d.retirement)
	job.Summary = cloneNullableString(d.summary)
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)

	if len(d.agentErrors) > 0 {
		if err := json.Unmarshal(d.agentErrors, &job.AgentErrors); err != nil {
			return fmt.Errorf("decode agent errors: %w", err)
		}
	}
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.AnalysisJob, error) {
	job := &model.AnalysisJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// nullableJSON maps empty payloads to SQL NULL so COALESCE keeps the stored
// value.
func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
