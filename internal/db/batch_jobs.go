package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Simplereally/bloomstudio-sub000/internal/domain"
)

const batchJobColumns = `id, owner_id, status, total_count, current_index, completed_count,
in_flight_count, consecutive_failures, last_error, params, created_at, updated_at`

func scanBatchJob(row pgx.Row) (domain.BatchJob, error) {
	var (
		job    domain.BatchJob
		status string
		params []byte
	)
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.TotalCount,
		&job.CurrentIndex,
		&job.CompletedCount,
		&job.InFlightCount,
		&job.ConsecutiveFailures,
		&job.LastError,
		&params,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.BatchJob{}, err
	}
	job.Status = domain.BatchStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return domain.BatchJob{}, fmt.Errorf("decode job params: %w", err)
		}
	}
	return job, nil
}

type CreateBatchJobParams struct {
	OwnerID    string
	TotalCount int
	Params     domain.GenerationParams
}

func (q *Queries) CreateBatchJob(ctx context.Context, arg CreateBatchJobParams) (domain.BatchJob, error) {
	params, err := json.Marshal(arg.Params)
	if err != nil {
		return domain.BatchJob{}, fmt.Errorf("encode job params: %w", err)
	}
	row := q.db.QueryRow(ctx, `
INSERT INTO batch_jobs (owner_id, status, total_count, params)
VALUES ($1, 'pending', $2, $3)
RETURNING `+batchJobColumns+`
`, arg.OwnerID, arg.TotalCount, params)
	return scanBatchJob(row)
}

func (q *Queries) GetBatchJob(ctx context.Context, id string) (domain.BatchJob, error) {
	row := q.db.QueryRow(ctx, `
SELECT `+batchJobColumns+`
FROM batch_jobs
WHERE id = $1
`, id)
	job, err := scanBatchJob(row)
	if isNoRows(err) {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return job, err
}

func (q *Queries) GetBatchJobForOwner(ctx context.Context, id, ownerID string) (domain.BatchJob, error) {
	row := q.db.QueryRow(ctx, `
SELECT `+batchJobColumns+`
FROM batch_jobs
WHERE id = $1 AND owner_id = $2
`, id, ownerID)
	job, err := scanBatchJob(row)
	if isNoRows(err) {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return job, err
}

type ListBatchJobsParams struct {
	OwnerID string
	Limit   int
	Offset  int
}

func (q *Queries) ListBatchJobsByOwner(ctx context.Context, arg ListBatchJobsParams) ([]domain.BatchJob, error) {
	rows, err := q.db.Query(ctx, `
SELECT `+batchJobColumns+`
FROM batch_jobs
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, arg.OwnerID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.BatchJob
	for rows.Next() {
		job, err := scanBatchJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimBatchItem atomically reserves the next unprocessed item: it bumps
// current_index and in_flight_count in one statement, promoting a pending job
// to processing on its first claim. The guard on status and current_index
// serializes duplicate invocations on the row lock; a loser either claims the
// following index or observes the guard fail and reports ok=false.
//
// The returned job is the post-claim snapshot; the claimed item's index is
// CurrentIndex-1.
func (q *Queries) ClaimBatchItem(ctx context.Context, id string) (domain.BatchJob, bool, error) {
	row := q.db.QueryRow(ctx, `
WITH claimed AS (
    UPDATE batch_jobs
    SET status = 'processing',
        current_index = current_index + 1,
        in_flight_count = in_flight_count + 1,
        updated_at = now()
    WHERE id = $1
      AND status IN ('pending', 'processing')
      AND current_index < total_count
    RETURNING `+batchJobColumns+`
)
SELECT `+batchJobColumns+`, pg_notify('`+ProgressChannel+`', id::text)
FROM claimed
`, id)
	job, err := scanBatchJobWithNotify(row)
	if isNoRows(err) {
		return domain.BatchJob{}, false, nil
	}
	if err != nil {
		return domain.BatchJob{}, false, err
	}
	return job, true, nil
}

// RecordItemSuccess settles one in-flight item as completed. Promotion to
// the completed status happens only from processing or paused; a terminal
// job still has its counters settled so late in-flight work is not lost.
func (q *Queries) RecordItemSuccess(ctx context.Context, id string) (domain.BatchJob, error) {
	row := q.db.QueryRow(ctx, `
WITH updated AS (
    UPDATE batch_jobs
    SET completed_count = completed_count + 1,
        in_flight_count = greatest(in_flight_count - 1, 0),
        consecutive_failures = 0,
        status = CASE
            WHEN status IN ('processing', 'paused') AND completed_count + 1 >= total_count
                THEN 'completed'
            ELSE status
        END,
        updated_at = now()
    WHERE id = $1
    RETURNING `+batchJobColumns+`
)
SELECT `+batchJobColumns+`, pg_notify('`+ProgressChannel+`', id::text)
FROM updated
`, id)
	job, err := scanBatchJobWithNotify(row)
	if isNoRows(err) {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return job, err
}

type RecordItemFailureParams struct {
	ID        string
	Message   string
	Fatal     bool
	Threshold int
}

// RecordItemFailure settles one in-flight item as failed. The job escalates
// to failed when the failure is fatal or the consecutive-failure count
// reaches the threshold, and only from a non-terminal status.
func (q *Queries) RecordItemFailure(ctx context.Context, arg RecordItemFailureParams) (domain.BatchJob, error) {
	row := q.db.QueryRow(ctx, `
WITH updated AS (
    UPDATE batch_jobs
    SET in_flight_count = greatest(in_flight_count - 1, 0),
        consecutive_failures = consecutive_failures + 1,
        last_error = $2,
        status = CASE
            WHEN status IN ('pending', 'processing', 'paused')
                 AND ($3 OR consecutive_failures + 1 >= $4)
                THEN 'failed'
            ELSE status
        END,
        updated_at = now()
    WHERE id = $1
    RETURNING `+batchJobColumns+`
)
SELECT `+batchJobColumns+`, pg_notify('`+ProgressChannel+`', id::text)
FROM updated
`, arg.ID, arg.Message, arg.Fatal, arg.Threshold)
	job, err := scanBatchJobWithNotify(row)
	if isNoRows(err) {
		return domain.BatchJob{}, domain.ErrNotFound
	}
	return job, err
}

// PauseBatchJob transitions processing -> paused. ok=false means no
// transition happened (wrong state or not the owner's job).
func (q *Queries) PauseBatchJob(ctx context.Context, id, ownerID string) (bool, error) {
	return q.transitionStatus(ctx, id, ownerID, "paused", []string{"processing"})
}

// ResumeBatchJob transitions paused -> processing.
func (q *Queries) ResumeBatchJob(ctx context.Context, id, ownerID string) (bool, error) {
	return q.transitionStatus(ctx, id, ownerID, "processing", []string{"paused"})
}

// CancelBatchJob transitions any non-terminal status to cancelled.
func (q *Queries) CancelBatchJob(ctx context.Context, id, ownerID string) (bool, error) {
	return q.transitionStatus(ctx, id, ownerID, "cancelled", []string{"pending", "processing", "paused"})
}

func (q *Queries) transitionStatus(ctx context.Context, id, ownerID, to string, from []string) (bool, error) {
	row := q.db.QueryRow(ctx, `
WITH updated AS (
    UPDATE batch_jobs
    SET status = $3, updated_at = now()
    WHERE id = $1 AND owner_id = $2 AND status = ANY($4)
    RETURNING id
)
SELECT id, pg_notify('`+ProgressChannel+`', id::text)
FROM updated
`, id, ownerID, to, from)
	var updatedID string
	var notify any
	if err := row.Scan(&updatedID, &notify); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func scanBatchJobWithNotify(row pgx.Row) (domain.BatchJob, error) {
	var (
		job    domain.BatchJob
		status string
		params []byte
		notify any
	)
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.TotalCount,
		&job.CurrentIndex,
		&job.CompletedCount,
		&job.InFlightCount,
		&job.ConsecutiveFailures,
		&job.LastError,
		&params,
		&job.CreatedAt,
		&job.UpdatedAt,
		&notify,
	)
	if err != nil {
		return domain.BatchJob{}, err
	}
	job.Status = domain.BatchStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return domain.BatchJob{}, fmt.Errorf("decode job params: %w", err)
		}
	}
	return job, nil
}
